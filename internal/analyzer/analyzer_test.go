package analyzer

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestPixelMatcherIdentical(t *testing.T) {
	a := solid(40, 40, color.RGBA{R: 200, G: 10, B: 10, A: 255})
	b := solid(40, 40, color.RGBA{R: 200, G: 10, B: 10, A: 255})

	m := NewPixelMatcher()
	assert.True(t, m.Match(a, b))
	assert.Equal(t, 0, m.Compare(a, b).Pixels)
}

func TestPixelMatcherSubThresholdNoise(t *testing.T) {
	a := solid(40, 40, color.RGBA{R: 100, G: 100, B: 100, A: 255})
	b := solid(40, 40, color.RGBA{R: 101, G: 100, B: 99, A: 255})

	assert.True(t, NewPixelMatcher().Match(a, b), "tiny colour shifts stay under the per-pixel threshold")
}

func TestPixelMatcherBlockChange(t *testing.T) {
	a := solid(100, 100, color.RGBA{A: 255})
	b := solid(100, 100, color.RGBA{A: 255})
	// a 10x10 white square: 100 of 10000 pixels is well above 0.1%
	for y := 40; y < 50; y++ {
		for x := 40; x < 50; x++ {
			b.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}

	m := NewPixelMatcher()
	assert.False(t, m.Match(a, b))

	d := m.Compare(a, b)
	assert.Equal(t, 10000, d.Total)
	assert.Greater(t, d.Pixels, 10)
}

func TestPixelMatcherSingleIsolatedPixel(t *testing.T) {
	// one flipped pixel out of 10000 is exactly 0.01% and matches
	a := solid(100, 100, color.RGBA{A: 255})
	b := solid(100, 100, color.RGBA{A: 255})
	b.SetRGBA(3, 3, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	assert.True(t, NewPixelMatcher().Match(a, b))
}

func TestPixelMatcherSizeMismatch(t *testing.T) {
	a := solid(10, 10, color.RGBA{A: 255})
	b := solid(10, 11, color.RGBA{A: 255})

	assert.False(t, NewPixelMatcher().Match(a, b))
	assert.False(t, ExactMatcher{}.Match(a, b))
}

func TestExactMatcher(t *testing.T) {
	a := solid(8, 8, color.RGBA{R: 1, A: 255})
	b := solid(8, 8, color.RGBA{R: 1, A: 255})
	assert.True(t, ExactMatcher{}.Match(a, b))

	b.SetRGBA(7, 7, color.RGBA{R: 2, A: 255})
	assert.False(t, ExactMatcher{}.Match(a, b))
}

func TestMatcherRegistry(t *testing.T) {
	tests := []struct {
		variant string
		wantErr bool
	}{
		{"pixel", false},
		{"", false}, // default
		{"exact", false},
		{"none", false},
		{"perceptual", true},
		{"invalid", true},
	}

	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			m, err := NewMatcher(tt.variant, Options{})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, m)
		})
	}
}

func TestMatcherRegistryOptions(t *testing.T) {
	m, err := NewMatcher("pixel", Options{Threshold: 0.3, MaxDiffRatio: 0.05})
	require.NoError(t, err)

	pm, ok := m.(*PixelMatcher)
	require.True(t, ok)
	assert.Equal(t, 0.3, pm.Threshold)
	assert.Equal(t, 0.05, pm.MaxDiffRatio)
}
