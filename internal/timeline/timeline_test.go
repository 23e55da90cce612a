package timeline

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raster(w, h int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
	}
	return img
}

func decoded(delays ...float64) Decoded {
	d := Decoded{Width: 4, Height: 4}
	for i, delay := range delays {
		d.Frames = append(d.Frames, RawFrame{Image: raster(4, 4, uint8(i*40)), Delay: delay})
	}
	return d
}

// byteMatcher treats rasters as equal when their first pixel matches.
type byteMatcher struct{}

func (byteMatcher) Match(a, b *image.RGBA) bool { return a.Pix[0] == b.Pix[0] }

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(context.Background(), Decoded{Width: 4, Height: 4})
	require.ErrorIs(t, err, ErrNoFrames)
}

func TestNewRejectsDimensionMismatch(t *testing.T) {
	d := decoded(10, 10)
	d.Frames[1].Image = raster(5, 4, 0)

	_, err := New(context.Background(), d)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNewDerivesSizeFromFirstFrame(t *testing.T) {
	d := decoded(10)
	d.Width, d.Height = 0, 0

	tl, err := New(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 4, tl.Width())
	assert.Equal(t, 4, tl.Height())
}

func TestFramesAreContiguous(t *testing.T) {
	tl, err := New(context.Background(), decoded(30, 0, 70, 12.5, 100))
	require.NoError(t, err)

	frames := tl.Frames()
	assert.Equal(t, 0.0, frames[0].Start)
	for i := 0; i+1 < len(frames); i++ {
		assert.Equal(t, frames[i+1].Start, frames[i].End(), "gap after frame %d", i)
		assert.Equal(t, i, frames[i].Index)
	}
	last := frames[len(frames)-1]
	assert.Equal(t, last.End(), tl.TotalDuration())
	assert.Equal(t, 212.5, tl.TotalDuration())
}

func TestFindFrameByTime(t *testing.T) {
	tl, err := New(context.Background(), decoded(10, 10, 10))
	require.NoError(t, err)
	require.Equal(t, 30.0, tl.TotalDuration())

	tests := []struct {
		time float64
		want int
	}{
		{-5, 0},
		{0, 0},
		{9.999, 0},
		{10, 1},
		{19, 1},
		{20, 2},
		{29, 2},
		{30, 2}, // terminal point resolves to the last frame
		{45, 2},
	}
	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			assert.Equal(t, tt.want, tl.FindFrameByTime(tt.time).Index, "t=%v", tt.time)
		})
	}
}

func TestFindFrameByTimeCoversEveryInterval(t *testing.T) {
	tl, err := New(context.Background(), decoded(7, 3, 11, 5, 9))
	require.NoError(t, err)

	for tm := 0.0; tm < tl.TotalDuration(); tm += 0.5 {
		f := tl.FindFrameByTime(tm)
		assert.True(t, f.Contains(tm), "frame %d does not contain %v", f.Index, tm)
	}
}

func TestFindFrameByTimeSkipsZeroDurationFrames(t *testing.T) {
	tl, err := New(context.Background(), decoded(10, 0, 10))
	require.NoError(t, err)

	assert.Equal(t, 2, tl.FindFrameByTime(10).Index)
}

func TestCollapseScenario(t *testing.T) {
	d := Decoded{Width: 4, Height: 4, Frames: []RawFrame{
		{ID: "a1", Image: raster(4, 4, 10), Delay: 5},
		{ID: "a2", Image: raster(4, 4, 10), Delay: 5},
		{ID: "b", Image: raster(4, 4, 200), Delay: 5},
	}}

	tl, err := New(context.Background(), d, WithMatcher(byteMatcher{}))
	require.NoError(t, err)

	require.Equal(t, 2, tl.Len())
	assert.Equal(t, "a1", tl.Frame(0).ID)
	assert.Equal(t, 10.0, tl.Frame(0).Duration)
	assert.Equal(t, "b", tl.Frame(1).ID)
	assert.Equal(t, 5.0, tl.Frame(1).Duration)
	assert.Equal(t, 10.0, tl.Frame(1).Start)
	assert.Equal(t, 15.0, tl.TotalDuration())
	assert.Equal(t, 1, tl.Collapsed())
}

func TestCollapseConservesDuration(t *testing.T) {
	values := []uint8{1, 1, 1, 2, 3, 3, 4, 4, 4, 4, 1}
	var d Decoded
	var sum float64
	for i, v := range values {
		delay := float64(10 + i*3)
		sum += delay
		d.Frames = append(d.Frames, RawFrame{Image: raster(2, 2, v), Delay: delay})
	}

	out, err := Collapse(context.Background(), d.Frames, byteMatcher{}, 3)
	require.NoError(t, err)
	require.Len(t, out, 5)

	var got float64
	for _, rf := range out {
		got += rf.Delay
	}
	assert.Equal(t, sum, got)
}

func TestCollapseWithoutMatcherKeepsAll(t *testing.T) {
	d := decoded(1, 2, 3)
	out, err := Collapse(context.Background(), d.Frames, nil, 0)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestCollapseHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Collapse(ctx, decoded(1, 2, 3).Frames, byteMatcher{}, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTrimClamping(t *testing.T) {
	tl, err := New(context.Background(), decoded(10, 10, 10))
	require.NoError(t, err)

	assert.True(t, tl.SetTrimEnd(30-10))
	assert.Equal(t, 20.0, tl.TrimEnd())

	// trimStart can never pass trimEnd
	tl.SetTrimStart(40)
	assert.Equal(t, 20.0, tl.TrimStart())

	// idempotent
	assert.False(t, tl.SetTrimStart(40))
	assert.Equal(t, 20.0, tl.TrimStart())

	tl.SetTrimStart(-3)
	assert.Equal(t, 0.0, tl.TrimStart())

	tl.SetTrimEnd(100)
	assert.Equal(t, 30.0, tl.TrimEnd())
}

func TestTrimStartScenario(t *testing.T) {
	tl, err := New(context.Background(), decoded(10, 10, 10))
	require.NoError(t, err)
	tl.SetTrimEnd(30)

	tl.SetTrimStart(40)
	assert.Equal(t, 30.0, tl.TrimStart())
	assert.LessOrEqual(t, tl.TrimStart(), tl.TrimEnd())
}

func TestFrameRange(t *testing.T) {
	tests := []struct {
		name            string
		start, end      float64
		first, last     int
		eligibleIndices []int
	}{
		{"full", 0, 40, 0, 3, []int{0, 1, 2, 3}},
		{"inner", 10, 30, 1, 2, []int{1, 2}},
		{"partial frames", 15, 25, 1, 2, []int{1, 2}},
		{"end on boundary", 0, 10, 0, 0, []int{0}},
		{"empty window", 20, 20, 2, 2, []int{2}},
		{"empty at end", 40, 40, 3, 3, []int{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl, err := New(context.Background(), decoded(10, 10, 10, 10))
			require.NoError(t, err)
			tl.SetTrimEnd(tt.end)
			tl.SetTrimStart(tt.start)

			first, last := tl.FrameRange()
			assert.Equal(t, tt.first, first)
			assert.Equal(t, tt.last, last)

			var got []int
			for _, f := range tl.EligibleFrames() {
				got = append(got, f.Index)
			}
			assert.Equal(t, tt.eligibleIndices, got)
		})
	}
}

func TestSnapshotRestore(t *testing.T) {
	tl, err := New(context.Background(), decoded(10, 10, 10))
	require.NoError(t, err)
	tl.SetTrimEnd(25)
	tl.SetTrimStart(5)
	snap := tl.Snapshot()

	fresh, err := New(context.Background(), decoded(10, 10, 10))
	require.NoError(t, err)
	require.True(t, fresh.Restore(snap))
	assert.Equal(t, 5.0, fresh.TrimStart())
	assert.Equal(t, 25.0, fresh.TrimEnd())

	other, err := New(context.Background(), decoded(10, 10))
	require.NoError(t, err)
	assert.False(t, other.Restore(snap))
	assert.Equal(t, 20.0, other.TrimEnd())
}

func TestFrameIDsAreUnique(t *testing.T) {
	a, err := New(context.Background(), decoded(1, 1, 1))
	require.NoError(t, err)
	b, err := New(context.Background(), decoded(1, 1, 1))
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, tl := range []*Timeline{a, b} {
		for _, f := range tl.Frames() {
			assert.False(t, seen[f.ID], "duplicate id %s", f.ID)
			seen[f.ID] = true
		}
	}
	assert.NotEqual(t, a.ID(), b.ID())
}
