package analyzer

import (
	"bytes"
	"image"
)

// Matcher decides whether two rasters of the same size are visually the same
// frame. Implementations must be safe for concurrent use.
type Matcher interface {
	Match(a, b *image.RGBA) bool
}

// Diff is the outcome of a full comparison.
type Diff struct {
	Pixels int     // pixels considered different
	Total  int     // pixels compared
	Ratio  float64 // Pixels / Total
}

// ExactMatcher matches only byte-identical rasters.
type ExactMatcher struct{}

func (ExactMatcher) Match(a, b *image.RGBA) bool {
	if !sameShape(a, b) {
		return false
	}
	w, h := a.Rect.Dx()*4, a.Rect.Dy()
	for y := 0; y < h; y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+w]
		rb := b.Pix[y*b.Stride : y*b.Stride+w]
		if !bytes.Equal(ra, rb) {
			return false
		}
	}
	return true
}

// NeverMatcher disables duplicate collapsing.
type NeverMatcher struct{}

func (NeverMatcher) Match(a, b *image.RGBA) bool { return false }

func sameShape(a, b *image.RGBA) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Rect.Dx() == b.Rect.Dx() && a.Rect.Dy() == b.Rect.Dy()
}
