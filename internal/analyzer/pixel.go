package analyzer

import (
	"image"
	"math"
)

// PixelMatcher compares rasters in YIQ space with anti-aliasing detection,
// in the manner of pixelmatch.
type PixelMatcher struct {
	Threshold    float64 // per-pixel colour distance, 0..1
	MaxDiffRatio float64 // rasters match while differing pixels / total stays below this
	IncludeAA    bool    // count anti-aliased pixels as differences
}

const (
	DefaultThreshold    = 0.1
	DefaultMaxDiffRatio = 0.001
)

// NewPixelMatcher creates a matcher with the default tolerances.
func NewPixelMatcher() *PixelMatcher {
	return &PixelMatcher{
		Threshold:    DefaultThreshold,
		MaxDiffRatio: DefaultMaxDiffRatio,
	}
}

// 35215 is the maximum possible YIQ delta between two colours.
const maxYIQDelta = 35215

// Match reports whether a and b differ in fewer than MaxDiffRatio of their pixels.
func (m *PixelMatcher) Match(a, b *image.RGBA) bool {
	if !sameShape(a, b) {
		return false
	}
	total := a.Rect.Dx() * a.Rect.Dy()
	if total == 0 {
		return true
	}
	// stop counting as soon as the verdict is known
	budget := int(math.Ceil(m.MaxDiffRatio * float64(total)))
	if budget < 1 {
		budget = 1
	}
	return m.count(a, b, budget) < budget
}

// Compare counts every differing pixel.
func (m *PixelMatcher) Compare(a, b *image.RGBA) Diff {
	if !sameShape(a, b) {
		return Diff{Pixels: -1}
	}
	total := a.Rect.Dx() * a.Rect.Dy()
	d := Diff{Total: total}
	if total == 0 {
		return d
	}
	d.Pixels = m.count(a, b, total+1)
	d.Ratio = float64(d.Pixels) / float64(total)
	return d
}

func (m *PixelMatcher) count(a, b *image.RGBA, limit int) int {
	w, h := a.Rect.Dx(), a.Rect.Dy()
	maxDelta := maxYIQDelta * m.Threshold * m.Threshold
	pa := rgbaPixels{pix: a.Pix, stride: a.Stride, w: w, h: h}
	pb := rgbaPixels{pix: b.Pix, stride: b.Stride, w: w, h: h}

	diff := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := pa.offset(x, y)
			j := pb.offset(x, y)
			if pa.pix[i] == pb.pix[j] && pa.pix[i+1] == pb.pix[j+1] &&
				pa.pix[i+2] == pb.pix[j+2] && pa.pix[i+3] == pb.pix[j+3] {
				continue
			}
			delta := colorDelta(pa.pix, pb.pix, i, j, false)
			if math.Abs(delta) <= maxDelta {
				continue
			}
			if !m.IncludeAA && (antialiased(pa, x, y, pb) || antialiased(pb, x, y, pa)) {
				continue
			}
			diff++
			if diff >= limit {
				return diff
			}
		}
	}
	return diff
}

type rgbaPixels struct {
	pix    []uint8
	stride int
	w, h   int
}

func (p rgbaPixels) offset(x, y int) int {
	return y*p.stride + x*4
}

// antialiased reports whether the pixel at (x1, y1) looks like an
// anti-aliasing artefact between two flat regions.
func antialiased(img rgbaPixels, x1, y1 int, other rgbaPixels) bool {
	x0 := max(x1-1, 0)
	y0 := max(y1-1, 0)
	x2 := min(x1+1, img.w-1)
	y2 := min(y1+1, img.h-1)
	pos := img.offset(x1, y1)

	zeroes := 0
	if x1 == x0 || x1 == x2 || y1 == y0 || y1 == y2 {
		zeroes = 1
	}
	var minD, maxD float64
	var minX, minY, maxX, maxY int

	for x := x0; x <= x2; x++ {
		for y := y0; y <= y2; y++ {
			if x == x1 && y == y1 {
				continue
			}
			delta := colorDelta(img.pix, img.pix, pos, img.offset(x, y), true)
			switch {
			case delta == 0:
				zeroes++
				if zeroes > 2 {
					return false
				}
			case delta < minD:
				minD, minX, minY = delta, x, y
			case delta > maxD:
				maxD, maxX, maxY = delta, x, y
			}
		}
	}
	if minD == 0 || maxD == 0 {
		return false
	}
	return (hasManySiblings(img, minX, minY) && hasManySiblings(other, minX, minY)) ||
		(hasManySiblings(img, maxX, maxY) && hasManySiblings(other, maxX, maxY))
}

// hasManySiblings reports whether at least three neighbours share the exact colour of (x1, y1).
func hasManySiblings(img rgbaPixels, x1, y1 int) bool {
	x0 := max(x1-1, 0)
	y0 := max(y1-1, 0)
	x2 := min(x1+1, img.w-1)
	y2 := min(y1+1, img.h-1)
	pos := img.offset(x1, y1)

	zeroes := 0
	if x1 == x0 || x1 == x2 || y1 == y0 || y1 == y2 {
		zeroes = 1
	}
	for x := x0; x <= x2; x++ {
		for y := y0; y <= y2; y++ {
			if x == x1 && y == y1 {
				continue
			}
			pos2 := img.offset(x, y)
			if img.pix[pos] == img.pix[pos2] && img.pix[pos+1] == img.pix[pos2+1] &&
				img.pix[pos+2] == img.pix[pos2+2] && img.pix[pos+3] == img.pix[pos2+3] {
				zeroes++
			}
			if zeroes > 2 {
				return true
			}
		}
	}
	return false
}

// colorDelta returns the squared YIQ distance between two pixels, negative
// when the first one is lighter. With yOnly it returns the brightness difference.
func colorDelta(a, b []uint8, i, j int, yOnly bool) float64 {
	r1, g1, b1 := float64(a[i]), float64(a[i+1]), float64(a[i+2])
	r2, g2, b2 := float64(b[j]), float64(b[j+1]), float64(b[j+2])

	// blend semi-transparent pixels with white
	if a1 := a[i+3]; a1 < 255 {
		f := float64(a1) / 255
		r1, g1, b1 = blend(r1, f), blend(g1, f), blend(b1, f)
	}
	if a2 := b[j+3]; a2 < 255 {
		f := float64(a2) / 255
		r2, g2, b2 = blend(r2, f), blend(g2, f), blend(b2, f)
	}

	y1 := rgb2y(r1, g1, b1)
	y2 := rgb2y(r2, g2, b2)
	y := y1 - y2
	if yOnly {
		return y
	}
	iq := rgb2i(r1, g1, b1) - rgb2i(r2, g2, b2)
	q := rgb2q(r1, g1, b1) - rgb2q(r2, g2, b2)
	delta := 0.5053*y*y + 0.299*iq*iq + 0.1957*q*q
	if y1 > y2 {
		return -delta
	}
	return delta
}

func blend(c, a float64) float64 { return 255 + (c-255)*a }

func rgb2y(r, g, b float64) float64 { return r*0.29889531 + g*0.58662247 + b*0.11448223 }
func rgb2i(r, g, b float64) float64 { return r*0.59597799 - g*0.27417610 - b*0.32180189 }
func rgb2q(r, g, b float64) float64 { return r*0.21147017 - g*0.52261711 + b*0.31114694 }
