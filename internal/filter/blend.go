package filter

import (
	"image"
	"image/color"
	"math"
)

// Pixel math follows the 2D canvas compositing model on straight colour;
// image.RGBA stores premultiplied values, so every pass converts on the way
// in and out.

func straight(c, a uint8) float64 {
	if a == 0 {
		return 0
	}
	if a == 255 {
		return float64(c) / 255
	}
	return math.Min(1, float64(c)/float64(a))
}

func to8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}

// contrastPass thresholds src into dst: pixels darker than level*255 are
// scaled towards black, everything else turns white. Output is opaque.
func contrastPass(dst, src *image.RGBA, level float64) {
	limit := level * 255
	w, h := src.Rect.Dx(), src.Rect.Dy()
	for y := 0; y < h; y++ {
		si := y * src.Stride
		di := y * dst.Stride
		for x := 0; x < w; x, si, di = x+1, si+4, di+4 {
			a := src.Pix[si+3]
			r := straight(src.Pix[si], a) * 255
			g := straight(src.Pix[si+1], a) * 255
			b := straight(src.Pix[si+2], a) * 255
			avg := (r + g + b) / 3

			var v uint8 = 255
			if avg < limit {
				v = uint8(math.Round(avg / 255 * limit))
			}
			dst.Pix[di], dst.Pix[di+1], dst.Pix[di+2], dst.Pix[di+3] = v, v, v, 255
		}
	}
}

// screenFill draws src into dst and then fills dst with c using the screen
// blend mode. The result is opaque.
func screenFill(dst, src *image.RGBA, c color.RGBA) {
	fr := float64(c.R) / 255
	fg := float64(c.G) / 255
	fb := float64(c.B) / 255
	w, h := src.Rect.Dx(), src.Rect.Dy()
	for y := 0; y < h; y++ {
		si := y * src.Stride
		di := y * dst.Stride
		for x := 0; x < w; x, si, di = x+1, si+4, di+4 {
			a := src.Pix[si+3]
			ab := float64(a) / 255
			dst.Pix[di] = to8(screenOver(straight(src.Pix[si], a), fr, ab))
			dst.Pix[di+1] = to8(screenOver(straight(src.Pix[si+1], a), fg, ab))
			dst.Pix[di+2] = to8(screenOver(straight(src.Pix[si+2], a), fb, ab))
			dst.Pix[di+3] = 255
		}
	}
}

// screenOver is an opaque source cs composited over backdrop cb (alpha ab)
// with the screen blend mode.
func screenOver(cb, cs, ab float64) float64 {
	return (1-ab)*cs + ab*(cb+cs-cb*cs)
}

// multiplyOnto composites the opaque src onto dst with the multiply blend
// mode at the given global alpha.
func multiplyOnto(dst, src *image.RGBA, alpha float64) {
	if alpha <= 0 {
		return
	}
	as := math.Min(1, alpha)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	for y := 0; y < h; y++ {
		si := y * src.Stride
		di := y * dst.Stride
		for x := 0; x < w; x, si, di = x+1, si+4, di+4 {
			a := dst.Pix[di+3]
			ab := float64(a) / 255
			ao := as + ab*(1-as)
			for k := 0; k < 3; k++ {
				cs := float64(src.Pix[si+k]) / 255
				cb := straight(dst.Pix[di+k], a)
				blended := (1-ab)*cs + ab*cs*cb
				// premultiplied result
				dst.Pix[di+k] = to8(as*blended + (1-as)*ab*cb)
			}
			dst.Pix[di+3] = to8(ao)
		}
	}
}
