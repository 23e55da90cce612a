// Package sketch is the freehand annotation layer drawn over the frames. The
// document extends past the frame on every side so strokes can run off the
// edge.
package sketch

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/math/f64"
	"golang.org/x/image/vector"

	"github.com/ivlev/gifscrub/internal/event"
)

type Tool int

const (
	Brush Tool = iota
	Eraser
)

func (t Tool) String() string {
	switch t {
	case Brush:
		return "brush"
	case Eraser:
		return "eraser"
	}
	return "unknown"
}

// ParseTool maps "brush"/"eraser" to a Tool.
func ParseTool(s string) (Tool, bool) {
	switch s {
	case "brush":
		return Brush, true
	case "eraser":
		return Eraser, true
	}
	return Brush, false
}

const (
	DefaultBrushSize  = 5
	DefaultEraserSize = 10
	// MarginRatio of the larger frame side is added around the frame.
	MarginRatio = 0.2
)

// Layer holds the sketch document. Not safe for concurrent use.
type Layer struct {
	BrushSize  float64
	EraserSize float64
	Color      color.RGBA

	// Changed fires after every stroke or clear.
	Changed event.Emitter[struct{}]

	offset float64
	doc    *image.RGBA
	mask   *image.Alpha
	raster vector.Rasterizer
}

// New creates an empty layer for frames of the given size.
func New(width, height int) *Layer {
	offset := math.Max(float64(width), float64(height)) * MarginRatio
	w := width + int(math.Ceil(offset*2))
	h := height + int(math.Ceil(offset*2))
	return &Layer{
		BrushSize:  DefaultBrushSize,
		EraserSize: DefaultEraserSize,
		Color:      color.RGBA{A: 255},
		offset:     offset,
		doc:        image.NewRGBA(image.Rect(0, 0, w, h)),
		mask:       image.NewAlpha(image.Rect(0, 0, w, h)),
	}
}

// Offset is the margin between the document origin and the frame origin.
func (l *Layer) Offset() float64 { return l.offset }

// Document returns the sketch raster. Callers must not modify it.
func (l *Layer) Document() *image.RGBA { return l.doc }

// Empty reports whether nothing has been drawn.
func (l *Layer) Empty() bool {
	for i := 3; i < len(l.doc.Pix); i += 4 {
		if l.doc.Pix[i] != 0 {
			return false
		}
	}
	return true
}

// Stroke draws or erases a segment given in frame coordinates.
func (l *Layer) Stroke(tool Tool, from, to f64.Vec2) {
	from = f64.Vec2{from[0] + l.offset, from[1] + l.offset}
	to = f64.Vec2{to[0] + l.offset, to[1] + l.offset}

	switch tool {
	case Brush:
		r := l.BrushSize / 2
		dirty := l.capsule(from, to, r)
		draw.DrawMask(l.doc, dirty, image.NewUniform(l.Color), image.Point{}, l.mask, dirty.Min, draw.Over)
		clearAlpha(l.mask, dirty)
	case Eraser:
		r := l.EraserSize / 2
		dirty := l.capsule(from, to, r)
		erase(l.doc, l.mask, dirty)
		clearAlpha(l.mask, dirty)
	}
	l.Changed.Emit(struct{}{})
}

// Clear wipes the document.
func (l *Layer) Clear() {
	clear(l.doc.Pix)
	l.Changed.Emit(struct{}{})
}

// capsule rasterizes two end circles and the segment between them into the
// mask and returns the touched rectangle.
func (l *Layer) capsule(from, to f64.Vec2, r float64) image.Rectangle {
	bounds := image.Rect(
		int(math.Floor(math.Min(from[0], to[0])-r-1)),
		int(math.Floor(math.Min(from[1], to[1])-r-1)),
		int(math.Ceil(math.Max(from[0], to[0])+r+1)),
		int(math.Ceil(math.Max(from[1], to[1])+r+1)),
	).Intersect(l.mask.Rect)
	if bounds.Empty() {
		return bounds
	}

	origin := f64.Vec2{float64(bounds.Min.X), float64(bounds.Min.Y)}
	l.fill(bounds, func(z *vector.Rasterizer) { circle(z, sub(from, origin), r) })
	l.fill(bounds, func(z *vector.Rasterizer) { circle(z, sub(to, origin), r) })

	dx, dy := to[0]-from[0], to[1]-from[1]
	if length := math.Hypot(dx, dy); length > 0 {
		nx, ny := -dy/length*r, dx/length*r
		a, b := sub(from, origin), sub(to, origin)
		l.fill(bounds, func(z *vector.Rasterizer) {
			z.MoveTo(float32(a[0]-nx), float32(a[1]-ny))
			z.LineTo(float32(b[0]-nx), float32(b[1]-ny))
			z.LineTo(float32(b[0]+nx), float32(b[1]+ny))
			z.LineTo(float32(a[0]+nx), float32(a[1]+ny))
			z.ClosePath()
		})
	}
	return bounds
}

// fill rasterizes one closed shape into the mask over bounds.
func (l *Layer) fill(bounds image.Rectangle, path func(z *vector.Rasterizer)) {
	l.raster.Reset(bounds.Dx(), bounds.Dy())
	l.raster.DrawOp = draw.Over
	path(&l.raster)
	l.raster.Draw(l.mask, bounds, image.Opaque, image.Point{})
}

// circle approximates a circle with four cubic segments.
func circle(z *vector.Rasterizer, c f64.Vec2, r float64) {
	const kappa = 0.5522847498
	k := r * kappa
	x, y := c[0], c[1]
	z.MoveTo(float32(x+r), float32(y))
	z.CubeTo(float32(x+r), float32(y+k), float32(x+k), float32(y+r), float32(x), float32(y+r))
	z.CubeTo(float32(x-k), float32(y+r), float32(x-r), float32(y+k), float32(x-r), float32(y))
	z.CubeTo(float32(x-r), float32(y-k), float32(x-k), float32(y-r), float32(x), float32(y-r))
	z.CubeTo(float32(x+k), float32(y-r), float32(x+r), float32(y-k), float32(x+r), float32(y))
	z.ClosePath()
}

// erase scales document pixels down by the mask coverage.
func erase(doc *image.RGBA, mask *image.Alpha, r image.Rectangle) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m := mask.Pix[mask.PixOffset(x, y)]
			if m == 0 {
				continue
			}
			keep := uint32(255 - m)
			i := doc.PixOffset(x, y)
			for k := 0; k < 4; k++ {
				doc.Pix[i+k] = uint8((uint32(doc.Pix[i+k])*keep + 127) / 255)
			}
		}
	}
}

func clearAlpha(mask *image.Alpha, r image.Rectangle) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := mask.PixOffset(r.Min.X, y)
		clear(mask.Pix[i : i+r.Dx()])
	}
}

func sub(a, b f64.Vec2) f64.Vec2 {
	return f64.Vec2{a[0] - b[0], a[1] - b[1]}
}
