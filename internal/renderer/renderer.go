// Package renderer paints the filtered current frame onto a pannable,
// zoomable viewport and hands the result to a Sink.
package renderer

import (
	"image"
	"image/color"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ivlev/gifscrub/internal/filter"
	"github.com/ivlev/gifscrub/internal/playback"
	"github.com/ivlev/gifscrub/internal/sketch"
	"github.com/ivlev/gifscrub/internal/timeline"
)

// Sink receives finished viewport rasters. The image is reused by the
// renderer after Present returns.
type Sink interface {
	Present(img *image.RGBA) error
}

// Renderer schedules its own repaints: frame changes, camera moves, filter
// and trim changes and resizes each request one coalesced render on the
// next scheduler frame. Not safe for concurrent use.
type Renderer struct {
	clock  *playback.Clock
	filter *filter.Filter
	sched  playback.Scheduler
	sink   Sink
	sketch *sketch.Layer

	cam         CameraState
	viewport    image.Point
	sized       bool
	canvas      *image.RGBA
	background  color.RGBA
	surfaces    map[string]*image.RGBA
	surfacesGen uint64

	pending   func()
	offs      []func()
	renders   int
	destroyed bool
	log       zerolog.Logger
}

type Option func(*Renderer)

func WithLogger(l zerolog.Logger) Option {
	return func(r *Renderer) { r.log = l }
}

// WithSketch draws the layer above the frame with the same camera.
func WithSketch(l *sketch.Layer) Option {
	return func(r *Renderer) { r.sketch = l }
}

func WithBackground(c color.RGBA) Option {
	return func(r *Renderer) { r.background = c }
}

// New wires a renderer to clock and filt. The renderer owns filt from now on
// and keeps its neighbour set in sync with the clock's trim window.
func New(clock *playback.Clock, filt *filter.Filter, sched playback.Scheduler, sink Sink, opts ...Option) *Renderer {
	r := &Renderer{
		clock:      clock,
		filter:     filt,
		sched:      sched,
		sink:       sink,
		cam:        DefaultCamera(),
		background: color.RGBA{R: 32, G: 32, B: 32, A: 255},
		surfaces:   make(map[string]*image.RGBA),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.surfacesGen = filt.Generation()

	r.offs = append(r.offs,
		clock.Events.FrameChanged.On(func(*timeline.Frame) { r.RequestRender() }),
		clock.Events.TimelineChanged.On(func(tl *timeline.Timeline) {
			r.filter.UpdateTimeline(tl)
			r.RequestRender()
		}),
	)
	if r.sketch != nil {
		r.offs = append(r.offs, r.sketch.Changed.On(func(struct{}) { r.RequestRender() }))
	}
	return r
}

func (r *Renderer) Camera() CameraState { return r.cam }
func (r *Renderer) Viewport() image.Point { return r.viewport }
func (r *Renderer) Filter() *filter.Filter { return r.filter }

// Renders counts completed paints.
func (r *Renderer) Renders() int { return r.renders }

// Resize sets the viewport size. The first resize fits the frame into view.
func (r *Renderer) Resize(width, height int) {
	if r.destroyed || width <= 0 || height <= 0 {
		return
	}
	r.viewport = image.Pt(width, height)
	if r.canvas == nil || r.canvas.Rect.Dx() != width || r.canvas.Rect.Dy() != height {
		r.canvas = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	if !r.sized {
		r.sized = true
		r.cam.Zoom = FitZoom(r.frameSize(), r.viewport)
	}
	r.RequestRender()
}

// SetZoom clamps z into [MinZoom, MaxZoom].
func (r *Renderer) SetZoom(z float64) {
	if r.destroyed || math.IsNaN(z) {
		return
	}
	r.cam.Zoom = ClampZoom(z)
	r.RequestRender()
}

func (r *Renderer) AddZoom(delta float64) {
	r.SetZoom(r.cam.Zoom + delta)
}

// Wheel applies a mouse wheel delta; scrolling up zooms in.
func (r *Renderer) Wheel(deltaY float64) {
	r.AddZoom(-deltaY / WheelDivisor)
}

// SetPosition sets the pan offset in viewport pixels.
func (r *Renderer) SetPosition(x, y float64) {
	if r.destroyed || math.IsNaN(x) || math.IsNaN(y) {
		return
	}
	r.cam.X, r.cam.Y = x, y
	r.RequestRender()
}

// Drag moves the pan offset by a pointer delta.
func (r *Renderer) Drag(dx, dy float64) {
	r.SetPosition(r.cam.X+dx, r.cam.Y+dy)
}

// SetFilterOptions reconfigures the filter and repaints.
func (r *Renderer) SetFilterOptions(o filter.Options) {
	if r.destroyed {
		return
	}
	r.filter.SetOptions(o)
	r.RequestRender()
}

// ScreenToFrame maps a viewport point into frame pixels.
func (r *Renderer) ScreenToFrame(px, py float64) f64.Vec2 {
	x, y := r.cam.ToFrame(px, py, r.frameSize(), r.viewport)
	return f64.Vec2{x, y}
}

// RequestRender schedules a paint on the next frame unless one is pending.
func (r *Renderer) RequestRender() {
	if r.destroyed || r.pending != nil {
		return
	}
	r.pending = r.sched.RequestFrame(func(time.Time) {
		r.pending = nil
		if err := r.Render(); err != nil {
			r.log.Error().Err(err).Msg("render failed")
		}
	})
}

// Render paints immediately.
func (r *Renderer) Render() error {
	if r.destroyed || r.canvas == nil {
		return nil
	}
	frame := r.clock.CurrentFrame()
	if frame == nil {
		return nil
	}
	draw.Draw(r.canvas, r.canvas.Rect, image.NewUniform(r.background), image.Point{}, draw.Src)

	surface := r.surface(frame)
	m := r.cam.Matrix(r.frameSize(), r.viewport)
	r.interpolator().Transform(r.canvas, m, surface, surface.Rect, draw.Over, nil)

	if r.sketch != nil && !r.sketch.Empty() {
		doc := r.sketch.Document()
		off := r.sketch.Offset()
		sm := m
		sm[2] -= off * m[0]
		sm[5] -= off * m[4]
		r.interpolator().Transform(r.canvas, sm, doc, doc.Rect, draw.Over, nil)
	}

	r.renders++
	if r.sink == nil {
		return nil
	}
	return r.sink.Present(r.canvas)
}

// surface returns the blit-ready raster for frame, cached by frame ID until
// the filter invalidates.
func (r *Renderer) surface(frame *timeline.Frame) *image.RGBA {
	if gen := r.filter.Generation(); gen != r.surfacesGen {
		r.surfaces = make(map[string]*image.RGBA)
		r.surfacesGen = gen
	}
	if s, ok := r.surfaces[frame.ID]; ok {
		return s
	}
	s := r.filter.Apply(frame)
	r.surfaces[frame.ID] = s
	return s
}

// interpolator keeps pixels crisp when zoomed in.
func (r *Renderer) interpolator() draw.Transformer {
	if r.cam.Zoom >= 1 {
		return draw.NearestNeighbor
	}
	return draw.ApproxBiLinear
}

func (r *Renderer) frameSize() image.Point {
	tl := r.clock.Timeline()
	return image.Pt(tl.Width(), tl.Height())
}

// Destroy cancels a pending paint and unsubscribes from the clock.
func (r *Renderer) Destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	if r.pending != nil {
		r.pending()
		r.pending = nil
	}
	for _, off := range r.offs {
		off()
	}
	r.offs = nil
	r.surfaces = nil
}
