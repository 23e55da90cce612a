// Package filter derives display rasters from timeline frames: a contrast
// threshold pass and an onion-skin composite that tints and blends the
// neighbouring frames over the current one.
package filter

import (
	"context"
	"image"
	"image/color"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/gifscrub/internal/system"
	"github.com/ivlev/gifscrub/internal/timeline"
)

// Stats counts cache traffic since the last invalidation.
type Stats struct {
	ContrastHits    int
	ContrastMisses  int
	CompositeHits   int
	CompositeMisses int
}

// Filter memoizes filtered rasters by frame ID. Both caches belong to one
// consumer and are dropped wholesale on invalidation, never per entry.
// Not safe for concurrent use.
type Filter struct {
	opts     Options
	prev     color.RGBA
	next     color.RGBA
	epoch    uint64
	gen      uint64
	frames   []*timeline.Frame
	position map[string]int

	contrast  map[string]*image.RGBA
	composite map[string]*image.RGBA
	stats     Stats
	log       zerolog.Logger
}

type Option func(*Filter)

func WithLogger(l zerolog.Logger) Option {
	return func(f *Filter) { f.log = l }
}

// New creates a filter for the eligible frames of tl.
func New(opts Options, tl *timeline.Timeline, options ...Option) *Filter {
	f := &Filter{log: zerolog.Nop()}
	for _, o := range options {
		o(f)
	}
	f.setOptions(opts)
	f.UpdateTimeline(tl)
	return f
}

func (f *Filter) Options() Options { return f.opts }

// Epoch identifies the current option set.
func (f *Filter) Epoch() uint64 { return f.epoch }

// Generation changes on every cache invalidation, option or timeline driven.
func (f *Filter) Generation() uint64 { return f.gen }

func (f *Filter) Stats() Stats { return f.stats }

// SetOptions installs a new option set and drops both caches.
func (f *Filter) SetOptions(opts Options) {
	f.setOptions(opts)
	f.contrast = make(map[string]*image.RGBA)
	f.composite = make(map[string]*image.RGBA)
	f.stats = Stats{}
	f.gen++
	f.log.Debug().Uint64("epoch", f.epoch).Msg("filter options changed")
}

func (f *Filter) setOptions(opts Options) {
	f.opts = opts.Normalize()
	def := DefaultOptions()
	f.prev = mustColor(f.opts.PrevColor, def.PrevColor)
	f.next = mustColor(f.opts.NextColor, def.NextColor)
	f.epoch++
}

// UpdateTimeline recomputes the neighbour set from the trim window of tl and
// drops the composite cache. Contrast results stay valid.
func (f *Filter) UpdateTimeline(tl *timeline.Timeline) {
	f.frames = nil
	f.position = make(map[string]int)
	if tl != nil {
		f.frames = tl.EligibleFrames()
		for i, fr := range f.frames {
			f.position[fr.ID] = i
		}
	}
	if f.contrast == nil {
		f.contrast = make(map[string]*image.RGBA)
	}
	f.composite = make(map[string]*image.RGBA)
	f.gen++
}

// Eligible reports whether fr takes part in onion-skin neighbour lookups.
func (f *Filter) Eligible(fr *timeline.Frame) bool {
	_, ok := f.position[fr.ID]
	return ok
}

// Contrast returns the contrast pass of fr, or its raster when the pass is
// disabled. Results are shared and must not be modified.
func (f *Filter) Contrast(fr *timeline.Frame) *image.RGBA {
	if !f.opts.ContrastEnabled {
		return fr.Image
	}
	if img, ok := f.contrast[fr.ID]; ok {
		f.stats.ContrastHits++
		return img
	}
	f.stats.ContrastMisses++
	img := image.NewRGBA(fr.Image.Rect)
	contrastPass(img, fr.Image, f.opts.ContrastLevel)
	f.contrast[fr.ID] = img
	return img
}

// Apply returns the filtered raster for fr. With onion skin off it is the
// contrast pass; frames outside the trim window get the contrast pass too and
// are not cached as composites.
func (f *Filter) Apply(fr *timeline.Frame) *image.RGBA {
	if fr == nil {
		return nil
	}
	if !f.opts.OnionSkinEnabled {
		return f.Contrast(fr)
	}
	pos, ok := f.position[fr.ID]
	if !ok {
		return f.Contrast(fr)
	}
	if img, ok := f.composite[fr.ID]; ok {
		f.stats.CompositeHits++
		return img
	}
	f.stats.CompositeMisses++

	img := f.compose(fr, pos)
	f.composite[fr.ID] = img
	return img
}

func (f *Filter) compose(fr *timeline.Frame, pos int) *image.RGBA {
	rect := fr.Image.Rect
	dst := image.NewRGBA(rect)
	copy(dst.Pix, f.Contrast(fr).Pix)

	offscreen := system.GetImage(rect)
	defer system.PutImage(offscreen)

	n := len(f.frames)
	steps := f.opts.Steps
	for i := -steps; i <= steps; i++ {
		if i == 0 {
			continue
		}
		neighbour := f.frames[((pos+i)%n+n)%n]
		tint := f.prev
		if i > 0 {
			tint = f.next
		}
		screenFill(offscreen, f.Contrast(neighbour), tint)
		multiplyOnto(dst, offscreen, f.opts.Opacity/math.Abs(float64(i)))
	}
	return dst
}

// Prewarm computes the contrast pass of every eligible frame in parallel.
// It blocks the caller until done.
func (f *Filter) Prewarm(ctx context.Context, workers int) error {
	if !f.opts.ContrastEnabled {
		return nil
	}
	var todo []*timeline.Frame
	for _, fr := range f.frames {
		if _, ok := f.contrast[fr.ID]; !ok {
			todo = append(todo, fr)
		}
	}
	results := make([]*image.RGBA, len(todo))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	level := f.opts.ContrastLevel
	for i, fr := range todo {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img := image.NewRGBA(fr.Image.Rect)
			contrastPass(img, fr.Image, level)
			results[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, fr := range todo {
		f.contrast[fr.ID] = results[i]
	}
	f.log.Debug().Int("frames", len(todo)).Msg("contrast cache prewarmed")
	return nil
}
