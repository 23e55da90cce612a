package timeline

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Timeline is the ordered frame store plus the trim window. Everything but
// the trim bounds is fixed at construction. A Timeline is owned by one event
// loop and is not safe for concurrent mutation.
type Timeline struct {
	id        string
	width     int
	height    int
	frames    []*Frame
	starts    []float64
	total     float64
	trimStart float64
	trimEnd   float64
	source    SourceRef
	collapsed int
}

// Option configures timeline construction.
type Option func(*buildOptions)

type buildOptions struct {
	matcher Matcher
	workers int
	id      string
	log     zerolog.Logger
}

// WithMatcher enables near-duplicate collapsing with m.
func WithMatcher(m Matcher) Option {
	return func(o *buildOptions) { o.matcher = m }
}

// WithWorkers bounds the number of parallel raster comparisons.
func WithWorkers(n int) Option {
	return func(o *buildOptions) { o.workers = n }
}

// WithID overrides the generated timeline ID.
func WithID(id string) Option {
	return func(o *buildOptions) { o.id = id }
}

// WithLogger sets the logger used for build summaries.
func WithLogger(l zerolog.Logger) Option {
	return func(o *buildOptions) { o.log = l }
}

// New builds a timeline from decoder output: validates it, collapses
// near-duplicates when a matcher is set and derives start times.
func New(ctx context.Context, d Decoded, opts ...Option) (*Timeline, error) {
	o := buildOptions{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	if len(d.Frames) == 0 {
		return nil, ErrNoFrames
	}
	w, h := d.Width, d.Height
	if w == 0 && h == 0 && d.Frames[0].Image != nil {
		w, h = d.Frames[0].Image.Rect.Dx(), d.Frames[0].Image.Rect.Dy()
	}
	for i, rf := range d.Frames {
		if rf.Image == nil {
			return nil, fmt.Errorf("frame %d: missing raster: %w", i, ErrDimensionMismatch)
		}
		if rf.Image.Rect.Dx() != w || rf.Image.Rect.Dy() != h {
			return nil, fmt.Errorf("frame %d is %dx%d, timeline is %dx%d: %w",
				i, rf.Image.Rect.Dx(), rf.Image.Rect.Dy(), w, h, ErrDimensionMismatch)
		}
	}

	raws := d.Frames
	if o.matcher != nil {
		var err error
		raws, err = Collapse(ctx, d.Frames, o.matcher, o.workers)
		if err != nil {
			return nil, fmt.Errorf("collapse duplicates: %w", err)
		}
	}

	id := o.id
	if id == "" {
		id = uuid.NewString()
	}
	t := &Timeline{
		id:        id,
		width:     w,
		height:    h,
		frames:    make([]*Frame, len(raws)),
		starts:    make([]float64, len(raws)),
		source:    d.Source,
		collapsed: len(d.Frames) - len(raws),
	}

	var acc float64
	for i, rf := range raws {
		dur := rf.Delay
		if dur < 0 || math.IsNaN(dur) {
			dur = 0
		}
		fid := rf.ID
		if fid == "" {
			fid = uuid.NewString()
		}
		t.frames[i] = &Frame{
			ID:       fid,
			Index:    i,
			Image:    rf.Image,
			Duration: dur,
			Start:    acc,
		}
		t.starts[i] = acc
		acc += dur
	}
	t.total = acc
	t.trimStart = 0
	t.trimEnd = acc

	o.log.Debug().
		Str("timeline", id).
		Int("raw", len(d.Frames)).
		Int("frames", len(raws)).
		Int("collapsed", t.collapsed).
		Float64("total_ms", acc).
		Msg("timeline built")

	return t, nil
}

func (t *Timeline) ID() string { return t.id }
func (t *Timeline) Width() int { return t.width }
func (t *Timeline) Height() int { return t.height }
func (t *Timeline) Len() int { return len(t.frames) }
func (t *Timeline) Source() SourceRef { return t.source }
func (t *Timeline) Collapsed() int { return t.collapsed }
func (t *Timeline) TotalDuration() float64 { return t.total }
func (t *Timeline) TrimStart() float64 { return t.trimStart }
func (t *Timeline) TrimEnd() float64 { return t.trimEnd }

// Frame returns the frame at index i, or nil when out of range.
func (t *Timeline) Frame(i int) *Frame {
	if i < 0 || i >= len(t.frames) {
		return nil
	}
	return t.frames[i]
}

// Frames returns the frames in display order. The slice is a copy; the
// frames are shared.
func (t *Timeline) Frames() []*Frame {
	out := make([]*Frame, len(t.frames))
	copy(out, t.frames)
	return out
}

// IndexAt returns the index of the last frame whose start is <= tm. Times
// before zero resolve to the first frame and times at or past the end to
// the last one.
func (t *Timeline) IndexAt(tm float64) int {
	i := sort.Search(len(t.starts), func(i int) bool { return t.starts[i] > tm }) - 1
	if i < 0 {
		return 0
	}
	return i
}

// FindFrameByTime resolves tm to the frame displayed at that moment.
func (t *Timeline) FindFrameByTime(tm float64) *Frame {
	return t.frames[t.IndexAt(tm)]
}

// SetTrimStart clamps v into [0, trimEnd] and reports whether it changed.
// NaN is ignored.
func (t *Timeline) SetTrimStart(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	v = clamp(v, 0, t.trimEnd)
	if v == t.trimStart {
		return false
	}
	t.trimStart = v
	return true
}

// SetTrimEnd clamps v into [trimStart, total] and reports whether it changed.
// NaN is ignored.
func (t *Timeline) SetTrimEnd(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	v = clamp(v, t.trimStart, t.total)
	if v == t.trimEnd {
		return false
	}
	t.trimEnd = v
	return true
}

// ClampTime clamps tm into the trim window.
func (t *Timeline) ClampTime(tm float64) float64 {
	return clamp(tm, t.trimStart, t.trimEnd)
}

// FrameRange returns the first and last frame indices playable inside the
// trim window. A frame is playable when its interval overlaps
// [trimStart, trimEnd); with an empty window only the frame under trimStart is.
func (t *Timeline) FrameRange() (first, last int) {
	first = t.IndexAt(t.trimStart)
	if t.trimEnd <= t.trimStart {
		return first, first
	}
	last = sort.Search(len(t.starts), func(i int) bool { return t.starts[i] >= t.trimEnd }) - 1
	if last < first {
		last = first
	}
	return first, last
}

// EligibleFrames returns the frames inside FrameRange, in order.
func (t *Timeline) EligibleFrames() []*Frame {
	first, last := t.FrameRange()
	out := make([]*Frame, last-first+1)
	copy(out, t.frames[first:last+1])
	return out
}

// InRange reports whether frame index i is inside FrameRange.
func (t *Timeline) InRange(i int) bool {
	first, last := t.FrameRange()
	return i >= first && i <= last
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
