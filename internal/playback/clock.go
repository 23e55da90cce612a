// Package playback drives a timeline: a virtual clock with play/pause, speed
// and trim-aware looping, advanced by a fixed-timestep loop.
package playback

import (
	"errors"
	"math"

	"github.com/rs/zerolog"

	"github.com/ivlev/gifscrub/internal/event"
	"github.com/ivlev/gifscrub/internal/timeline"
)

// ErrEmptyTimeline is returned when a clock is built over nothing.
var ErrEmptyTimeline = errors.New("playback: timeline has no frames")

// Events are the channels a Clock publishes on. Every event fires after the
// state it describes has been updated.
type Events struct {
	TimeChanged      event.Emitter[float64]
	FrameChanged     event.Emitter[*timeline.Frame]
	PlayingChanged   event.Emitter[bool]
	TrimStartChanged event.Emitter[float64]
	TrimEndChanged   event.Emitter[float64]
	TimelineChanged  event.Emitter[*timeline.Timeline]
	SpeedChanged     event.Emitter[float64]
}

func (e *Events) clear() {
	e.TimeChanged.Clear()
	e.FrameChanged.Clear()
	e.PlayingChanged.Clear()
	e.TrimStartChanged.Clear()
	e.TrimEndChanged.Clear()
	e.TimelineChanged.Clear()
	e.SpeedChanged.Clear()
}

// Clock owns the playback cursor of one timeline. It is not safe for
// concurrent use; drive it from a single event loop.
type Clock struct {
	Events Events

	tl        *timeline.Timeline
	loop      *Loop
	current   float64
	frame     *timeline.Frame
	playing   bool
	speed     float64
	destroyed bool
	log       zerolog.Logger
}

// Option configures a Clock.
type Option func(*Clock)

// WithSpeed sets the initial speed multiplier.
func WithSpeed(s float64) Option {
	return func(c *Clock) {
		if !math.IsNaN(s) {
			c.speed = s
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Clock) { c.log = l }
}

// WithLoop replaces the loop the clock runs on. The loop's update callback
// should call Advance.
func WithLoop(fn func(c *Clock) *Loop) Option {
	return func(c *Clock) { c.loop = fn(c) }
}

// New creates a paused clock positioned at the trim start.
func New(tl *timeline.Timeline, sched Scheduler, fps int, opts ...Option) (*Clock, error) {
	if tl == nil || tl.Len() == 0 {
		return nil, ErrEmptyTimeline
	}
	c := &Clock{
		tl:    tl,
		speed: 1,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.loop == nil {
		c.loop = NewLoop(sched, fps, c.Advance, nil)
	}
	c.current = tl.ClampTime(tl.TrimStart())
	c.frame = tl.FindFrameByTime(c.current)
	return c, nil
}

func (c *Clock) Timeline() *timeline.Timeline { return c.tl }
func (c *Clock) CurrentTime() float64 { return c.current }
func (c *Clock) CurrentFrame() *timeline.Frame { return c.frame }
func (c *Clock) Playing() bool { return c.playing }
func (c *Clock) Speed() float64 { return c.speed }
func (c *Clock) Destroyed() bool { return c.destroyed }

// Play starts the loop. Calling it while playing does nothing.
func (c *Clock) Play() {
	if c.destroyed || c.playing {
		return
	}
	c.playing = true
	c.loop.Play()
	c.log.Debug().Float64("at", c.current).Msg("play")
	c.Events.PlayingChanged.Emit(true)
}

// Pause stops the loop; no tick fires after it returns.
func (c *Clock) Pause() {
	if c.destroyed {
		return
	}
	c.loop.Stop()
	if !c.playing {
		return
	}
	c.playing = false
	c.log.Debug().Float64("at", c.current).Msg("pause")
	c.Events.PlayingChanged.Emit(false)
}

func (c *Clock) Toggle() {
	if c.playing {
		c.Pause()
	} else {
		c.Play()
	}
}

// SetCurrentTime clamps t into the trim window and moves the cursor there.
// TimeChanged always fires; FrameChanged only when the frame index changes.
func (c *Clock) SetCurrentTime(t float64) {
	if c.destroyed || math.IsNaN(t) {
		return
	}
	t = c.tl.ClampTime(t)
	prev := c.frame
	c.current = t
	c.frame = c.tl.FindFrameByTime(t)

	c.Events.TimeChanged.Emit(t)
	if prev == nil || prev.Index != c.frame.Index {
		c.Events.FrameChanged.Emit(c.frame)
	}
}

// Advance moves the cursor by elapsed real milliseconds scaled by speed,
// wrapping inside the trim window. It is the loop's update step and does
// nothing while paused or when the window is empty.
func (c *Clock) Advance(elapsed float64) {
	if c.destroyed || !c.playing || math.IsNaN(elapsed) {
		return
	}
	start := c.tl.TrimStart()
	span := c.tl.TrimEnd() - start
	if span <= 0 {
		return
	}
	c.SetCurrentTime(start + mod(c.current-start+elapsed*c.speed, span))
}

// SetSpeed stores the multiplier applied to elapsed time. Zero and negative
// values are allowed: zero holds the cursor, negative plays backwards.
func (c *Clock) SetSpeed(s float64) {
	if c.destroyed || math.IsNaN(s) || math.IsInf(s, 0) || s == c.speed {
		return
	}
	c.speed = s
	c.Events.SpeedChanged.Emit(s)
}

// SetTrimStart moves the start of the trim window and snaps the cursor into it.
func (c *Clock) SetTrimStart(v float64) {
	if c.destroyed || !c.tl.SetTrimStart(v) {
		return
	}
	c.SetCurrentTime(c.current)
	c.Events.TrimStartChanged.Emit(c.tl.TrimStart())
	c.Events.TimelineChanged.Emit(c.tl)
}

// SetTrimEnd moves the end of the trim window and snaps the cursor into it.
func (c *Clock) SetTrimEnd(v float64) {
	if c.destroyed || !c.tl.SetTrimEnd(v) {
		return
	}
	c.SetCurrentTime(c.current)
	c.Events.TrimEndChanged.Emit(c.tl.TrimEnd())
	c.Events.TimelineChanged.Emit(c.tl)
}

// PreviousFrame pauses and steps one frame back inside the trim window,
// wrapping from the first playable frame to the last.
func (c *Clock) PreviousFrame() { c.navigate(-1) }

// NextFrame pauses and steps one frame forward inside the trim window,
// wrapping from the last playable frame to the first.
func (c *Clock) NextFrame() { c.navigate(1) }

func (c *Clock) navigate(offset int) {
	if c.destroyed {
		return
	}
	c.Pause()

	first, last := c.tl.FrameRange()
	cur := c.frame.Index
	idx := cur
	// zero-length frames resolve to their successor, skip past them
	for range last - first + 1 {
		idx += offset
		if idx > last {
			idx = first
		} else if idx < first {
			idx = last
		}
		if c.tl.IndexAt(c.tl.ClampTime(c.tl.Frame(idx).Start)) != cur {
			break
		}
	}
	c.SetCurrentTime(c.tl.Frame(idx).Start)
}

// Destroy stops the loop and drops every subscriber. The clock ignores all
// commands afterwards.
func (c *Clock) Destroy() {
	if c.destroyed {
		return
	}
	c.loop.Stop()
	c.playing = false
	c.destroyed = true
	c.Events.clear()
}

// mod returns a modulo b in [0, b).
func mod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m < 0 {
		m += b
	}
	if m >= b {
		m = 0
	}
	return m
}
