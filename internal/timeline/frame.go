// Package timeline holds decoded frames as an immutable, time-indexed
// sequence plus the mutable trim window playback is constrained to.
package timeline

import (
	"errors"
	"image"
)

var (
	// ErrNoFrames is returned when a decode produced nothing to play.
	ErrNoFrames = errors.New("timeline: no frames")
	// ErrDimensionMismatch is returned when a raster does not match the timeline size.
	ErrDimensionMismatch = errors.New("timeline: frame dimensions differ from timeline")
)

// Frame is one decoded still. Frames are never mutated after the timeline
// that owns them is built.
type Frame struct {
	ID       string
	Index    int
	Image    *image.RGBA
	Duration float64 // milliseconds
	Start    float64 // sum of the durations of all earlier frames
}

// End is the exclusive end of the frame's display interval.
func (f *Frame) End() float64 {
	return f.Start + f.Duration
}

// Contains reports whether t falls inside [Start, End).
func (f *Frame) Contains(t float64) bool {
	return t >= f.Start && t < f.End()
}

// SourceRef points back at the encoded media a timeline came from.
type SourceRef struct {
	Path string `yaml:"path"`
	Kind string `yaml:"kind"` // gif, video, images, pdf
}

// RawFrame is one decoder output in display order.
type RawFrame struct {
	ID    string
	Image *image.RGBA
	Delay float64 // milliseconds
}

// Decoded is everything a decoder hands over to build a timeline.
type Decoded struct {
	Width  int
	Height int
	Frames []RawFrame
	Source SourceRef
}
