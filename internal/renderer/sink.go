package renderer

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"sync"
	"time"

	"github.com/mattn/go-sixel"
)

// MemorySink keeps a copy of the last presented raster. Safe for concurrent
// readers while the render loop presents.
type MemorySink struct {
	mu     sync.RWMutex
	last   *image.RGBA
	frames int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Present(img *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || s.last.Rect != img.Rect {
		s.last = image.NewRGBA(img.Rect)
	}
	copy(s.last.Pix, img.Pix)
	s.frames++
	return nil
}

// Snapshot returns a private copy of the last raster, or nil before the first
// render.
func (s *MemorySink) Snapshot() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	out := image.NewRGBA(s.last.Rect)
	copy(out.Pix, s.last.Pix)
	return out
}

// Frames counts presented rasters.
func (s *MemorySink) Frames() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

// EncodePNG writes the last raster as PNG. It reports false before the first
// render.
func (s *MemorySink) EncodePNG(w io.Writer) (bool, error) {
	img := s.Snapshot()
	if img == nil {
		return false, nil
	}
	return true, png.Encode(w, img)
}

// SixelSink paints into a sixel-capable terminal, at most once per interval.
type SixelSink struct {
	w        io.Writer
	interval time.Duration
	last     time.Time
	now      func() time.Time
	buf      bytes.Buffer
	Dither   bool
}

// NewSixelSink writes to w. An interval of zero presents every frame.
func NewSixelSink(w io.Writer, interval time.Duration) *SixelSink {
	return &SixelSink{w: w, interval: interval, now: time.Now}
}

func (s *SixelSink) Present(img *image.RGBA) error {
	now := s.now()
	if s.interval > 0 && !s.last.IsZero() && now.Sub(s.last) < s.interval {
		return nil
	}
	s.last = now

	s.buf.Reset()
	// cursor home so frames overwrite each other
	s.buf.WriteString("\x1b[H")
	enc := sixel.NewEncoder(&s.buf)
	enc.Dither = s.Dither
	if err := enc.Encode(img); err != nil {
		return err
	}
	_, err := s.w.Write(s.buf.Bytes())
	return err
}

// MultiSink presents to every sink in order and returns the first error.
type MultiSink []Sink

func (m MultiSink) Present(img *image.RGBA) error {
	var first error
	for _, s := range m {
		if err := s.Present(img); err != nil && first == nil {
			first = err
		}
	}
	return first
}
