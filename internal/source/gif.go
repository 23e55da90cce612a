package source

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"os"

	"github.com/ivlev/gifscrub/internal/timeline"
)

// GIFSource holds a fully composited GIF. Every frame is the whole canvas as
// it looks while that frame is shown.
type GIFSource struct {
	path   string
	size   image.Point
	frames []*image.RGBA
	delays []float64
}

func NewGIFSource(path string) (*GIFSource, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := decodeGIF(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	s.path = path
	return s, nil
}

func decodeGIF(b []byte) (*GIFSource, error) {
	g, err := gif.DecodeAll(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	size := image.Pt(g.Config.Width, g.Config.Height)
	if size.X == 0 || size.Y == 0 {
		for _, fr := range g.Image {
			size.X = max(size.X, fr.Rect.Max.X)
			size.Y = max(size.Y, fr.Rect.Max.Y)
		}
	}
	bounds := image.Rectangle{Max: size}

	s := &GIFSource{size: size}
	canvas := image.NewRGBA(bounds)
	var saved *image.RGBA
	for i, fr := range g.Image {
		disposal := byte(gif.DisposalNone)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			saved = image.NewRGBA(bounds)
			copy(saved.Pix, canvas.Pix)
		}

		draw.Draw(canvas, fr.Rect.Intersect(bounds), fr, fr.Rect.Min, draw.Over)
		out := image.NewRGBA(bounds)
		copy(out.Pix, canvas.Pix)
		s.frames = append(s.frames, out)

		delay := 0.0
		if i < len(g.Delay) {
			delay = float64(g.Delay[i]) * 10
		}
		s.delays = append(s.delays, delay)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, fr.Rect.Intersect(bounds), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			copy(canvas.Pix, saved.Pix)
		}
	}
	return s, nil
}

func (s *GIFSource) FrameCount() int { return len(s.frames) }
func (s *GIFSource) Size() image.Point { return s.size }

func (s *GIFSource) Frame(i int) (*image.RGBA, float64, error) {
	if i < 0 || i >= len(s.frames) {
		return nil, 0, fmt.Errorf("gif frame %d out of range", i)
	}
	return s.frames[i], s.delays[i], nil
}

func (s *GIFSource) Ref() timeline.SourceRef {
	return timeline.SourceRef{Path: s.path, Kind: KindGIF}
}

func (s *GIFSource) Close() error { return nil }
