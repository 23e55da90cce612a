// Package source decodes media into full-size RGBA frames with per-frame
// delays, ready to be turned into a timeline.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/gifscrub/internal/timeline"
)

const (
	KindGIF    = "gif"
	KindVideo  = "video"
	KindImages = "images"
	KindPDF    = "pdf"
)

// ErrUnsupported is returned by Open for paths no decoder handles.
var ErrUnsupported = errors.New("source: unsupported media")

var (
	imageExts = []string{".png", ".jpg", ".jpeg"}
	videoExts = []string{".mp4", ".mov", ".webm", ".mkv", ".avi", ".m4v"}
)

// MediaExtensions lists every file extension Open accepts.
func MediaExtensions() []string {
	exts := []string{".gif", ".pdf"}
	exts = append(exts, imageExts...)
	return append(exts, videoExts...)
}

type Source interface {
	FrameCount() int
	Size() image.Point
	// Frame returns the full-size raster of frame i and its delay in
	// milliseconds. Safe for concurrent use.
	Frame(i int) (*image.RGBA, float64, error)
	Ref() timeline.SourceRef
	Close() error
}

// Options tune the decoders.
type Options struct {
	FrameDelay float64 // milliseconds per still image or PDF page
	VideoFPS   float64
	DPI        int
}

func DefaultOptions() Options {
	return Options{FrameDelay: 100, VideoFPS: 30, DPI: 150}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.FrameDelay <= 0 {
		o.FrameDelay = def.FrameDelay
	}
	if o.VideoFPS <= 0 {
		o.VideoFPS = def.VideoFPS
	}
	if o.DPI <= 0 {
		o.DPI = def.DPI
	}
	return o
}

// Kind guesses the decoder for path from its extension; directories are
// image sequences.
func Kind(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if fi.IsDir() {
		return KindImages, nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".gif":
		return KindGIF, nil
	case ext == ".pdf":
		return KindPDF, nil
	case slices.Contains(imageExts, ext):
		return KindImages, nil
	case slices.Contains(videoExts, ext):
		return KindVideo, nil
	}
	return "", fmt.Errorf("%s: %w", path, ErrUnsupported)
}

// Open picks a decoder for path.
func Open(ctx context.Context, path string, opts Options) (Source, error) {
	opts = opts.withDefaults()
	kind, err := Kind(path)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindGIF:
		return NewGIFSource(path)
	case KindPDF:
		return NewPDFSource(path, opts.DPI, opts.FrameDelay)
	case KindVideo:
		return NewVideoSource(ctx, path, opts.VideoFPS)
	default:
		return NewImageSource(path, opts.FrameDelay)
	}
}

// Decode pulls every frame of src, up to workers at a time, and assigns
// frame IDs.
func Decode(ctx context.Context, src Source, workers int) (timeline.Decoded, error) {
	n := src.FrameCount()
	if n == 0 {
		return timeline.Decoded{}, timeline.ErrNoFrames
	}
	frames := make([]timeline.RawFrame, n)

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range n {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, delay, err := src.Frame(i)
			if err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
			frames[i] = timeline.RawFrame{ID: uuid.NewString(), Image: img, Delay: delay}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return timeline.Decoded{}, err
	}

	size := src.Size()
	return timeline.Decoded{
		Width:  size.X,
		Height: size.Y,
		Frames: frames,
		Source: src.Ref(),
	}, nil
}

// toRGBA copies img into a zero-origin RGBA, returning img itself when it
// already is one.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	return dst
}

// fitInto scales img to fit size, keeping aspect ratio and centring it on a
// transparent canvas. Images already at size are only converted.
func fitInto(img image.Image, size image.Point) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == size.X && b.Dy() == size.Y {
		return toRGBA(img)
	}
	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	scale := min(float64(size.X)/float64(b.Dx()), float64(size.Y)/float64(b.Dy()))
	w := max(1, int(float64(b.Dx())*scale+0.5))
	h := max(1, int(float64(b.Dy())*scale+0.5))
	x := (size.X - w) / 2
	y := (size.Y - h) / 2
	draw.CatmullRom.Scale(dst, image.Rect(x, y, x+w, y+h), img, b, draw.Src, nil)
	return dst
}
