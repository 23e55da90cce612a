// Package export writes a timeline out as a zip of PNG stills, an animated
// GIF or an H.264 video encoded by ffmpeg.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"
	"image/png"
	"io"
	"math"

	"github.com/soniakeys/quant/median"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/gifscrub/internal/timeline"
)

// FrameName is the zip entry name of frame i.
func FrameName(i int) string {
	return fmt.Sprintf("%03d.png", i)
}

// Zip encodes every frame of tl as PNG, up to workers at a time, and writes
// them to w in frame order.
func Zip(ctx context.Context, tl *timeline.Timeline, w io.Writer, workers int) error {
	frames := tl.Frames()
	encoded := make([][]byte, len(frames))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, fr := range frames {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := png.Encode(&buf, fr.Image); err != nil {
				return fmt.Errorf("encode frame %d: %w", fr.Index, err)
			}
			encoded[i] = buf.Bytes()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	for i, fr := range frames {
		// PNG is already deflated
		f, err := zw.CreateHeader(&zip.FileHeader{Name: FrameName(fr.Index), Method: zip.Store})
		if err != nil {
			return err
		}
		if _, err := f.Write(encoded[i]); err != nil {
			return err
		}
	}
	return zw.Close()
}

type GIFOptions struct {
	// TrimOnly exports the frames of the trim window instead of all.
	TrimOnly bool
	// Adaptive builds a median-cut palette per frame instead of Plan9.
	Adaptive bool
}

// GIF writes the timeline as an endlessly looping animated GIF with
// Floyd-Steinberg dithering.
func GIF(ctx context.Context, tl *timeline.Timeline, w io.Writer, opts GIFOptions) error {
	frames := tl.Frames()
	if opts.TrimOnly {
		frames = tl.EligibleFrames()
	}
	if len(frames) == 0 {
		return timeline.ErrNoFrames
	}

	out := &gif.GIF{Config: image.Config{Width: tl.Width(), Height: tl.Height()}}
	for _, fr := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		out.Image = append(out.Image, quantize(fr.Image, opts.Adaptive))
		out.Delay = append(out.Delay, int(math.Round(fr.Duration/10)))
		out.Disposal = append(out.Disposal, gif.DisposalNone)
	}
	return gif.EncodeAll(w, out)
}

func quantize(img *image.RGBA, adaptive bool) *image.Paletted {
	var p *image.Paletted
	if adaptive {
		p = median.Quantizer(256).Paletted(img)
	} else {
		p = image.NewPaletted(img.Rect, palette.Plan9)
	}
	draw.FloydSteinberg.Draw(p, img.Rect, img, img.Rect.Min)
	return p
}
