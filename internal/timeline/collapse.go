package timeline

import (
	"context"
	"image"

	"golang.org/x/sync/errgroup"
)

// Matcher decides whether two adjacent rasters show the same picture.
type Matcher interface {
	Match(a, b *image.RGBA) bool
}

// Collapse merges runs of near-duplicate adjacent frames. The first frame of
// a run survives with its ID and raster; the delays of the whole run are
// summed into it. Comparisons run in parallel, folding is sequential.
func Collapse(ctx context.Context, raws []RawFrame, m Matcher, workers int) ([]RawFrame, error) {
	if m == nil || len(raws) < 2 {
		out := make([]RawFrame, len(raws))
		copy(out, raws)
		return out, nil
	}

	// same[i] reports raws[i] ~ raws[i+1]
	same := make([]bool, len(raws)-1)
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range same {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			same[i] = m.Match(raws[i].Image, raws[i+1].Image)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]RawFrame, 0, len(raws))
	out = append(out, raws[0])
	for i := 1; i < len(raws); i++ {
		if same[i-1] {
			out[len(out)-1].Delay += raws[i].Delay
			continue
		}
		out = append(out, raws[i])
	}
	return out, nil
}
