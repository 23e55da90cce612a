package renderer

import (
	"image"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ivlev/gifscrub/internal/timeline"
)

// DefaultThumbnailSize bounds the longer side of a thumbnail.
const DefaultThumbnailSize = 96

type thumbKey struct {
	id   string
	size int
}

// Thumbnails caches scaled-down frame previews for the timeline strip.
// Safe for concurrent use.
type Thumbnails struct {
	cache *lru.Cache[thumbKey, *image.NRGBA]
}

// NewThumbnails keeps at most capacity previews.
func NewThumbnails(capacity int) (*Thumbnails, error) {
	c, err := lru.New[thumbKey, *image.NRGBA](capacity)
	if err != nil {
		return nil, err
	}
	return &Thumbnails{cache: c}, nil
}

// Get returns the preview of fr fitted into a size x size box.
func (t *Thumbnails) Get(fr *timeline.Frame, size int) *image.NRGBA {
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	k := thumbKey{id: fr.ID, size: size}
	if img, ok := t.cache.Get(k); ok {
		return img
	}
	img := imaging.Fit(fr.Image, size, size, imaging.Lanczos)
	t.cache.Add(k, img)
	return img
}

func (t *Thumbnails) Len() int { return t.cache.Len() }

// Purge drops every preview, e.g. after a new file is loaded.
func (t *Thumbnails) Purge() { t.cache.Purge() }
