package source

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/ivlev/gifscrub/internal/timeline"
)

// ImageSource plays a folder of stills (or one still) with a fixed delay.
// Every image is fitted into the size of the first one.
type ImageSource struct {
	path  string
	paths []string
	size  image.Point
	delay float64
}

func NewImageSource(path string, delay float64) (*ImageSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var paths []string
	if fi.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if slices.Contains(imageExts, strings.ToLower(filepath.Ext(entry.Name()))) {
				paths = append(paths, filepath.Join(path, entry.Name()))
			}
		}
		slices.SortFunc(paths, func(a, b string) int {
			switch {
			case naturalLess(a, b):
				return -1
			case naturalLess(b, a):
				return 1
			}
			return 0
		})
	} else {
		paths = []string{path}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%s: no images: %w", path, ErrUnsupported)
	}

	cfg, err := decodeConfig(paths[0])
	if err != nil {
		return nil, err
	}
	return &ImageSource{
		path:  path,
		paths: paths,
		size:  image.Pt(cfg.Width, cfg.Height),
		delay: delay,
	}, nil
}

func decodeConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return image.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (s *ImageSource) FrameCount() int { return len(s.paths) }
func (s *ImageSource) Size() image.Point { return s.size }

func (s *ImageSource) Frame(i int) (*image.RGBA, float64, error) {
	if i < 0 || i >= len(s.paths) {
		return nil, 0, fmt.Errorf("image %d out of range", i)
	}
	f, err := os.Open(s.paths[i])
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", s.paths[i], err)
	}
	return fitInto(img, s.size), s.delay, nil
}

func (s *ImageSource) Ref() timeline.SourceRef {
	return timeline.SourceRef{Path: s.path, Kind: KindImages}
}

func (s *ImageSource) Close() error { return nil }

var reNum = regexp.MustCompile(`\d+`)

// naturalLess orders file names so that "frame2" sorts before "frame10".
func naturalLess(a, b string) bool {
	aa := reNum.FindAllStringIndex(a, -1)
	bb := reNum.FindAllStringIndex(b, -1)
	pa, pb := 0, 0
	for i := 0; i < len(aa) && i < len(bb); i++ {
		if a[pa:aa[i][0]] != b[pb:bb[i][0]] {
			return a[pa:aa[i][0]] < b[pb:bb[i][0]]
		}
		na, _ := strconv.Atoi(a[aa[i][0]:aa[i][1]])
		nb, _ := strconv.Atoi(b[bb[i][0]:bb[i][1]])
		if na != nb {
			return na < nb
		}
		pa, pb = aa[i][1], bb[i][1]
	}
	return a < b
}
