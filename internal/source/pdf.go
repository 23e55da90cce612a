package source

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/ivlev/gifscrub/internal/timeline"
)

// PDFSource renders document pages as frames with a fixed delay.
type PDFSource struct {
	doc   *fitz.Document
	path  string
	dpi   int
	delay float64
	size  image.Point
	first *image.RGBA
}

func NewPDFSource(path string, dpi int, delay float64) (*PDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	s := &PDFSource{doc: doc, path: path, dpi: dpi, delay: delay}
	if doc.NumPage() > 0 {
		img, err := doc.ImageDPI(0, float64(dpi))
		if err != nil {
			doc.Close()
			return nil, fmt.Errorf("render page 0: %w", err)
		}
		s.first = toRGBA(img)
		s.size = s.first.Rect.Size()
	}
	return s, nil
}

func (s *PDFSource) FrameCount() int { return s.doc.NumPage() }
func (s *PDFSource) Size() image.Point { return s.size }

// Frame renders page i on its own document handle, so pages can be rendered
// in parallel.
func (s *PDFSource) Frame(i int) (*image.RGBA, float64, error) {
	if i == 0 && s.first != nil {
		return s.first, s.delay, nil
	}
	workerDoc, err := fitz.New(s.path)
	if err != nil {
		return nil, 0, err
	}
	defer workerDoc.Close()

	img, err := workerDoc.ImageDPI(i, float64(s.dpi))
	if err != nil {
		return nil, 0, fmt.Errorf("render page %d: %w", i, err)
	}
	return fitInto(img, s.size), s.delay, nil
}

func (s *PDFSource) Ref() timeline.SourceRef {
	return timeline.SourceRef{Path: s.path, Kind: KindPDF}
}

func (s *PDFSource) Close() error {
	return s.doc.Close()
}
