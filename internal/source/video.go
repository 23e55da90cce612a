package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"

	"github.com/ivlev/gifscrub/internal/system"
	"github.com/ivlev/gifscrub/internal/timeline"
)

// VideoSource samples a video at a fixed rate through ffmpeg. All frames are
// extracted up front.
type VideoSource struct {
	path   string
	size   image.Point
	delay  float64
	frames []*image.RGBA
}

func NewVideoSource(ctx context.Context, path string, fps float64) (*VideoSource, error) {
	info, err := system.ProbeVideo(ctx, path)
	if err != nil {
		return nil, err
	}
	size := image.Pt(info.Width, info.Height)

	cmd := exec.CommandContext(ctx, "ffmpeg", "-v", "error", "-i", path,
		"-vf", "fps="+strconv.FormatFloat(fps, 'f', -1, 64),
		"-f", "rawvideo", "-pix_fmt", "rgba", "pipe:1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	frames, readErr := readRawFrames(bufio.NewReaderSize(stdout, 1<<20), size)
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("ffmpeg %s: %w: %s", path, err, bytes.TrimSpace(stderr.Bytes()))
	}
	if readErr != nil {
		return nil, readErr
	}
	return &VideoSource{path: path, size: size, delay: 1000 / fps, frames: frames}, nil
}

// readRawFrames splits a packed RGBA stream into frames until EOF. A trailing
// partial frame is an error.
func readRawFrames(r io.Reader, size image.Point) ([]*image.RGBA, error) {
	var frames []*image.RGBA
	for {
		img := image.NewRGBA(image.Rectangle{Max: size})
		_, err := io.ReadFull(r, img.Pix)
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read frame %d: %w", len(frames), err)
		}
		frames = append(frames, img)
	}
}

func (s *VideoSource) FrameCount() int { return len(s.frames) }
func (s *VideoSource) Size() image.Point { return s.size }

func (s *VideoSource) Frame(i int) (*image.RGBA, float64, error) {
	if i < 0 || i >= len(s.frames) {
		return nil, 0, fmt.Errorf("video frame %d out of range", i)
	}
	return s.frames[i], s.delay, nil
}

func (s *VideoSource) Ref() timeline.SourceRef {
	return timeline.SourceRef{Path: s.path, Kind: KindVideo}
}

func (s *VideoSource) Close() error {
	s.frames = nil
	return nil
}
