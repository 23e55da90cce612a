package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"

	"github.com/ivlev/gifscrub/internal/system"
	"github.com/ivlev/gifscrub/internal/timeline"
)

type VideoOptions struct {
	TrimOnly bool
	FPS      int
	// Encoder is an ffmpeg H.264 encoder; empty picks the best available.
	Encoder string
	// Quality is CRF for libx264, CQ for NVENC and hundreds of kbit/s for
	// VideoToolbox. Zero picks a per-encoder default.
	Quality int
}

// Video pipes the frames as raw RGBA into ffmpeg and writes an H.264 file.
// Each frame is repeated for as many output frames as its duration covers.
func Video(ctx context.Context, tl *timeline.Timeline, path string, opts VideoOptions) error {
	frames := tl.Frames()
	if opts.TrimOnly {
		frames = tl.EligibleFrames()
	}
	if len(frames) == 0 {
		return timeline.ErrNoFrames
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Encoder == "" {
		opts.Encoder = system.BestH264Encoder(ctx)
	}
	if opts.Quality == 0 {
		opts.Quality = defaultQuality(opts.Encoder)
	}

	args := ffmpegArgs(tl.Width(), tl.Height(), path, opts)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	writeErr := writeFrames(stdin, frames, opts.FPS)
	stdin.Close()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return writeErr
}

func writeFrames(w io.Writer, frames []*timeline.Frame, fps int) error {
	repeats := frameRepeats(frames, fps)
	for i, fr := range frames {
		for range repeats[i] {
			if _, err := w.Write(fr.Image.Pix); err != nil {
				return fmt.Errorf("write frame %d: %w", fr.Index, err)
			}
		}
	}
	return nil
}

// frameRepeats returns how many output frames each frame spans at fps.
// Boundaries are rounded on the cumulative clock so rounding errors do not
// add up; every frame is shown at least once.
func frameRepeats(frames []*timeline.Frame, fps int) []int {
	out := make([]int, len(frames))
	if len(frames) == 0 {
		return out
	}
	origin := frames[0].Start
	prev := 0
	for i, fr := range frames {
		end := int(math.Round((fr.End() - origin) * float64(fps) / 1000))
		out[i] = max(1, end-prev)
		prev = max(end, prev+out[i])
	}
	return out
}

func ffmpegArgs(w, h int, path string, opts VideoOptions) []string {
	args := []string{
		"-y", "-v", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", w, h),
		"-framerate", strconv.Itoa(opts.FPS),
		"-i", "-",
		// yuv420p needs even dimensions
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-pix_fmt", "yuv420p",
		"-c:v", opts.Encoder,
	}

	switch opts.Encoder {
	case "h264_videotoolbox":
		args = append(args, "-b:v", fmt.Sprintf("%dk", opts.Quality*100))
	case "h264_nvenc":
		args = append(args, "-cq", strconv.Itoa(opts.Quality))
	default: // libx264
		args = append(args, "-crf", strconv.Itoa(opts.Quality), "-preset", "medium")
	}
	return append(args, path)
}

func defaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75
	case "h264_nvenc":
		return 28
	default:
		return 23
	}
}
