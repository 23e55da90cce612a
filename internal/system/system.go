package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ErrNoMedia is returned when a directory holds nothing with a wanted extension.
var ErrNoMedia = errors.New("no media files found")

// FindLatest returns the most recently modified file in dir whose extension
// (case-insensitive, with dot) is in exts.
func FindLatest(dir string, exts []string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !hasExt(f.Name(), exts) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("%s: %w", dir, ErrNoMedia)
	}
	return latestFile, nil
}

func hasExt(name string, exts []string) bool {
	return slices.Contains(exts, strings.ToLower(filepath.Ext(name)))
}

// VideoInfo is what ffprobe reports about the first video stream.
type VideoInfo struct {
	Width  int
	Height int
}

// ProbeVideo asks ffprobe for the frame size of path.
func ProbeVideo(ctx context.Context, path string) (VideoInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=width,height", "-of", "csv=p=0", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	return parseProbe(string(out))
}

func parseProbe(out string) (VideoInfo, error) {
	var info VideoInfo
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	if _, err := fmt.Sscanf(line, "%d,%d", &info.Width, &info.Height); err != nil {
		return VideoInfo{}, fmt.Errorf("parse ffprobe output %q: %w", line, err)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return VideoInfo{}, fmt.Errorf("ffprobe reported %dx%d", info.Width, info.Height)
	}
	return info, nil
}

// BestH264Encoder prefers hardware encoders that ffmpeg reports, falling
// back to libx264.
func BestH264Encoder(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	return pickEncoder(string(out))
}

func pickEncoder(list string) string {
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(list, name) {
			return name
		}
	}
	return "libx264"
}

// Memory is a snapshot of process and host memory.
type Memory struct {
	RSS            uint64  `json:"rss"`
	HostTotal      uint64  `json:"host_total"`
	HostAvailable  uint64  `json:"host_available"`
	HostUsedPct    float64 `json:"host_used_pct"`
	PoolAllocation int64   `json:"pool_allocations"`
}

// MemoryStats reads RSS of this process and host memory usage.
func MemoryStats() (Memory, error) {
	var m Memory
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return m, err
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return m, err
	}
	m.RSS = info.RSS

	vm, err := mem.VirtualMemory()
	if err != nil {
		return m, err
	}
	m.HostTotal = vm.Total
	m.HostAvailable = vm.Available
	m.HostUsedPct = vm.UsedPercent
	m.PoolAllocation = PoolAllocations()
	return m, nil
}
