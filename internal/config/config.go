// Package config loads the player settings from a YAML file. Command-line
// flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/gifscrub/internal/analyzer"
	"github.com/ivlev/gifscrub/internal/filter"
)

type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type Config struct {
	Input              string         `yaml:"input"`
	InputDir           string         `yaml:"input_dir"`
	FPS                int            `yaml:"fps"`
	Workers            int            `yaml:"workers"`
	Speed              float64        `yaml:"speed"`
	CollapseDuplicates bool           `yaml:"collapse_duplicates"`
	Matcher            string         `yaml:"matcher"`
	MatchThreshold     float64        `yaml:"match_threshold"`
	MatchMaxDiff       float64        `yaml:"match_max_diff"`
	FrameDelayMS       float64        `yaml:"frame_delay_ms"`
	VideoFPS           float64        `yaml:"video_fps"`
	DPI                int            `yaml:"dpi"`
	Viewport           Viewport       `yaml:"viewport"`
	Filter             filter.Options `yaml:"filter"`
	StateDir           string         `yaml:"state_dir"`
	Addr               string         `yaml:"addr"`
	Watch              bool           `yaml:"watch"`
	ThumbSize          int            `yaml:"thumb_size"`
	ThumbCache         int            `yaml:"thumb_cache"`
	LogLevel           string         `yaml:"log_level"`
}

func Default() Config {
	return Config{
		InputDir:           "input",
		FPS:                60,
		Workers:            runtime.NumCPU(),
		Speed:              1,
		CollapseDuplicates: true,
		Matcher:            "pixel",
		MatchThreshold:     analyzer.DefaultThreshold,
		MatchMaxDiff:       analyzer.DefaultMaxDiffRatio,
		FrameDelayMS:       100,
		VideoFPS:           30,
		DPI:                150,
		Viewport:           Viewport{Width: 960, Height: 540},
		Filter:             filter.DefaultOptions(),
		StateDir:           filepath.Join(xdg.StateHome, "gifscrub"),
		ThumbSize:          96,
		ThumbCache:         256,
		LogLevel:           "info",
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate clamps numeric settings into workable ranges and rejects values
// that cannot be repaired.
func (c *Config) Validate() error {
	def := Default()
	if c.FPS <= 0 || c.FPS > 240 {
		c.FPS = def.FPS
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.FrameDelayMS <= 0 {
		c.FrameDelayMS = def.FrameDelayMS
	}
	if c.VideoFPS <= 0 {
		c.VideoFPS = def.VideoFPS
	}
	if c.DPI <= 0 {
		c.DPI = def.DPI
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		c.Viewport = def.Viewport
	}
	if c.ThumbSize <= 0 {
		c.ThumbSize = def.ThumbSize
	}
	if c.ThumbCache <= 0 {
		c.ThumbCache = def.ThumbCache
	}
	c.Filter = c.Filter.Normalize()

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if _, err := analyzer.NewMatcher(c.Matcher, analyzer.Options{}); err != nil {
		return fmt.Errorf("matcher: %w", err)
	}
	return nil
}

// MatcherOptions returns the thresholds for analyzer.NewMatcher.
func (c Config) MatcherOptions() analyzer.Options {
	return analyzer.Options{Threshold: c.MatchThreshold, MaxDiffRatio: c.MatchMaxDiff}
}

func (c Config) Save(path string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o644)
}
