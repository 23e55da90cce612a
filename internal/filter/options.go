package filter

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// Options configure the screen filter. A value is treated as immutable; every
// change goes through Filter.SetOptions and starts a new cache epoch.
type Options struct {
	ContrastEnabled  bool    `yaml:"contrast_enabled" json:"contrastEnabled"`
	ContrastLevel    float64 `yaml:"contrast_level" json:"contrastLevel"`
	OnionSkinEnabled bool    `yaml:"onion_skin_enabled" json:"onionSkinEnabled"`
	PrevColor        string  `yaml:"prev_color" json:"prevColor"`
	NextColor        string  `yaml:"next_color" json:"nextColor"`
	Opacity          float64 `yaml:"opacity" json:"opacity"`
	Steps            int     `yaml:"steps" json:"steps"`
}

const MaxSteps = 10

// DefaultOptions returns the out-of-the-box settings: both passes off.
func DefaultOptions() Options {
	return Options{
		ContrastEnabled:  false,
		ContrastLevel:    0.3,
		OnionSkinEnabled: false,
		PrevColor:        "#0000ff",
		NextColor:        "#ff6a00",
		Opacity:          0.3,
		Steps:            1,
	}
}

// Normalize clamps numeric fields into range and replaces unparsable
// colours with the defaults.
func (o Options) Normalize() Options {
	def := DefaultOptions()
	if math.IsNaN(o.ContrastLevel) {
		o.ContrastLevel = def.ContrastLevel
	}
	o.ContrastLevel = math.Max(0, math.Min(1, o.ContrastLevel))
	if math.IsNaN(o.Opacity) {
		o.Opacity = def.Opacity
	}
	o.Opacity = math.Max(0, math.Min(1, o.Opacity))
	if o.Steps < 0 {
		o.Steps = 0
	}
	if o.Steps > MaxSteps {
		o.Steps = MaxSteps
	}
	if _, err := ParseHexColor(o.PrevColor); err != nil {
		o.PrevColor = def.PrevColor
	}
	if _, err := ParseHexColor(o.NextColor); err != nil {
		o.NextColor = def.NextColor
	}
	return o
}

// ParseHexColor parses #rgb and #rrggbb colours.
func ParseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(h) {
	case 3:
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	case 6:
	default:
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

func mustColor(s, fallback string) color.RGBA {
	c, err := ParseHexColor(s)
	if err != nil {
		c, _ = ParseHexColor(fallback)
	}
	return c
}
