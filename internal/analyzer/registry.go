package analyzer

import "fmt"

// Options tune the pixel matcher. Zero values keep the defaults.
type Options struct {
	Threshold    float64
	MaxDiffRatio float64
}

// NewMatcher creates a matcher based on the specified variant
func NewMatcher(variant string, opts Options) (Matcher, error) {
	switch variant {
	case "pixel", "":
		m := NewPixelMatcher()
		if opts.Threshold > 0 {
			m.Threshold = opts.Threshold
		}
		if opts.MaxDiffRatio > 0 {
			m.MaxDiffRatio = opts.MaxDiffRatio
		}
		return m, nil
	case "exact":
		return ExactMatcher{}, nil
	case "none", "off":
		return NeverMatcher{}, nil
	default:
		return nil, fmt.Errorf("unknown matcher variant: %s", variant)
	}
}
