package timeline

import "math"

// Snapshot is the plain-data view of a timeline kept by persistence layers.
// Rasters are never part of it.
type Snapshot struct {
	ID        string    `yaml:"id"`
	Source    SourceRef `yaml:"source"`
	Frames    int       `yaml:"frames"`
	Total     float64   `yaml:"total"`
	TrimStart float64   `yaml:"trim_start"`
	TrimEnd   float64   `yaml:"trim_end"`
}

// Snapshot captures the current trim state.
func (t *Timeline) Snapshot() Snapshot {
	return Snapshot{
		ID:        t.id,
		Source:    t.source,
		Frames:    len(t.frames),
		Total:     t.total,
		TrimStart: t.trimStart,
		TrimEnd:   t.trimEnd,
	}
}

// Matches reports whether s was taken from a timeline with the same shape.
func (t *Timeline) Matches(s Snapshot) bool {
	return s.Frames == len(t.frames) && math.Abs(s.Total-t.total) < 1e-6
}

// Restore applies the trim bounds of s when it matches this timeline.
func (t *Timeline) Restore(s Snapshot) bool {
	if !t.Matches(s) || math.IsNaN(s.TrimStart) || math.IsNaN(s.TrimEnd) {
		return false
	}
	t.trimStart = clamp(s.TrimStart, 0, t.total)
	t.trimEnd = clamp(s.TrimEnd, t.trimStart, t.total)
	return true
}
