package server

import (
	"github.com/ivlev/gifscrub/internal/engine"
	"github.com/ivlev/gifscrub/internal/filter"
	"github.com/ivlev/gifscrub/internal/renderer"
	"github.com/ivlev/gifscrub/internal/timeline"
)

// Message is one event pushed on /ws/events.
type Message struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type FrameInfo struct {
	Index    int     `json:"index"`
	ID       string  `json:"id"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

type TimelineInfo struct {
	ID        string  `json:"id"`
	Source    string  `json:"source"`
	Kind      string  `json:"kind"`
	Frames    int     `json:"frames"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Total     float64 `json:"total"`
	TrimStart float64 `json:"trimStart"`
	TrimEnd   float64 `json:"trimEnd"`
	Collapsed int     `json:"collapsed"`
}

// State is the full player state sent to new subscribers and after a load.
type State struct {
	Timeline TimelineInfo         `json:"timeline"`
	Time     float64              `json:"time"`
	Frame    *FrameInfo           `json:"frame,omitempty"`
	Playing  bool                 `json:"playing"`
	Speed    float64              `json:"speed"`
	Camera   renderer.CameraState `json:"camera"`
	Filter   filter.Options       `json:"filter"`
}

func frameInfo(f *timeline.Frame) *FrameInfo {
	if f == nil {
		return nil
	}
	return &FrameInfo{Index: f.Index, ID: f.ID, Start: f.Start, Duration: f.Duration}
}

func timelineInfo(tl *timeline.Timeline) TimelineInfo {
	return TimelineInfo{
		ID:        tl.ID(),
		Source:    tl.Source().Path,
		Kind:      tl.Source().Kind,
		Frames:    tl.Len(),
		Width:     tl.Width(),
		Height:    tl.Height(),
		Total:     tl.TotalDuration(),
		TrimStart: tl.TrimStart(),
		TrimEnd:   tl.TrimEnd(),
		Collapsed: tl.Collapsed(),
	}
}

// stateOf must run on the host loop.
func stateOf(s *engine.Session) State {
	return State{
		Timeline: timelineInfo(s.Timeline),
		Time:     s.Clock.CurrentTime(),
		Frame:    frameInfo(s.Clock.CurrentFrame()),
		Playing:  s.Clock.Playing(),
		Speed:    s.Clock.Speed(),
		Camera:   s.Renderer.Camera(),
		Filter:   s.Renderer.Filter().Options(),
	}
}
