package server

import (
	"errors"
	"fmt"

	"github.com/ivlev/gifscrub/internal/engine"
	"github.com/ivlev/gifscrub/internal/filter"
	"github.com/ivlev/gifscrub/internal/sketch"
)

var ErrUnknownCommand = errors.New("server: unknown command")

// Command is one request on /ws/control. Which fields matter depends on Cmd.
type Command struct {
	Cmd    string          `json:"cmd"`
	Value  float64         `json:"value,omitempty"`
	X      float64         `json:"x,omitempty"`
	Y      float64         `json:"y,omitempty"`
	ToX    float64         `json:"toX,omitempty"`
	ToY    float64         `json:"toY,omitempty"`
	Tool   string          `json:"tool,omitempty"`
	Path   string          `json:"path,omitempty"`
	Filter *filter.Options `json:"filter,omitempty"`
}

// Reply answers every Command.
type Reply struct {
	Type  string `json:"type"`
	Cmd   string `json:"cmd"`
	Error string `json:"error,omitempty"`
	State *State `json:"state,omitempty"`
}

// apply runs cmd against the session. Must run on the host loop.
func apply(e *engine.Engine, s *engine.Session, cmd Command) error {
	switch cmd.Cmd {
	case "play":
		s.Clock.Play()
	case "pause":
		s.Clock.Pause()
	case "toggle":
		s.Clock.Toggle()
	case "seek":
		s.Clock.SetCurrentTime(cmd.Value)
	case "speed":
		s.Clock.SetSpeed(cmd.Value)
	case "trimStart":
		s.Clock.SetTrimStart(cmd.Value)
	case "trimEnd":
		s.Clock.SetTrimEnd(cmd.Value)
	case "prev":
		s.Clock.PreviousFrame()
	case "next":
		s.Clock.NextFrame()
	case "zoom":
		s.Renderer.SetZoom(cmd.Value)
	case "wheel":
		s.Renderer.Wheel(cmd.Value)
	case "pan":
		s.Renderer.SetPosition(cmd.X, cmd.Y)
	case "drag":
		s.Renderer.Drag(cmd.X, cmd.Y)
	case "filter":
		if cmd.Filter == nil {
			return fmt.Errorf("filter: missing options")
		}
		return e.SetFilterOptions(*cmd.Filter)
	case "stroke":
		tool, ok := sketch.ParseTool(cmd.Tool)
		if !ok {
			return fmt.Errorf("stroke: unknown tool %q", cmd.Tool)
		}
		// stroke coordinates are viewport pixels
		from := s.Renderer.ScreenToFrame(cmd.X, cmd.Y)
		to := s.Renderer.ScreenToFrame(cmd.ToX, cmd.ToY)
		s.Sketch.Stroke(tool, from, to)
	case "clearSketch":
		s.Sketch.Clear()
	case "state":
	default:
		return fmt.Errorf("%q: %w", cmd.Cmd, ErrUnknownCommand)
	}
	return nil
}
