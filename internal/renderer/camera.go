package renderer

import (
	"image"
	"math"

	"golang.org/x/image/math/f64"
)

const (
	MinZoom = 0.02
	MaxZoom = 5.0
	// FitMargin is the gap kept around the frame when the initial zoom is fitted.
	FitMargin = 30
	// WheelDivisor converts wheel deltas into zoom steps.
	WheelDivisor = 1000.0
)

// CameraState is the pan offset (in viewport pixels) and zoom of the view.
type CameraState struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// DefaultCamera is centred at 1:1.
func DefaultCamera() CameraState {
	return CameraState{Zoom: 1}
}

// ClampZoom limits z to [MinZoom, MaxZoom].
func ClampZoom(z float64) float64 {
	return clamp(z, MinZoom, MaxZoom)
}

// FitZoom returns the zoom that fits a frame into the viewport with
// FitMargin on every side, never enlarging past 1:1.
func FitZoom(frame, viewport image.Point) float64 {
	if frame.X <= 0 || frame.Y <= 0 {
		return 1
	}
	z := math.Min(
		float64(viewport.X-FitMargin*2)/float64(frame.X),
		float64(viewport.Y-FitMargin*2)/float64(frame.Y),
	)
	return clamp(z, MinZoom, 1)
}

// Matrix maps frame pixels to viewport pixels: translate to the viewport
// centre, scale by zoom, then translate by (-w/2 + x/zoom, -h/2 + y/zoom).
func (c CameraState) Matrix(frame, viewport image.Point) f64.Aff3 {
	z := c.Zoom
	return f64.Aff3{
		z, 0, float64(viewport.X)/2 - z*float64(frame.X)/2 + c.X,
		0, z, float64(viewport.Y)/2 - z*float64(frame.Y)/2 + c.Y,
	}
}

// ToFrame maps a viewport point back into frame pixels.
func (c CameraState) ToFrame(px, py float64, frame, viewport image.Point) (float64, float64) {
	m := c.Matrix(frame, viewport)
	return (px - m[2]) / m[0], (py - m[5]) / m[4]
}

// ToViewport maps a frame point into viewport pixels.
func (c CameraState) ToViewport(fx, fy float64, frame, viewport image.Point) (float64, float64) {
	m := c.Matrix(frame, viewport)
	return m[0]*fx + m[2], m[4]*fy + m[5]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
