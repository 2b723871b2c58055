// Package render drives the per-tick carousel update: it applies queued
// input and hand readings to the interaction state, advances it by the
// elapsed wall time, and hands the result to a Renderer.
package render

import (
	"time"

	"github.com/ayusman/heartreel/internal/gesture"
)

// Viewport is the drawable size in pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Aspect returns width over height, or 1 for an empty viewport.
func (v Viewport) Aspect() float64 {
	if v.Width <= 0 || v.Height <= 0 {
		return 1
	}
	return float64(v.Width) / float64(v.Height)
}

// FrameState is everything a renderer needs to draw one frame of the
// carousel group. Card transforms are fixed per scene and not repeated here.
type FrameState struct {
	Sequence uint64    `json:"seq"`
	Time     time.Time `json:"time"`
	Viewport Viewport  `json:"viewport"`

	// Rotation of the card group about the vertical axis, in radians.
	Angle float64 `json:"angle"`
	// Camera distance from the group centre.
	Zoom  float64 `json:"zoom"`
	Scale float64 `json:"scale"`

	Control       gesture.ControlSample `json:"control"`
	HeartPresent  bool                  `json:"heart_present"`
	Confirmations uint64                `json:"confirmations"`
	Dragging      bool                  `json:"dragging"`
}

// Renderer draws frames. Render is called from the loop goroutine once per
// tick and must not block for long.
type Renderer interface {
	Resize(Viewport)
	Render(FrameState) error
}

// Discard is a Renderer that draws nothing.
var Discard Renderer = discard{}

type discard struct{}

func (discard) Resize(Viewport)         {}
func (discard) Render(FrameState) error { return nil }

// EventKind identifies a device input event.
type EventKind string

const (
	EventPointerDown EventKind = "pointer_down"
	EventPointerMove EventKind = "pointer_move"
	EventPointerUp   EventKind = "pointer_up"
	EventWheel       EventKind = "wheel"
	EventPinch       EventKind = "pinch"
	EventResize      EventKind = "resize"
	// EventZoomTo sets the zoom target to Delta, used when a scene is rebuilt.
	EventZoomTo EventKind = "zoom_to"
)

// Event is one raw input event. X and Y are pointer coordinates in
// viewport pixels; Delta carries wheel, pinch and zoom amounts.
type Event struct {
	Kind     EventKind `json:"type"`
	X        float64   `json:"x,omitempty"`
	Y        float64   `json:"y,omitempty"`
	Delta    float64   `json:"delta,omitempty"`
	Viewport Viewport  `json:"viewport,omitempty"`
}
