// Package interaction integrates pointer and hand-control deltas into the
// carousel's damped rotation, eased zoom and heart pulse.
package interaction

import (
	"math"

	"github.com/ayusman/heartreel/internal/gesture"
)

// Config tunes the integrator. Zero values are replaced by DefaultConfig.
type Config struct {
	// Damping is the per-tick velocity factor at 60 ticks per second.
	Damping float64
	// DragGain converts a normalized horizontal delta into angular velocity.
	DragGain float64
	// ZoomEase is the fraction of zoom error left after one second.
	ZoomEase float64
	// MaxStep caps the integration step in seconds.
	MaxStep float64
	// MinZoom and MaxZoom bound the camera distance.
	MinZoom float64
	MaxZoom float64
	// WheelScale multiplies wheel and pinch deltas before they reach the zoom target.
	WheelScale float64
}

// DefaultConfig returns the tuning of the original carousel.
func DefaultConfig() Config {
	return Config{
		Damping:    0.92,
		DragGain:   0.15,
		ZoomEase:   0.001,
		MaxStep:    0.05,
		MinZoom:    200,
		MaxZoom:    4500,
		WheelScale: 2.0,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Damping <= 0 || c.Damping >= 1 {
		c.Damping = d.Damping
	}
	if c.DragGain == 0 {
		c.DragGain = d.DragGain
	}
	if c.ZoomEase <= 0 || c.ZoomEase >= 1 {
		c.ZoomEase = d.ZoomEase
	}
	if c.MaxStep <= 0 {
		c.MaxStep = d.MaxStep
	}
	if c.MinZoom <= 0 || c.MaxZoom <= c.MinZoom {
		c.MinZoom, c.MaxZoom = d.MinZoom, d.MaxZoom
	}
	if c.WheelScale == 0 {
		c.WheelScale = d.WheelScale
	}
	return c
}

// Heart pulse parameters.
const (
	restScale     = 1.0
	restSpeed     = 1.0
	restAmplitude = 0.005
	heartScale    = 1.1
	heartSpeed    = 8.0
	heartAmp      = 0.05
	pulseLerp     = 0.1
)

// State is a snapshot of the integrator.
type State struct {
	Angle           float64                `json:"angle"`
	AngularVelocity float64                `json:"angular_velocity"`
	ZoomCurrent     float64                `json:"zoom_current"`
	ZoomTarget      float64                `json:"zoom_target"`
	Scale           float64                `json:"scale"`
	Elapsed         float64                `json:"elapsed"`
	HeartActive     bool                   `json:"heart_active"`
	Dragging        bool                   `json:"dragging"`
	LastPointerX    float64                `json:"last_pointer_x"`
	LastPointerY    float64                `json:"last_pointer_y"`
	LastControl     *gesture.ControlSample `json:"last_control,omitempty"`
}

// Integrator owns the interaction state. It is not safe for concurrent use;
// a single goroutine applies input and advances it.
type Integrator struct {
	cfg   Config
	state State
}

// New returns an Integrator at rest with the camera at initialZoom.
func New(cfg Config, initialZoom float64) *Integrator {
	cfg = cfg.withDefaults()
	zoom := clamp(initialZoom, cfg.MinZoom, cfg.MaxZoom)
	return &Integrator{
		cfg: cfg,
		state: State{
			ZoomCurrent: zoom,
			ZoomTarget:  zoom,
			Scale:       restScale,
		},
	}
}

// Config returns the effective configuration.
func (i *Integrator) Config() Config {
	return i.cfg
}

// State returns a copy of the current state.
func (i *Integrator) State() State {
	s := i.state
	if s.LastControl != nil {
		c := *s.LastControl
		s.LastControl = &c
	}
	return s
}

// Step advances the integrator by dt seconds. dt is capped at MaxStep;
// a zero or negative dt leaves the state untouched.
func (i *Integrator) Step(dt float64) {
	if dt <= 0 || math.IsNaN(dt) {
		return
	}
	if dt > i.cfg.MaxStep {
		dt = i.cfg.MaxStep
	}

	s := &i.state
	s.Elapsed += dt

	s.AngularVelocity *= math.Pow(i.cfg.Damping, dt*60)
	s.Angle += s.AngularVelocity

	s.ZoomCurrent += (s.ZoomTarget - s.ZoomCurrent) * (1 - math.Pow(i.cfg.ZoomEase, dt))

	speed, target, amp := restSpeed, restScale, restAmplitude
	if s.HeartActive {
		speed, target, amp = heartSpeed, heartScale, heartAmp
	}
	pulse := target + math.Sin(s.Elapsed*speed)*amp
	s.Scale = lerp(s.Scale, pulse, pulseLerp)
}

// PointerDown starts a drag at (x, y) in viewport pixels.
func (i *Integrator) PointerDown(x, y float64) {
	i.state.Dragging = true
	i.state.LastPointerX = x
	i.state.LastPointerY = y
}

// PointerMove continues a drag. The horizontal delta is normalized by
// viewportWidth. Moves without a preceding PointerDown are ignored.
func (i *Integrator) PointerMove(x, y, viewportWidth float64) {
	if !i.state.Dragging {
		return
	}
	if viewportWidth > 0 {
		dx := (x - i.state.LastPointerX) / viewportWidth
		i.state.AngularVelocity += dx * i.cfg.DragGain
	}
	i.state.LastPointerX = x
	i.state.LastPointerY = y
}

// PointerUp ends a drag.
func (i *Integrator) PointerUp() {
	i.state.Dragging = false
}

// Wheel moves the zoom target by deltaY scaled by WheelScale.
func (i *Integrator) Wheel(deltaY float64) {
	i.setZoomTarget(i.state.ZoomTarget + deltaY*i.cfg.WheelScale)
}

// Pinch moves the zoom target for a two-finger gesture. A positive
// distanceDelta (fingers spreading) zooms in.
func (i *Integrator) Pinch(distanceDelta float64) {
	i.setZoomTarget(i.state.ZoomTarget - distanceDelta*i.cfg.WheelScale)
}

// SetZoomTarget sets the zoom target directly, clamped to the zoom range.
func (i *Integrator) SetZoomTarget(z float64) {
	i.setZoomTarget(z)
}

func (i *Integrator) setZoomTarget(z float64) {
	if math.IsNaN(z) {
		return
	}
	i.state.ZoomTarget = clamp(z, i.cfg.MinZoom, i.cfg.MaxZoom)
}

// ApplyControl feeds one hand control sample. The first visible sample after
// the hand appears only seeds the reference position; later samples add
// their horizontal delta to the angular velocity. An invisible sample
// clears the seed.
func (i *Integrator) ApplyControl(c gesture.ControlSample) {
	if !c.Visible {
		i.state.LastControl = nil
		return
	}
	if last := i.state.LastControl; last != nil {
		dx := c.X - last.X
		i.state.AngularVelocity += dx * i.cfg.DragGain
	}
	i.state.LastControl = &c
}

// SetHeartActive switches the pulse between rest and heart emphasis.
func (i *Integrator) SetHeartActive(active bool) {
	i.state.HeartActive = active
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
