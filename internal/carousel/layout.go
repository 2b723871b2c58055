// Package carousel builds the cylindrical card carousel: card placement,
// rounded photo and frame textures, and the scene that owns them.
package carousel

import (
	"math"

	"github.com/golang/geo/r3"
)

// Placement is the fixed transform of one card on the cylinder.
type Placement struct {
	Index    int       `json:"index"`
	Angle    float64   `json:"angle"`
	Position r3.Vector `json:"position"`
	LookAt   r3.Vector `json:"look_at"`
}

// Yaw returns the rotation about the Y axis that points the card's normal
// at LookAt.
func (p Placement) Yaw() float64 {
	d := p.LookAt.Sub(p.Position)
	return math.Atan2(d.X, d.Z)
}

// Place positions card index of count on a cylinder of the given radius.
// Cards are spaced evenly by angle, ripple vertically with four lobes per
// turn, and face away from the axis.
func Place(index, count int, radius, heightAmplitude float64) Placement {
	if count <= 0 {
		return Placement{Index: index}
	}

	angle := 2 * math.Pi * float64(index) / float64(count)
	pos := r3.Vector{
		X: math.Sin(angle) * radius,
		Y: math.Sin(4*angle) * heightAmplitude,
		Z: math.Cos(angle) * radius,
	}

	return Placement{
		Index:    index,
		Angle:    angle,
		Position: pos,
		LookAt:   r3.Vector{X: 2 * pos.X, Y: pos.Y, Z: 2 * pos.Z},
	}
}

// Layout places count cards.
func Layout(count int, radius, heightAmplitude float64) []Placement {
	out := make([]Placement, count)
	for i := range out {
		out[i] = Place(i, count, radius, heightAmplitude)
	}
	return out
}

// Profile groups the size constants that depend on the viewport.
type Profile struct {
	Mobile      bool    `json:"mobile"`
	Radius      float64 `json:"radius"`
	Box         Size    `json:"box"`
	InitialZoom float64 `json:"initial_zoom"`
}

// DefaultBreakpoint is the viewport width below which the compact profile is used.
const DefaultBreakpoint = 768

// ProfileFor picks the layout profile for a viewport width.
func ProfileFor(viewportWidth, breakpoint int) Profile {
	if breakpoint <= 0 {
		breakpoint = DefaultBreakpoint
	}
	if viewportWidth > 0 && viewportWidth < breakpoint {
		return Profile{Mobile: true, Radius: 900, Box: Size{W: 320, H: 240}, InitialZoom: 2400}
	}
	return Profile{Radius: 1200, Box: Size{W: 420, H: 315}, InitialZoom: 2000}
}
