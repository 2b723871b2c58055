// Package gesture turns detector hand frames into a pointer-like control
// signal and a debounced two-hand heart confirmation.
package gesture

import "github.com/ayusman/heartreel/internal/detector"

// DefaultHeartThreshold is the maximum image-plane distance between
// matching fingertips of the two hands for a heart pose.
const DefaultHeartThreshold = 0.15

// ControlSample is the pointer-equivalent signal derived from the primary
// hand's index fingertip, mirrored for a front-facing camera.
type ControlSample struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Visible bool    `json:"visible"`
}

// NeutralSample is reported when no hand is present.
var NeutralSample = ControlSample{X: 0.5, Y: 0.5, Visible: false}

// Reading is the normalized result of one detector frame.
type Reading struct {
	Control      ControlSample `json:"control"`
	HeartPresent bool          `json:"heart_present"`
}

// Normalizer converts detector frames into Readings.
type Normalizer struct {
	threshold float64
}

// NewNormalizer returns a Normalizer using threshold for the heart test.
// A non-positive threshold selects DefaultHeartThreshold.
func NewNormalizer(threshold float64) *Normalizer {
	if threshold <= 0 {
		threshold = DefaultHeartThreshold
	}
	return &Normalizer{threshold: threshold}
}

// Normalize derives the control sample and heart flag from f.
// A nil frame is treated as NoHands.
func (n *Normalizer) Normalize(f detector.HandFrame) Reading {
	if f == nil {
		f = detector.NoHands{}
	}

	primary, ok := detector.Primary(f)
	if !ok {
		return Reading{Control: NeutralSample}
	}

	tip := primary.Points[detector.IndexTip]
	r := Reading{
		Control: ControlSample{X: 1 - tip.X, Y: tip.Y, Visible: true},
	}

	if two, ok := f.(detector.TwoHands); ok {
		r.HeartPresent = HeartPresent(two, n.threshold)
	}

	return r
}

// HeartPresent reports whether both thumb tips and both index tips of the
// two hands are closer than threshold.
func HeartPresent(h detector.TwoHands, threshold float64) bool {
	thumbs := detector.Distance2D(h.First.Points[detector.ThumbTip], h.Second.Points[detector.ThumbTip])
	indices := detector.Distance2D(h.First.Points[detector.IndexTip], h.Second.Points[detector.IndexTip])
	return thumbs < threshold && indices < threshold
}
