package capture

import "time"

// Cadence is the detection rate chosen by a Gate.
type Cadence struct {
	Active bool
	FPS    int
}

// Interval returns the time between frames at this cadence.
func (c Cadence) Interval() time.Duration {
	if c.FPS <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(c.FPS)
}

// Gate switches between an idle and an active frame rate. Motion switches
// to active at once; the gate falls back to idle after IdleTimeout without
// motion.
type Gate struct {
	IdleFPS     int
	ActiveFPS   int
	IdleTimeout time.Duration

	active     bool
	lastMotion time.Time
}

// Current returns the cadence without observing a frame.
func (g *Gate) Current() Cadence {
	if g.active {
		return Cadence{Active: true, FPS: g.ActiveFPS}
	}
	return Cadence{FPS: g.IdleFPS}
}

// Observe records whether the frame at now moved and returns the resulting
// cadence and whether it changed.
func (g *Gate) Observe(motion bool, now time.Time) (Cadence, bool) {
	was := g.active
	switch {
	case motion:
		g.lastMotion = now
		g.active = true
	case g.active && now.Sub(g.lastMotion) > g.IdleTimeout:
		g.active = false
	}
	return g.Current(), was != g.active
}

// KeepAlive postpones the idle fallback while the gate is active. A hand
// held still in front of the camera barely changes the frame.
func (g *Gate) KeepAlive(now time.Time) {
	if g.active {
		g.lastMotion = now
	}
}
