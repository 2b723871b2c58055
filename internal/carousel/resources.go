package carousel

import "sync/atomic"

type resourceKind int

const (
	resourceTexture resourceKind = iota
	resourceGeometry
)

// Tracker counts live textures and geometries so scene teardown can be
// checked for leaks. A nil Tracker counts nothing.
type Tracker struct {
	textures   atomic.Int64
	geometries atomic.Int64
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Textures returns the number of live textures.
func (t *Tracker) Textures() int64 {
	if t == nil {
		return 0
	}
	return t.textures.Load()
}

// Geometries returns the number of live card geometries.
func (t *Tracker) Geometries() int64 {
	if t == nil {
		return 0
	}
	return t.geometries.Load()
}

func (t *Tracker) counter(kind resourceKind) *atomic.Int64 {
	if kind == resourceGeometry {
		return &t.geometries
	}
	return &t.textures
}

func (t *Tracker) acquire(kind resourceKind) {
	if t == nil {
		return
	}
	t.counter(kind).Add(1)
}

func (t *Tracker) release(kind resourceKind) {
	if t == nil {
		return
	}
	t.counter(kind).Add(-1)
}
