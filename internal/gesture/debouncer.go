package gesture

// Debouncer latches the per-frame heart flag into a single confirmation per
// continuous hold. It re-arms only after a frame without the gesture.
type Debouncer struct {
	canTrigger bool
}

// NewDebouncer returns an armed Debouncer.
func NewDebouncer() *Debouncer {
	return &Debouncer{canTrigger: true}
}

// Observe feeds one frame's heart flag and reports whether a confirmation
// fires on this frame.
func (d *Debouncer) Observe(heartPresent bool) bool {
	if !heartPresent {
		d.canTrigger = true
		return false
	}
	if !d.canTrigger {
		return false
	}
	d.canTrigger = false
	return true
}

// CanTrigger reports whether the next heart frame would fire.
func (d *Debouncer) CanTrigger() bool {
	return d.canTrigger
}

// Reset re-arms the debouncer.
func (d *Debouncer) Reset() {
	d.canTrigger = true
}
