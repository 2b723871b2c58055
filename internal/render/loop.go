package render

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/heartreel/internal/gesture"
	"github.com/ayusman/heartreel/internal/interaction"
)

const (
	eventBuffer   = 256
	readingBuffer = 32

	// sendWait bounds how long Send blocks for room in a full queue.
	sendWait = 250 * time.Millisecond
)

// Options configures a Loop.
type Options struct {
	// FPS is the tick rate of Run. Zero means 60.
	FPS         int
	Interaction interaction.Config
	InitialZoom float64
	Viewport    Viewport

	// OnHeartConfirmed is called on the loop goroutine each time a heart
	// hold is confirmed. It must not block.
	OnHeartConfirmed func(count uint64)
	// OnResize is called on the loop goroutine after the viewport changes.
	OnResize func(Viewport)
}

// Loop owns the interaction state. Input events and hand readings are
// queued from any goroutine and applied at the start of the next tick, so
// only the loop goroutine ever touches the integrator and debouncer.
type Loop struct {
	opts     Options
	renderer Renderer
	logger   *slog.Logger

	events   chan Event
	readings chan gesture.Reading
	gestures atomic.Bool

	integ     *interaction.Integrator
	debouncer *gesture.Debouncer
	reading   gesture.Reading
	viewport  Viewport
	lastTick  time.Time
	seq       uint64
	confirmed uint64

	mu   sync.RWMutex
	last FrameState
}

// NewLoop returns a Loop drawing to renderer.
func NewLoop(opts Options, renderer Renderer, logger *slog.Logger) *Loop {
	if opts.FPS <= 0 {
		opts.FPS = 60
	}
	if renderer == nil {
		renderer = Discard
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &Loop{
		opts:      opts,
		renderer:  renderer,
		logger:    logger.With("component", "render"),
		events:    make(chan Event, eventBuffer),
		readings:  make(chan gesture.Reading, readingBuffer),
		integ:     interaction.New(opts.Interaction, opts.InitialZoom),
		debouncer: gesture.NewDebouncer(),
		reading:   gesture.Reading{Control: gesture.NeutralSample},
		viewport:  opts.Viewport,
	}
	l.gestures.Store(true)
	l.last = l.frame(time.Time{})
	return l
}

// Send queues an input event. A pointer move is dropped when the queue is
// full, since the next move carries the newer position. Every other event
// waits up to sendWait for room and is dropped only if the loop has stalled.
func (l *Loop) Send(ev Event) bool {
	select {
	case l.events <- ev:
		return true
	default:
	}
	if ev.Kind == EventPointerMove {
		l.logger.Debug("input queue full, dropping pointer move")
		return false
	}

	timer := time.NewTimer(sendWait)
	defer timer.Stop()
	select {
	case l.events <- ev:
		return true
	case <-timer.C:
		l.logger.Warn("input queue stalled, dropping event", "kind", ev.Kind)
		return false
	}
}

// SendReading queues a hand reading, dropping it if the queue is full.
func (l *Loop) SendReading(r gesture.Reading) bool {
	select {
	case l.readings <- r:
		return true
	default:
		return false
	}
}

// SetGestureEnabled turns hand control on or off. While off, readings are
// consumed but treated as if no hand were present.
func (l *Loop) SetGestureEnabled(enabled bool) {
	l.gestures.Store(enabled)
}

// GestureEnabled reports whether hand control is on.
func (l *Loop) GestureEnabled() bool {
	return l.gestures.Load()
}

// Snapshot returns the last rendered frame state. Safe for concurrent use.
func (l *Loop) Snapshot() FrameState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// Run ticks at the configured rate until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(l.opts.FPS))
	defer ticker.Stop()

	l.renderer.Resize(l.viewport)
	l.logger.Info("render loop started", "fps", l.opts.FPS)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("render loop stopped")
			return nil
		case now := <-ticker.C:
			l.Tick(now)
		}
	}
}

// Tick runs one frame at wall time now: queued input first, then queued
// readings, then the integrator step and the draw call. The first tick
// only establishes the time base.
func (l *Loop) Tick(now time.Time) FrameState {
	l.drainEvents()
	l.drainReadings()

	var dt float64
	if !l.lastTick.IsZero() {
		dt = now.Sub(l.lastTick).Seconds()
	}
	l.lastTick = now

	l.integ.SetHeartActive(l.reading.HeartPresent)
	l.integ.Step(dt)

	l.seq++
	fs := l.frame(now)
	if err := l.renderer.Render(fs); err != nil {
		l.logger.Warn("render failed", "seq", fs.Sequence, "err", err)
	}

	l.mu.Lock()
	l.last = fs
	l.mu.Unlock()

	return fs
}

func (l *Loop) drainEvents() {
	for {
		select {
		case ev := <-l.events:
			l.apply(ev)
		default:
			return
		}
	}
}

func (l *Loop) drainReadings() {
	for {
		select {
		case r := <-l.readings:
			l.observe(r)
		default:
			return
		}
	}
}

func (l *Loop) apply(ev Event) {
	switch ev.Kind {
	case EventPointerDown:
		l.integ.PointerDown(ev.X, ev.Y)
	case EventPointerMove:
		l.integ.PointerMove(ev.X, ev.Y, float64(l.viewport.Width))
	case EventPointerUp:
		l.integ.PointerUp()
	case EventWheel:
		l.integ.Wheel(ev.Delta)
	case EventPinch:
		l.integ.Pinch(ev.Delta)
	case EventZoomTo:
		l.integ.SetZoomTarget(ev.Delta)
	case EventResize:
		if ev.Viewport.Width <= 0 || ev.Viewport.Height <= 0 || ev.Viewport == l.viewport {
			return
		}
		l.viewport = ev.Viewport
		l.renderer.Resize(ev.Viewport)
		if l.opts.OnResize != nil {
			l.opts.OnResize(ev.Viewport)
		}
	default:
		l.logger.Debug("unknown input event", "kind", ev.Kind)
	}
}

// observe applies one hand reading. Every reading reaches the debouncer so
// a short release between ticks still re-arms it.
func (l *Loop) observe(r gesture.Reading) {
	if !l.gestures.Load() {
		r = gesture.Reading{Control: gesture.NeutralSample}
	}
	l.reading = r
	l.integ.ApplyControl(r.Control)

	if l.debouncer.Observe(r.HeartPresent) {
		l.confirmed++
		l.logger.Info("heart confirmed", "count", l.confirmed)
		if l.opts.OnHeartConfirmed != nil {
			l.opts.OnHeartConfirmed(l.confirmed)
		}
	}
}

func (l *Loop) frame(now time.Time) FrameState {
	s := l.integ.State()
	return FrameState{
		Sequence:      l.seq,
		Time:          now,
		Viewport:      l.viewport,
		Angle:         s.Angle,
		Zoom:          s.ZoomCurrent,
		Scale:         s.Scale,
		Control:       l.reading.Control,
		HeartPresent:  l.reading.HeartPresent,
		Confirmations: l.confirmed,
		Dragging:      s.Dragging,
	}
}
