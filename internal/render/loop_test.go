package render

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/heartreel/internal/gesture"
	"github.com/ayusman/heartreel/internal/interaction"
)

type recorder struct {
	mu      sync.Mutex
	frames  []FrameState
	resizes []Viewport
	err     error
}

func (r *recorder) Resize(v Viewport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resizes = append(r.resizes, v)
}

func (r *recorder) Render(fs FrameState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, fs)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

var t0 = time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)

const tick = time.Second / 60

func newTestLoop(rec *recorder, opts Options) *Loop {
	if opts.Viewport == (Viewport{}) {
		opts.Viewport = Viewport{Width: 1000, Height: 800}
	}
	if opts.InitialZoom == 0 {
		opts.InitialZoom = 2000
	}
	return NewLoop(opts, rec, nil)
}

func visible(x float64) gesture.Reading {
	return gesture.Reading{Control: gesture.ControlSample{X: x, Y: 0.5, Visible: true}}
}

func TestLoop_FirstTickEstablishesTimeBase(t *testing.T) {
	rec := &recorder{}
	l := newTestLoop(rec, Options{})

	l.Send(Event{Kind: EventWheel, Delta: 100})
	fs := l.Tick(t0)

	if fs.Sequence != 1 {
		t.Errorf("Sequence = %d, want 1", fs.Sequence)
	}
	if fs.Zoom != 2000 {
		t.Errorf("Zoom = %v, want 2000 (no step on first tick)", fs.Zoom)
	}

	fs = l.Tick(t0.Add(tick))
	if fs.Zoom <= 2000 || fs.Zoom >= 2200 {
		t.Errorf("Zoom = %v, want strictly between 2000 and 2200", fs.Zoom)
	}
	if rec.count() != 2 {
		t.Errorf("Render called %d times, want 2", rec.count())
	}
}

func TestLoop_PointerDragRotates(t *testing.T) {
	rec := &recorder{}
	l := newTestLoop(rec, Options{})
	l.Tick(t0)

	l.Send(Event{Kind: EventPointerDown, X: 100, Y: 100})
	l.Send(Event{Kind: EventPointerMove, X: 300, Y: 100})
	l.Send(Event{Kind: EventPointerUp})
	fs := l.Tick(t0.Add(tick))

	// dx = 200/1000, velocity 0.03, damped once before being added to the angle.
	want := 0.2 * 0.15 * 0.92
	if math.Abs(fs.Angle-want) > 1e-9 {
		t.Errorf("Angle = %v, want %v", fs.Angle, want)
	}
	if fs.Dragging {
		t.Error("Dragging should be false after pointer up")
	}
}

func TestLoop_HandControlSeedGuard(t *testing.T) {
	rec := &recorder{}
	l := newTestLoop(rec, Options{})
	l.Tick(t0)

	l.SendReading(visible(0.3))
	fs := l.Tick(t0.Add(tick))
	if fs.Angle != 0 {
		t.Errorf("Angle after seed = %v, want 0", fs.Angle)
	}
	if !fs.Control.Visible {
		t.Error("Control should be visible")
	}

	l.SendReading(visible(0.4))
	fs = l.Tick(t0.Add(2 * tick))
	want := 0.1 * 0.15 * 0.92
	if math.Abs(fs.Angle-want) > 1e-9 {
		t.Errorf("Angle = %v, want %v", fs.Angle, want)
	}
}

func TestLoop_StaleReadingIsReused(t *testing.T) {
	rec := &recorder{}
	l := newTestLoop(rec, Options{})
	l.Tick(t0)

	l.SendReading(gesture.Reading{Control: gesture.ControlSample{X: 0.7, Y: 0.2, Visible: true}, HeartPresent: true})
	l.Tick(t0.Add(tick))
	fs := l.Tick(t0.Add(2 * tick))

	if !fs.HeartPresent || fs.Control.X != 0.7 {
		t.Errorf("frame without a new reading should keep the last one, got %+v", fs.Control)
	}
}

func TestLoop_HeartConfirmedOncePerHold(t *testing.T) {
	var fired []uint64
	rec := &recorder{}
	l := newTestLoop(rec, Options{
		OnHeartConfirmed: func(n uint64) { fired = append(fired, n) },
	})

	heart := gesture.Reading{Control: gesture.NeutralSample, HeartPresent: true}
	none := gesture.Reading{Control: gesture.NeutralSample}

	seq := []gesture.Reading{heart, heart, heart, none, heart, heart, none, none, heart}
	now := t0
	for _, r := range seq {
		l.SendReading(r)
		l.Tick(now)
		now = now.Add(tick)
	}

	if len(fired) != 3 {
		t.Fatalf("HeartConfirmed fired %d times, want 3", len(fired))
	}
	if fired[2] != 3 {
		t.Errorf("last confirmation count = %d, want 3", fired[2])
	}
	if got := l.Snapshot().Confirmations; got != 3 {
		t.Errorf("Snapshot().Confirmations = %d, want 3", got)
	}
}

func TestLoop_ReleaseBetweenTicksRearms(t *testing.T) {
	count := 0
	l := newTestLoop(&recorder{}, Options{OnHeartConfirmed: func(uint64) { count++ }})

	heart := gesture.Reading{Control: gesture.NeutralSample, HeartPresent: true}
	none := gesture.Reading{Control: gesture.NeutralSample}

	// All three arrive before the same tick.
	l.SendReading(heart)
	l.SendReading(none)
	l.SendReading(heart)
	l.Tick(t0)

	if count != 2 {
		t.Errorf("HeartConfirmed fired %d times, want 2", count)
	}
}

func TestLoop_GestureDisabled(t *testing.T) {
	count := 0
	l := newTestLoop(&recorder{}, Options{OnHeartConfirmed: func(uint64) { count++ }})
	l.SetGestureEnabled(false)
	if l.GestureEnabled() {
		t.Fatal("GestureEnabled() should be false")
	}

	l.SendReading(gesture.Reading{Control: gesture.ControlSample{X: 0.2, Visible: true}, HeartPresent: true})
	fs := l.Tick(t0)

	if count != 0 {
		t.Error("heart should not confirm while gestures are disabled")
	}
	if fs.Control.Visible || fs.HeartPresent {
		t.Errorf("disabled reading should be neutral, got %+v", fs)
	}
}

func TestLoop_Resize(t *testing.T) {
	rec := &recorder{}
	var seen []Viewport
	l := newTestLoop(rec, Options{OnResize: func(v Viewport) { seen = append(seen, v) }})

	l.Send(Event{Kind: EventResize, Viewport: Viewport{Width: 600, Height: 900}})
	l.Send(Event{Kind: EventResize, Viewport: Viewport{Width: 600, Height: 900}})
	l.Send(Event{Kind: EventResize, Viewport: Viewport{Width: 0, Height: 900}})
	fs := l.Tick(t0)

	if fs.Viewport != (Viewport{Width: 600, Height: 900}) {
		t.Errorf("Viewport = %+v", fs.Viewport)
	}
	if len(rec.resizes) != 1 || len(seen) != 1 {
		t.Errorf("resizes = %d, callbacks = %d, want 1 each", len(rec.resizes), len(seen))
	}

	// Pointer deltas are normalized by the new width.
	l.Send(Event{Kind: EventPointerDown, X: 0})
	l.Send(Event{Kind: EventPointerMove, X: 60})
	fs = l.Tick(t0.Add(tick))
	want := 0.1 * 0.15 * 0.92
	if math.Abs(fs.Angle-want) > 1e-9 {
		t.Errorf("Angle = %v, want %v", fs.Angle, want)
	}
}

func TestLoop_ZoomToAndPinch(t *testing.T) {
	l := newTestLoop(&recorder{}, Options{Interaction: interaction.DefaultConfig()})
	l.Send(Event{Kind: EventZoomTo, Delta: 9999})
	l.Tick(t0)
	if got := l.integ.State().ZoomTarget; got != 4500 {
		t.Errorf("ZoomTarget = %v, want clamp to 4500", got)
	}

	l.Send(Event{Kind: EventPinch, Delta: 100})
	l.Tick(t0.Add(tick))
	if got := l.integ.State().ZoomTarget; got != 4300 {
		t.Errorf("ZoomTarget = %v, want 4300", got)
	}
}

func TestLoop_RenderErrorIsNotFatal(t *testing.T) {
	rec := &recorder{err: errors.New("gpu lost")}
	l := newTestLoop(rec, Options{})

	l.Tick(t0)
	l.Tick(t0.Add(tick))

	if rec.count() != 2 {
		t.Errorf("Render called %d times, want 2", rec.count())
	}
	if got := l.Snapshot().Sequence; got != 2 {
		t.Errorf("Snapshot().Sequence = %d, want 2", got)
	}
}

func TestLoop_SendDropsMovesWhenFull(t *testing.T) {
	l := newTestLoop(&recorder{}, Options{})
	for i := 0; i < eventBuffer; i++ {
		if !l.Send(Event{Kind: EventPointerMove, X: float64(i)}) {
			t.Fatalf("Send() dropped event %d before the queue was full", i)
		}
	}
	if l.Send(Event{Kind: EventPointerMove, X: 999}) {
		t.Error("Send() should drop a pointer move when the queue is full")
	}
}

func TestLoop_SendKeepsReleaseWhenFull(t *testing.T) {
	rec := &recorder{}
	l := newTestLoop(rec, Options{})
	l.Tick(t0)

	l.Send(Event{Kind: EventPointerDown, X: 100})
	for i := 1; i < eventBuffer; i++ {
		l.Send(Event{Kind: EventPointerMove, X: 100 + float64(i)})
	}

	// The loop makes room while the release is waiting.
	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(20 * time.Millisecond)
		l.Tick(t0.Add(tick))
	}()
	if !l.Send(Event{Kind: EventPointerUp}) {
		t.Fatal("Send() dropped pointer_up behind a full queue")
	}
	<-done

	fs := l.Tick(t0.Add(2 * tick))
	if fs.Dragging {
		t.Error("still dragging after pointer_up")
	}
}

func TestLoop_SendGivesUpOnStalledLoop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timed send in short mode")
	}

	l := newTestLoop(&recorder{}, Options{})
	for i := 0; i < eventBuffer; i++ {
		l.Send(Event{Kind: EventWheel, Delta: 1})
	}

	start := time.Now()
	if l.Send(Event{Kind: EventResize, Viewport: Viewport{Width: 10, Height: 10}}) {
		t.Error("Send() succeeded on a full queue nobody drains")
	}
	if waited := time.Since(start); waited < sendWait {
		t.Errorf("Send() gave up after %v, want at least %v", waited, sendWait)
	}
}

func TestLoop_Run(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timed loop in short mode")
	}

	rec := &recorder{}
	l := newTestLoop(rec, Options{FPS: 100})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.count() < 3 {
		t.Errorf("Render called %d times in 150ms at 100fps", rec.count())
	}
	if len(rec.resizes) != 1 {
		t.Errorf("Run should size the renderer once, got %d", len(rec.resizes))
	}
}
