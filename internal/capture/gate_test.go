package capture

import (
	"testing"
	"time"
)

func TestGate_Observe(t *testing.T) {
	t0 := time.Date(2026, 2, 14, 20, 0, 0, 0, time.UTC)
	g := &Gate{IdleFPS: 5, ActiveFPS: 15, IdleTimeout: 2 * time.Second}

	if got := g.Current(); got.Active || got.FPS != 5 {
		t.Fatalf("initial cadence = %+v, want idle at 5", got)
	}

	steps := []struct {
		name        string
		motion      bool
		at          time.Duration
		wantActive  bool
		wantChanged bool
	}{
		{name: "still stays idle", motion: false, at: 0, wantActive: false, wantChanged: false},
		{name: "motion activates", motion: true, at: 100 * time.Millisecond, wantActive: true, wantChanged: true},
		{name: "more motion stays", motion: true, at: 200 * time.Millisecond, wantActive: true, wantChanged: false},
		{name: "quiet within timeout", motion: false, at: 2 * time.Second, wantActive: true, wantChanged: false},
		{name: "quiet past timeout", motion: false, at: 2300 * time.Millisecond, wantActive: false, wantChanged: true},
	}

	for _, s := range steps {
		t.Run(s.name, func(t *testing.T) {
			c, changed := g.Observe(s.motion, t0.Add(s.at))
			if c.Active != s.wantActive {
				t.Errorf("Active = %v, want %v", c.Active, s.wantActive)
			}
			if changed != s.wantChanged {
				t.Errorf("changed = %v, want %v", changed, s.wantChanged)
			}
			wantFPS := 5
			if s.wantActive {
				wantFPS = 15
			}
			if c.FPS != wantFPS {
				t.Errorf("FPS = %d, want %d", c.FPS, wantFPS)
			}
		})
	}
}

func TestGate_KeepAlive(t *testing.T) {
	t0 := time.Date(2026, 2, 14, 20, 0, 0, 0, time.UTC)
	g := &Gate{IdleFPS: 5, ActiveFPS: 15, IdleTimeout: time.Second}

	g.KeepAlive(t0)
	if g.Current().Active {
		t.Fatal("KeepAlive must not activate an idle gate")
	}

	g.Observe(true, t0)
	g.KeepAlive(t0.Add(900 * time.Millisecond))
	if c, _ := g.Observe(false, t0.Add(1500*time.Millisecond)); !c.Active {
		t.Error("gate went idle despite KeepAlive")
	}
}

func TestCadence_Interval(t *testing.T) {
	tests := []struct {
		fps  int
		want time.Duration
	}{
		{5, 200 * time.Millisecond},
		{20, 50 * time.Millisecond},
		{0, time.Second},
	}
	for _, tt := range tests {
		if got := (Cadence{FPS: tt.fps}).Interval(); got != tt.want {
			t.Errorf("Interval(%d fps) = %v, want %v", tt.fps, got, tt.want)
		}
	}
}
