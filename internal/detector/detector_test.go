package detector

import (
	"errors"
	"math"
	"testing"
)

const epsilon = 1e-9

func TestDistance2D(t *testing.T) {
	a := Point3D{X: 0.1, Y: 0.2, Z: 5}
	b := Point3D{X: 0.4, Y: 0.6, Z: -5}

	if got := Distance2D(a, b); math.Abs(got-0.5) > epsilon {
		t.Errorf("Distance2D() = %f, want 0.5 (depth must be ignored)", got)
	}
	if got := Distance2D(a, a); got != 0 {
		t.Errorf("Distance2D(a, a) = %f, want 0", got)
	}
}

func TestHandLandmarks_Valid(t *testing.T) {
	t.Run("finite hand is valid", func(t *testing.T) {
		h := PointingLandmarks(0.4, 0.4)
		if !h.Valid() {
			t.Error("expected pointing hand to be valid")
		}
	})

	t.Run("NaN coordinate is invalid", func(t *testing.T) {
		h := PointingLandmarks(0.4, 0.4)
		h.Points[MiddleTip].Y = math.NaN()
		if h.Valid() {
			t.Error("expected hand with NaN to be invalid")
		}
	})

	t.Run("infinite depth is invalid", func(t *testing.T) {
		h := PointingLandmarks(0.4, 0.4)
		h.Points[Wrist].Z = math.Inf(1)
		if h.Valid() {
			t.Error("expected hand with Inf to be invalid")
		}
	})

	t.Run("nil hand is invalid", func(t *testing.T) {
		var h *HandLandmarks
		if h.Valid() {
			t.Error("expected nil hand to be invalid")
		}
	})
}

func TestNewHandFrame(t *testing.T) {
	one := PointingLandmarks(0.2, 0.3)
	heart := HeartLandmarks()

	tests := []struct {
		name  string
		hands []HandLandmarks
		want  int
	}{
		{name: "nil", hands: nil, want: 0},
		{name: "empty", hands: []HandLandmarks{}, want: 0},
		{name: "one hand", hands: []HandLandmarks{one}, want: 1},
		{name: "two hands", hands: heart, want: 2},
		{name: "three hands truncated", hands: append(append([]HandLandmarks{}, heart...), one), want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewHandFrame(tt.hands)
			if f.Count() != tt.want {
				t.Errorf("Count() = %d, want %d", f.Count(), tt.want)
			}
		})
	}

	t.Run("two hands keep detector order", func(t *testing.T) {
		f, ok := NewHandFrame(heart).(TwoHands)
		if !ok {
			t.Fatalf("expected TwoHands, got %T", NewHandFrame(heart))
		}
		if f.First.Handedness != "Left" || f.Second.Handedness != "Right" {
			t.Errorf("got order %s,%s, want Left,Right", f.First.Handedness, f.Second.Handedness)
		}
	})

	t.Run("invalid hand drops whole frame", func(t *testing.T) {
		bad := HeartLandmarks()
		bad[1].Points[IndexTip].X = math.NaN()
		if _, ok := NewHandFrame(bad).(NoHands); !ok {
			t.Errorf("expected NoHands for frame with NaN landmark")
		}
	})
}

func TestPrimary(t *testing.T) {
	if _, ok := Primary(NoHands{}); ok {
		t.Error("expected no primary hand for NoHands")
	}

	single := PointingLandmarks(0.25, 0.5)
	hand, ok := Primary(OneHand{Hand: single})
	if !ok || hand.Points[IndexTip] != single.Points[IndexTip] {
		t.Errorf("Primary(OneHand) = %v, %v; want the single hand", hand.Points[IndexTip], ok)
	}

	heart := HeartLandmarks()
	hand, ok = Primary(TwoHands{First: heart[0], Second: heart[1]})
	if !ok || hand.Handedness != heart[0].Handedness {
		t.Errorf("Primary(TwoHands) returned %s, want first hand %s", hand.Handedness, heart[0].Handedness)
	}
}

func TestParseMultiHandLandmarks(t *testing.T) {
	full := func(x float64) []Point3D {
		pts := make([]Point3D, NumLandmarks)
		for i := range pts {
			pts[i] = Point3D{X: x, Y: 0.5}
		}
		return pts
	}

	t.Run("complete hands", func(t *testing.T) {
		f := ParseMultiHandLandmarks([][]Point3D{full(0.2), full(0.7)})
		two, ok := f.(TwoHands)
		if !ok {
			t.Fatalf("expected TwoHands, got %T", f)
		}
		if two.Second.Points[IndexTip].X != 0.7 {
			t.Errorf("second hand index tip x = %f, want 0.7", two.Second.Points[IndexTip].X)
		}
	})

	t.Run("partial hand is treated as no hands", func(t *testing.T) {
		f := ParseMultiHandLandmarks([][]Point3D{full(0.2), full(0.7)[:9]})
		if _, ok := f.(NoHands); !ok {
			t.Errorf("expected NoHands, got %T", f)
		}
	})

	t.Run("empty payload", func(t *testing.T) {
		if f := ParseMultiHandLandmarks(nil); f.Count() != 0 {
			t.Errorf("Count() = %d, want 0", f.Count())
		}
	})
}

func TestJSONHand_ToHandLandmarks(t *testing.T) {
	t.Run("incomplete hand returns ErrIncompleteHand", func(t *testing.T) {
		h := jsonHand{Points: make([]Point3D, 20), Handedness: "Left"}
		if _, err := h.toHandLandmarks(); !errors.Is(err, ErrIncompleteHand) {
			t.Errorf("toHandLandmarks() error = %v, want ErrIncompleteHand", err)
		}
	})

	t.Run("complete hand keeps metadata", func(t *testing.T) {
		h := jsonHand{Points: make([]Point3D, NumLandmarks), Handedness: "Left", Score: 0.8}
		lm, err := h.toHandLandmarks()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if lm.Handedness != "Left" || lm.Score != 0.8 {
			t.Errorf("got %s/%f, want Left/0.8", lm.Handedness, lm.Score)
		}
	})
}

func TestMockDetector(t *testing.T) {
	t.Run("returns empty hands by default", func(t *testing.T) {
		mock := NewMockDetector()

		hands, err := mock.Detect(nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if hands != nil {
			t.Errorf("expected nil hands, got %v", hands)
		}
	})

	t.Run("returns configured hands", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetHands(HeartLandmarks())

		hands, err := mock.Detect(nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if len(hands) != 2 {
			t.Errorf("expected 2 hands, got %d", len(hands))
		}
		if mock.Calls() != 1 {
			t.Errorf("Calls() = %d, want 1", mock.Calls())
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()

		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		hands, err := mock.Detect(nil)

		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if hands != nil {
			t.Errorf("expected nil hands when error is set, got %v", hands)
		}
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
	})
}

func TestPointingLandmarks(t *testing.T) {
	h := PointingLandmarks(0.2, 0.35)

	tip := h.Points[IndexTip]
	if math.Abs(tip.X-0.2) > epsilon || math.Abs(tip.Y-0.35) > epsilon {
		t.Errorf("index tip = (%f, %f), want (0.2, 0.35)", tip.X, tip.Y)
	}
	if h.Points[IndexMCP].Y-tip.Y < 0.2 {
		t.Error("index finger should be extended above its MCP")
	}
}

func TestHeartLandmarks(t *testing.T) {
	hands := HeartLandmarks()
	if len(hands) != 2 {
		t.Fatalf("expected 2 hands, got %d", len(hands))
	}

	if d := Distance2D(hands[0].Points[ThumbTip], hands[1].Points[ThumbTip]); d >= 0.15 {
		t.Errorf("thumb tips %f apart, want < 0.15", d)
	}
	if d := Distance2D(hands[0].Points[IndexTip], hands[1].Points[IndexTip]); d >= 0.15 {
		t.Errorf("index tips %f apart, want < 0.15", d)
	}
	for i := range hands {
		if !hands[i].Valid() {
			t.Errorf("hand %d is not valid", i)
		}
	}
}
