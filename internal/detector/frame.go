package detector

// HandFrame is one detector result. It is exactly one of NoHands, OneHand or
// TwoHands; code that needs both hands switches on the concrete type.
type HandFrame interface {
	// Count returns the number of hands in the frame.
	Count() int
	handFrame()
}

// NoHands is a frame without a usable hand.
type NoHands struct{}

// OneHand is a frame with a single hand.
type OneHand struct {
	Hand HandLandmarks
}

// TwoHands is a frame with two hands in detector order.
type TwoHands struct {
	First  HandLandmarks
	Second HandLandmarks
}

func (NoHands) Count() int  { return 0 }
func (OneHand) Count() int  { return 1 }
func (TwoHands) Count() int { return 2 }

func (NoHands) handFrame()  {}
func (OneHand) handFrame()  {}
func (TwoHands) handFrame() {}

// Primary returns the first reported hand of f.
// The detector gives no identity across frames, so the primary hand may
// swap when two hands are visible.
func Primary(f HandFrame) (HandLandmarks, bool) {
	switch v := f.(type) {
	case OneHand:
		return v.Hand, true
	case TwoHands:
		return v.First, true
	default:
		return HandLandmarks{}, false
	}
}

// NewHandFrame builds a HandFrame from a detector result.
// Hands beyond the second are dropped. If any kept hand has a non-finite
// coordinate the whole frame is treated as NoHands.
func NewHandFrame(hands []HandLandmarks) HandFrame {
	if len(hands) > 2 {
		hands = hands[:2]
	}
	for i := range hands {
		if !hands[i].Valid() {
			return NoHands{}
		}
	}

	switch len(hands) {
	case 0:
		return NoHands{}
	case 1:
		return OneHand{Hand: hands[0]}
	default:
		return TwoHands{First: hands[0], Second: hands[1]}
	}
}

// ParseMultiHandLandmarks converts a raw multiHandLandmarks payload, as
// produced by the browser MediaPipe runtime, into a HandFrame.
// A hand with fewer than NumLandmarks points makes the frame NoHands.
func ParseMultiHandLandmarks(raw [][]Point3D) HandFrame {
	hands := make([]HandLandmarks, 0, len(raw))
	for _, pts := range raw {
		h, err := handFromPoints(pts)
		if err != nil {
			return NoHands{}
		}
		hands = append(hands, h)
	}
	return NewHandFrame(hands)
}

func handFromPoints(pts []Point3D) (HandLandmarks, error) {
	var h HandLandmarks
	if len(pts) < NumLandmarks {
		return h, ErrIncompleteHand
	}
	copy(h.Points[:], pts[:NumLandmarks])
	return h, nil
}
