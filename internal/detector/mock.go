package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	hands []HandLandmarks
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// PointingLandmarks returns a right hand with the index finger extended
// and its tip at (tipX, tipY) in camera coordinates.
func PointingLandmarks(tipX, tipY float64) HandLandmarks {
	landmarks := HandLandmarks{
		Handedness: "Right",
		Score:      0.95,
	}

	landmarks.Points[Wrist] = Point3D{X: 0.5, Y: 0.8}

	landmarks.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.75}
	landmarks.Points[ThumbMCP] = Point3D{X: 0.58, Y: 0.70}
	landmarks.Points[ThumbIP] = Point3D{X: 0.57, Y: 0.66}
	landmarks.Points[ThumbTip] = Point3D{X: 0.54, Y: 0.64}

	landmarks.Points[IndexMCP] = Point3D{X: 0.55, Y: 0.68}
	landmarks.Points[IndexPIP] = Point3D{X: 0.56, Y: 0.56}
	landmarks.Points[IndexDIP] = Point3D{X: 0.57, Y: 0.48}
	landmarks.Points[IndexTip] = Point3D{X: 0.58, Y: 0.40}

	landmarks.Points[MiddleMCP] = Point3D{X: 0.50, Y: 0.68, Z: -0.02}
	landmarks.Points[MiddlePIP] = Point3D{X: 0.50, Y: 0.66, Z: -0.05}
	landmarks.Points[MiddleDIP] = Point3D{X: 0.48, Y: 0.69, Z: -0.04}
	landmarks.Points[MiddleTip] = Point3D{X: 0.47, Y: 0.71, Z: -0.02}

	landmarks.Points[RingMCP] = Point3D{X: 0.45, Y: 0.70, Z: -0.02}
	landmarks.Points[RingPIP] = Point3D{X: 0.45, Y: 0.68, Z: -0.05}
	landmarks.Points[RingDIP] = Point3D{X: 0.43, Y: 0.70, Z: -0.04}
	landmarks.Points[RingTip] = Point3D{X: 0.42, Y: 0.72, Z: -0.02}

	landmarks.Points[PinkyMCP] = Point3D{X: 0.40, Y: 0.72, Z: -0.02}
	landmarks.Points[PinkyPIP] = Point3D{X: 0.40, Y: 0.70, Z: -0.05}
	landmarks.Points[PinkyDIP] = Point3D{X: 0.38, Y: 0.72, Z: -0.04}
	landmarks.Points[PinkyTip] = Point3D{X: 0.37, Y: 0.74, Z: -0.02}

	tip := landmarks.Points[IndexTip]
	return landmarks.Translate(tipX-tip.X, tipY-tip.Y)
}

// HeartLandmarks returns two hands forming a heart: both thumb tips touch
// below centre and both index tips touch above it.
func HeartLandmarks() []HandLandmarks {
	left := HandLandmarks{Handedness: "Left", Score: 0.93}
	right := HandLandmarks{Handedness: "Right", Score: 0.94}

	left.Points[Wrist] = Point3D{X: 0.30, Y: 0.75}
	right.Points[Wrist] = Point3D{X: 0.70, Y: 0.75}

	left.Points[ThumbCMC] = Point3D{X: 0.35, Y: 0.70}
	left.Points[ThumbMCP] = Point3D{X: 0.40, Y: 0.66}
	left.Points[ThumbIP] = Point3D{X: 0.45, Y: 0.63}
	left.Points[ThumbTip] = Point3D{X: 0.49, Y: 0.62}
	right.Points[ThumbCMC] = Point3D{X: 0.65, Y: 0.70}
	right.Points[ThumbMCP] = Point3D{X: 0.60, Y: 0.66}
	right.Points[ThumbIP] = Point3D{X: 0.55, Y: 0.63}
	right.Points[ThumbTip] = Point3D{X: 0.51, Y: 0.62}

	left.Points[IndexMCP] = Point3D{X: 0.34, Y: 0.55}
	left.Points[IndexPIP] = Point3D{X: 0.36, Y: 0.45}
	left.Points[IndexDIP] = Point3D{X: 0.42, Y: 0.40}
	left.Points[IndexTip] = Point3D{X: 0.48, Y: 0.42}
	right.Points[IndexMCP] = Point3D{X: 0.66, Y: 0.55}
	right.Points[IndexPIP] = Point3D{X: 0.64, Y: 0.45}
	right.Points[IndexDIP] = Point3D{X: 0.58, Y: 0.40}
	right.Points[IndexTip] = Point3D{X: 0.52, Y: 0.42}

	for i, base := range []int{MiddleMCP, RingMCP, PinkyMCP} {
		off := float64(i) * 0.03
		for j := 0; j < 4; j++ {
			step := float64(j) * 0.02
			left.Points[base+j] = Point3D{X: 0.31 + off + step, Y: 0.58 + off, Z: -0.02}
			right.Points[base+j] = Point3D{X: 0.69 - off - step, Y: 0.58 + off, Z: -0.02}
		}
	}

	return []HandLandmarks{left, right}
}
