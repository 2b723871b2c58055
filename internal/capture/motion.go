package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	// blurKernel is the Gaussian kernel size applied before differencing.
	blurKernel = 21
	// pixelDelta is the per-pixel intensity change that counts as movement.
	pixelDelta = 25
)

// MotionDetector compares consecutive frames and reports the share of
// pixels that changed.
type MotionDetector struct {
	mu          sync.Mutex
	threshold   float64
	prevGray    gocv.Mat
	initialized bool
}

// NewMotionDetector returns a detector that reports motion once more than
// threshold percent of the pixels change between frames.
func NewMotionDetector(threshold float64) *MotionDetector {
	return &MotionDetector{
		threshold: threshold,
		prevGray:  gocv.NewMat(),
	}
}

// Detect reports whether frame moved relative to the previous frame, and the
// changed-pixel percentage. The first frame only sets the baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: blurKernel, Y: blurKernel}, 0, 0, gocv.BorderDefault)

	// A resolution change restarts the baseline.
	if !m.initialized || m.prevGray.Rows() != blurred.Rows() || m.prevGray.Cols() != blurred.Cols() {
		blurred.CopyTo(&m.prevGray)
		m.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, pixelDelta, 255, gocv.ThresholdBinary)

	total := thresh.Rows() * thresh.Cols()
	changed := float64(gocv.CountNonZero(thresh)) / float64(total) * 100.0

	blurred.CopyTo(&m.prevGray)
	return changed > m.threshold, changed
}

// Reset drops the baseline so the next frame starts a new comparison.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clear()
}

// Close releases the baseline Mat. The detector may still be used after Close.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clear()
}

func (m *MotionDetector) clear() {
	if !m.prevGray.Empty() {
		m.prevGray.Close()
		m.prevGray = gocv.NewMat()
	}
	m.initialized = false
}

// SetThreshold changes the changed-pixel percentage. Values <= 0 are ignored.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
}
