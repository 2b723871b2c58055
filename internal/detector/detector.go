package detector

import (
	"errors"

	"gocv.io/x/gocv"
)

var (
	// ErrIncompleteHand is returned when a hand arrives with missing keypoints.
	ErrIncompleteHand = errors.New("hand has fewer than 21 landmarks")

	// ErrDetectorUnavailable is returned when the pose runtime cannot be found or started.
	ErrDetectorUnavailable = errors.New("hand detector unavailable")
)

// Detector defines the interface for hand detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected hand landmarks.
	// Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64
}

// DefaultConfig returns the detector settings the carousel was tuned with.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.7,
		MinTrackingConf: 0.7,
	}
}
