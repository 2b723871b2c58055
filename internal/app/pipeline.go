package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/heartreel/internal/capture"
	"github.com/ayusman/heartreel/internal/detector"
)

// maxReadFailures is how many consecutive failed camera reads end the
// pipeline.
const maxReadFailures = 50

// ErrNoPreview is returned by PreviewFrame before the camera delivered a frame.
var ErrNoPreview = errors.New("no camera frame yet")

// runPipeline reads camera frames and feeds hand readings to the render
// loop until ctx is done or the camera fails.
//
// Frames are read at the idle rate until motion shows up; then the gate
// switches to the active rate and every frame goes through the detector.
// After the idle timeout without motion or a visible hand the gate drops
// back to idle.
func (a *App) runPipeline(ctx context.Context) {
	if a.detector == nil {
		reason := "hand detector unavailable"
		if a.detectorErr != nil {
			reason = a.detectorErr.Error()
		}
		a.serverCameraFailed(reason)
		return
	}

	if err := a.camera.Open(); err != nil {
		a.serverCameraFailed(err.Error())
		return
	}
	defer func() {
		if err := a.camera.Close(); err != nil {
			a.logger.Warn("error closing camera", "err", err)
		}
	}()

	a.mu.Lock()
	a.cameraAvailable = true
	a.cameraError = ""
	a.poseSource = PoseCamera
	a.mu.Unlock()
	a.statusChanged()

	cam := a.cfg.Settings.Camera
	gate := &capture.Gate{
		IdleFPS:     cam.IdleFPS,
		ActiveFPS:   cam.ActiveFPS,
		IdleTimeout: cam.IdleTimeout(),
	}
	cadence := gate.Current()
	a.camera.SetFPS(cadence.FPS)

	ticker := time.NewTicker(cadence.Interval())
	defer ticker.Stop()

	a.logger.Info("pose pipeline started", "fps", cadence.FPS)
	failures := 0

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("pose pipeline stopped")
			return
		case now := <-ticker.C:
			frame, err := a.camera.ReadFrame()
			if err != nil {
				failures++
				a.logger.Debug("frame read failed", "err", err, "failures", failures)
				if failures >= maxReadFailures {
					a.serverCameraFailed(fmt.Sprintf("camera stopped delivering frames: %v", err))
					return
				}
				continue
			}
			failures = 0

			motion, _ := a.motion.Detect(frame)
			next, changed := gate.Observe(motion, now)
			if changed {
				cadence = next
				a.camera.SetFPS(cadence.FPS)
				ticker.Reset(cadence.Interval())
				if cadence.Active {
					a.logger.Debug("switched to active mode", "fps", cadence.FPS)
				} else {
					a.logger.Debug("switched to idle mode", "fps", cadence.FPS)
					a.submit(detector.NoHands{})
				}
			}

			if !cadence.Active || !a.loop.GestureEnabled() {
				a.setPreview(frame, nil)
				continue
			}

			hands, err := a.detector.Detect(frame)
			switch {
			case errors.Is(err, detector.ErrDetectorUnavailable):
				frame.Close()
				a.serverCameraFailed(err.Error())
				return
			case err != nil:
				// Incomplete or garbled results count as no hands.
				a.logger.Debug("detection failed", "err", err)
				hands = nil
			}

			if len(hands) > 0 {
				gate.KeepAlive(now)
			}
			a.submit(detector.NewHandFrame(hands))
			a.setPreview(frame, hands)
		}
	}
}

// setPreview keeps frame as the latest preview, taking ownership of it.
func (a *App) setPreview(frame *gocv.Mat, hands []detector.HandLandmarks) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.preview != nil {
		a.preview.Close()
	}
	a.preview = frame
	a.previewHands = hands
}

// PreviewFrame returns a copy of the latest camera frame and the hands
// detected in it. The caller closes the frame.
func (a *App) PreviewFrame() (*gocv.Mat, []detector.HandLandmarks, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.preview == nil || a.preview.Empty() {
		return nil, nil, ErrNoPreview
	}
	clone := a.preview.Clone()
	hands := append([]detector.HandLandmarks(nil), a.previewHands...)
	return &clone, hands, nil
}
