package server

import (
	"fmt"
	"image"
	"image/color"
	"net/http"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/heartreel/internal/detector"
)

// Preview supplies the latest camera frame and the hands found in it.
type Preview interface {
	// PreviewFrame returns a copy of the latest frame; the caller closes it.
	PreviewFrame() (*gocv.Mat, []detector.HandLandmarks, error)
}

var (
	boneColor     = color.RGBA{R: 0xff, G: 0x4d, B: 0x6d, A: 0xff}
	landmarkColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// DrawLandmarks draws each hand's skeleton and keypoints onto frame.
// Landmark coordinates are normalized to the frame size.
func DrawLandmarks(frame *gocv.Mat, hands []detector.HandLandmarks) {
	if frame == nil || frame.Empty() {
		return
	}
	w, h := float64(frame.Cols()), float64(frame.Rows())
	toPixel := func(p detector.Point3D) image.Point {
		return image.Pt(int(p.X*w), int(p.Y*h))
	}

	for _, hand := range hands {
		for _, bone := range detector.Connections {
			gocv.Line(frame, toPixel(hand.Points[bone[0]]), toPixel(hand.Points[bone[1]]), boneColor, 2)
		}
		for _, p := range hand.Points {
			gocv.Circle(frame, toPixel(p), 3, landmarkColor, -1)
		}
	}
}

// StreamHandler serves the camera preview as MJPEG with the hand skeleton
// drawn over it.
type StreamHandler struct {
	preview  Preview
	interval time.Duration
}

// NewStreamHandler returns a handler emitting about fps frames per second.
func NewStreamHandler(preview Preview, fps int) *StreamHandler {
	if fps <= 0 {
		fps = 15
	}
	return &StreamHandler{preview: preview, interval: time.Second / time.Duration(fps)}
}

// ServeHTTP streams frames until the client goes away.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if err := h.writeFrame(w); err != nil {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// writeFrame writes one multipart frame. A missing frame is skipped; only
// write failures end the stream.
func (h *StreamHandler) writeFrame(w http.ResponseWriter) error {
	frame, hands, err := h.preview.PreviewFrame()
	if err != nil {
		return nil
	}
	DrawLandmarks(frame, hands)
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	frame.Close()
	if err != nil {
		return nil
	}
	defer buf.Close()

	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", buf.Len()); err != nil {
		return err
	}
	if _, err := w.Write(buf.GetBytes()); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
