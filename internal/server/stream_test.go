package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/heartreel/internal/detector"
)

type fakePreview struct {
	hands []detector.HandLandmarks
	err   error
}

func (p *fakePreview) PreviewFrame() (*gocv.Mat, []detector.HandLandmarks, error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	m := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	return &m, p.hands, nil
}

func TestDrawLandmarks(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	hand := detector.PointingLandmarks(0.5, 0.25)
	DrawLandmarks(&frame, []detector.HandLandmarks{hand})

	tip := hand.Points[8]
	x, y := int(tip.X*160), int(tip.Y*120)
	if v := frame.GetVecbAt(y, x); v[0] == 0 && v[1] == 0 && v[2] == 0 {
		t.Error("index fingertip was not drawn")
	}

	// Nil and empty frames are ignored.
	DrawLandmarks(nil, []detector.HandLandmarks{hand})
	empty := gocv.NewMat()
	defer empty.Close()
	DrawLandmarks(&empty, []detector.HandLandmarks{hand})
}

func TestStreamHandler(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	h := NewStreamHandler(&fakePreview{hands: detector.HeartLandmarks()}, 50)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Errorf("Content-Type = %s", ct)
	}
	body := rec.Body.String()
	if n := strings.Count(body, "--frame\r\nContent-Type: image/jpeg"); n < 2 {
		t.Errorf("stream carried %d frames, want at least 2", n)
	}
}

func TestStreamHandler_NoFrames(t *testing.T) {
	h := NewStreamHandler(&fakePreview{err: errors.New("camera closed")}, 50)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Body.Len() != 0 {
		t.Errorf("stream wrote %d bytes without frames", rec.Body.Len())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stream", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}
