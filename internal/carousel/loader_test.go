package carousel

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(w, h, color.RGBA{R: 10, G: 20, B: 30, A: 255})); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestAssetLoader_StaticPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "images"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "images", "1.png"), encodePNG(t, 12, 9), 0644); err != nil {
		t.Fatal(err)
	}

	l := &AssetLoader{StaticDir: dir}
	img, err := l.Load(context.Background(), "/images/1.png")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 12 || b.Dy() != 9 {
		t.Errorf("bounds = %v, want 12x9", b)
	}
}

func TestAssetLoader_StaysInsideStaticDir(t *testing.T) {
	root := t.TempDir()
	static := filepath.Join(root, "static")
	if err := os.MkdirAll(static, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "secret.png"), encodePNG(t, 8, 8), 0644); err != nil {
		t.Fatal(err)
	}

	l := &AssetLoader{StaticDir: static}
	if _, err := l.Load(context.Background(), "/../secret.png"); err == nil {
		t.Error("Load() should not resolve paths outside StaticDir")
	}
}

func TestAssetLoader_HTTP(t *testing.T) {
	data := encodePNG(t, 20, 10)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ok.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer ts.Close()

	l := &AssetLoader{Client: ts.Client()}

	img, err := l.Load(context.Background(), ts.URL+"/ok.png")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 20 || b.Dy() != 10 {
		t.Errorf("bounds = %v, want 20x10", b)
	}

	if _, err := l.Load(context.Background(), ts.URL+"/missing.png"); err == nil {
		t.Error("Load() should fail on 404")
	}
}

func TestAssetLoader_NotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")
	if err := os.WriteFile(path, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	l := &AssetLoader{}
	if _, err := l.Load(context.Background(), path); err == nil {
		t.Error("Load() should fail to decode text")
	}
}

// pngHeader returns a PNG signature and IHDR chunk declaring w x h RGBA
// pixels, with no image data after it.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	chunk := make([]byte, 0, 17)
	chunk = append(chunk, "IHDR"...)
	chunk = binary.BigEndian.AppendUint32(chunk, w)
	chunk = binary.BigEndian.AppendUint32(chunk, h)
	chunk = append(chunk, 8, 6, 0, 0, 0) // 8-bit RGBA, no interlace

	binary.Write(&buf, binary.BigEndian, uint32(13))
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestAssetLoader_RejectsOversizedImage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "huge.png"), pngHeader(40000, 40000), 0644); err != nil {
		t.Fatal(err)
	}

	l := &AssetLoader{StaticDir: dir}
	_, err := l.Load(context.Background(), "/huge.png")
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("Load() error = %v, want ErrImageTooLarge", err)
	}
}

func TestAssetLoader_MaxPixels(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "small.png"), encodePNG(t, 12, 9), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		maxPixels int
		wantErr   bool
	}{
		{name: "under cap", maxPixels: 108},
		{name: "over cap", maxPixels: 107, wantErr: true},
		{name: "default", maxPixels: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &AssetLoader{StaticDir: dir, MaxPixels: tt.maxPixels}
			img, err := l.Load(context.Background(), "/small.png")
			if tt.wantErr {
				if !errors.Is(err, ErrImageTooLarge) {
					t.Errorf("Load() error = %v, want ErrImageTooLarge", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if b := img.Bounds(); b.Dx() != 12 || b.Dy() != 9 {
				t.Errorf("bounds = %v, want 12x9", b)
			}
		})
	}
}
