package carousel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"
)

// Loader resolves an asset URL to a decoded image.
type Loader interface {
	Load(ctx context.Context, url string) (image.Image, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, url string) (image.Image, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, url string) (image.Image, error) {
	return f(ctx, url)
}

// maxAssetBytes bounds a single image download.
const maxAssetBytes = 32 << 20

// DefaultMaxPixels caps the decoded size of one image.
const DefaultMaxPixels = 40_000_000

// ErrImageTooLarge is returned when an image header declares more pixels
// than the loader accepts.
var ErrImageTooLarge = errors.New("image dimensions too large")

// AssetLoader loads images from http(s) URLs, from root-relative paths under
// StaticDir, or from plain file paths.
type AssetLoader struct {
	StaticDir string
	Client    *http.Client
	// MaxPixels caps width*height read from the image header before the
	// pixels are decoded. Zero means DefaultMaxPixels.
	MaxPixels int
}

// Load fetches and decodes the image at url.
func (l *AssetLoader) Load(ctx context.Context, url string) (image.Image, error) {
	rc, err := l.open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r := io.LimitReader(rc, maxAssetBytes)

	// The header is read twice: once for the dimensions, then again by the
	// full decode from the buffered copy.
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	limit := l.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(limit) {
		return nil, fmt.Errorf("decode %s: %dx%d: %w", url, cfg.Width, cfg.Height, ErrImageTooLarge)
	}

	img, _, err := image.Decode(io.MultiReader(&head, r))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return img, nil
}

func (l *AssetLoader) open(ctx context.Context, url string) (io.ReadCloser, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		client := l.Client
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
		}
		return resp.Body, nil
	}

	name := url
	if strings.HasPrefix(url, "/") && l.StaticDir != "" {
		name = filepath.Join(l.StaticDir, filepath.FromSlash(path.Clean(url)))
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	return f, nil
}
