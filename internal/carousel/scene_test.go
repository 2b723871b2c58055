package carousel

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"
)

func testSources(n int) []Source {
	sources := make([]Source, n)
	for i := range sources {
		sources[i] = Source{ID: fmt.Sprintf("img-%d", i), URL: fmt.Sprintf("/images/%d.jpg", i+1)}
	}
	return sources
}

func testSceneOptions() SceneOptions {
	tex := DefaultTextureOptions()
	tex.MaxDimension = 32
	return SceneOptions{
		Profile:         ProfileFor(1280, DefaultBreakpoint),
		HeightAmplitude: 250,
		Texture:         tex,
		Concurrency:     4,
	}
}

func TestScene_New(t *testing.T) {
	tracker := NewTracker()
	s := NewScene(1, testSources(16), testSceneOptions(), LoaderFunc(nil), tracker, nil)

	if got := len(s.Cards()); got != 16 {
		t.Fatalf("len(Cards()) = %d, want 16", got)
	}
	if got := tracker.Geometries(); got != 16 {
		t.Errorf("Geometries() = %d, want 16", got)
	}
	for i, c := range s.Cards() {
		if c.Index != i {
			t.Errorf("card %d has Index %d", i, c.Index)
		}
		m := c.Material()
		if m.State != MaterialPlaceholder || m.PhotoColor != PlaceholderColor {
			t.Errorf("card %d material = %+v, want white placeholder", i, m)
		}
	}
}

func TestScene_LoadAndClose(t *testing.T) {
	tracker := NewTracker()
	loader := LoaderFunc(func(ctx context.Context, url string) (image.Image, error) {
		return solidImage(40, 30, color.White), nil
	})

	var mu sync.Mutex
	updated := map[int]bool{}
	opts := testSceneOptions()
	opts.OnCardUpdate = func(gen uint64, c *Card) {
		mu.Lock()
		defer mu.Unlock()
		updated[c.Index] = true
	}

	s := NewScene(3, testSources(16), opts, loader, tracker, nil)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := tracker.Textures(); got != 32 {
		t.Errorf("Textures() = %d, want 32", got)
	}
	if len(updated) != 16 {
		t.Errorf("OnCardUpdate called for %d cards, want 16", len(updated))
	}
	for _, c := range s.Cards() {
		m := c.Material()
		if m.State != MaterialTextured || m.Textures == nil {
			t.Errorf("card %d state = %s, want textured", c.Index, m.State)
		}
	}

	s.Close()
	s.Close()

	if got := tracker.Textures(); got != 0 {
		t.Errorf("Textures() after Close = %d, want 0", got)
	}
	if got := tracker.Geometries(); got != 0 {
		t.Errorf("Geometries() after Close = %d, want 0", got)
	}
}

func TestScene_FailureIsIsolated(t *testing.T) {
	tracker := NewTracker()
	loader := LoaderFunc(func(ctx context.Context, url string) (image.Image, error) {
		if url == "/images/3.jpg" {
			return nil, errors.New("not found")
		}
		return solidImage(16, 16, color.White), nil
	})

	s := NewScene(1, testSources(5), testSceneOptions(), loader, tracker, nil)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for _, c := range s.Cards() {
		m := c.Material()
		if c.Index == 2 {
			if m.State != MaterialFallback {
				t.Errorf("failed card state = %s, want fallback", m.State)
			}
			if m.PhotoColor != PhotoFallbackColor || m.FrameColor != FrameFallbackColor {
				t.Errorf("failed card colors = %v / %v", m.PhotoColor, m.FrameColor)
			}
			continue
		}
		if m.State != MaterialTextured {
			t.Errorf("card %d state = %s, want textured", c.Index, m.State)
		}
	}

	if got := tracker.Textures(); got != 8 {
		t.Errorf("Textures() = %d, want 8", got)
	}
	s.Close()
	if got := tracker.Textures(); got != 0 {
		t.Errorf("Textures() after Close = %d, want 0", got)
	}
}

func TestScene_LateLoadIsDiscarded(t *testing.T) {
	tracker := NewTracker()
	release := make(chan struct{})
	started := make(chan struct{}, 4)

	loader := LoaderFunc(func(ctx context.Context, url string) (image.Image, error) {
		started <- struct{}{}
		<-release
		return solidImage(16, 16, color.White), nil
	})

	opts := testSceneOptions()
	opts.OnCardUpdate = func(uint64, *Card) {
		t.Error("OnCardUpdate called for a closed scene")
	}

	s := NewScene(1, testSources(2), opts, loader, tracker, nil)

	done := make(chan error, 1)
	go func() { done <- s.Load(context.Background()) }()

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("loads did not start")
		}
	}

	s.Close()
	close(release)

	select {
	case err := <-done:
		if !errors.Is(err, ErrSceneClosed) {
			t.Errorf("Load() error = %v, want ErrSceneClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Load() did not return")
	}

	for _, c := range s.Cards() {
		if c.Material().State != MaterialPlaceholder {
			t.Errorf("card %d changed after Close", c.Index)
		}
	}
	if got := tracker.Textures(); got != 0 {
		t.Errorf("Textures() = %d, want 0", got)
	}
	if got := tracker.Geometries(); got != 0 {
		t.Errorf("Geometries() = %d, want 0", got)
	}
}

func TestScene_LoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	loader := LoaderFunc(func(ctx context.Context, url string) (image.Image, error) {
		calls++
		return solidImage(16, 16, color.White), nil
	})

	opts := testSceneOptions()
	opts.Concurrency = 1
	s := NewScene(1, testSources(3), opts, loader, NewTracker(), nil)
	if err := s.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("loader called %d times after cancel", calls)
	}
	s.Close()
}
