package carousel

import (
	"context"
	"errors"
	"image/color"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrSceneClosed is returned by operations on a scene that has been torn down.
var ErrSceneClosed = errors.New("scene closed")

// Card fill colors.
var (
	PlaceholderColor   = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	PhotoFallbackColor = color.RGBA{R: 0xff, G: 0xcc, B: 0xd5, A: 0xff}
	FrameFallbackColor = color.RGBA{R: 0xf5, G: 0xf5, B: 0xf5, A: 0xff}
	BackgroundColor    = color.RGBA{R: 0xff, G: 0xf1, B: 0xf2, A: 0xff}
)

// MaterialState tells whether a card shows its textures.
type MaterialState string

const (
	MaterialPlaceholder MaterialState = "placeholder"
	MaterialTextured    MaterialState = "textured"
	MaterialFallback    MaterialState = "fallback"
)

// Material is what a card currently renders with. A card's material is
// replaced as a whole, never mutated in place.
type Material struct {
	State      MaterialState
	Textures   *CardTextures
	PhotoColor color.RGBA
	FrameColor color.RGBA
	Geometry   Geometry
}

// Source is one carousel image.
type Source struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Card is one carousel element.
type Card struct {
	Source
	Placement

	material atomic.Pointer[Material]
}

// Material returns the card's current material.
func (c *Card) Material() *Material {
	return c.material.Load()
}

// SceneOptions configures a scene build.
type SceneOptions struct {
	Profile         Profile
	HeightAmplitude float64
	Texture         TextureOptions
	// Concurrency bounds parallel image loads; zero means 4.
	Concurrency int
	// OnCardUpdate is called after a card's material changes.
	OnCardUpdate func(generation uint64, c *Card)
}

// Scene owns the cards of one build. Textures load in the background; a
// scene that is closed discards late results and releases what it holds.
type Scene struct {
	generation uint64
	opts       SceneOptions
	loader     Loader
	tracker    *Tracker
	logger     *slog.Logger
	cards      []*Card

	mu     sync.Mutex
	closed bool
}

// NewScene lays out one card per source. Every card starts with a
// placeholder material.
func NewScene(generation uint64, sources []Source, opts SceneOptions, loader Loader, tracker *Tracker, logger *slog.Logger) *Scene {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	s := &Scene{
		generation: generation,
		opts:       opts,
		loader:     loader,
		tracker:    tracker,
		logger:     logger.With("component", "scene", "generation", generation),
		cards:      make([]*Card, len(sources)),
	}

	placeholder := &Material{
		State:      MaterialPlaceholder,
		PhotoColor: PlaceholderColor,
		FrameColor: PlaceholderColor,
		Geometry:   PlaceholderGeometry(opts.Profile.Box, float64(opts.Texture.Padding)),
	}
	for i, src := range sources {
		c := &Card{
			Source:    src,
			Placement: Place(i, len(sources), opts.Profile.Radius, opts.HeightAmplitude),
		}
		c.material.Store(placeholder)
		tracker.acquire(resourceGeometry)
		s.cards[i] = c
	}

	return s
}

// Generation returns the build number of the scene.
func (s *Scene) Generation() uint64 {
	return s.generation
}

// Profile returns the layout profile the scene was built with.
func (s *Scene) Profile() Profile {
	return s.opts.Profile
}

// Cards returns the scene's cards in layout order.
func (s *Scene) Cards() []*Card {
	return s.cards
}

// Closed reports whether the scene has been torn down.
func (s *Scene) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Load fetches and composes every card's textures. A card whose image fails
// falls back to flat colors without affecting the others. Load returns when
// all cards are settled, ctx is done, or the scene is closed.
func (s *Scene) Load(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for _, c := range s.cards {
		if s.Closed() {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.loadCard(ctx, c)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if s.Closed() {
		return ErrSceneClosed
	}
	return nil
}

func (s *Scene) loadCard(ctx context.Context, c *Card) {
	img, err := s.loader.Load(ctx, c.URL)
	if err != nil {
		s.logger.Warn("failed to load texture", "url", c.URL, "err", err)
		s.commit(c, s.fallback())
		return
	}

	tex, err := buildCardTextures(img, s.opts.Texture, s.tracker)
	if err != nil {
		s.logger.Warn("failed to build texture", "url", c.URL, "err", err)
		s.commit(c, s.fallback())
		return
	}

	s.commit(c, &Material{
		State:      MaterialTextured,
		Textures:   tex,
		PhotoColor: PlaceholderColor,
		FrameColor: PlaceholderColor,
		Geometry:   CardGeometry(s.opts.Profile.Box, float64(s.opts.Texture.Padding), tex),
	})
}

func (s *Scene) fallback() *Material {
	return &Material{
		State:      MaterialFallback,
		PhotoColor: PhotoFallbackColor,
		FrameColor: FrameFallbackColor,
		Geometry:   PlaceholderGeometry(s.opts.Profile.Box, float64(s.opts.Texture.Padding)),
	}
}

// commit swaps in m unless the scene is closed, in which case m's textures
// are released and nothing becomes visible.
func (s *Scene) commit(c *Card, m *Material) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		m.Textures.Release()
		s.logger.Debug("discarded texture for closed scene", "card", c.Index)
		return
	}
	if old := c.material.Swap(m); old != nil {
		old.Textures.Release()
	}
	s.mu.Unlock()

	if s.opts.OnCardUpdate != nil {
		s.opts.OnCardUpdate(s.generation, c)
	}
}

// Close tears the scene down: every committed texture and every card
// geometry is released. Loads still in flight finish but their results are
// dropped. Close is idempotent.
func (s *Scene) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	for _, c := range s.cards {
		if m := c.material.Load(); m != nil {
			m.Textures.Release()
		}
		s.tracker.release(resourceGeometry)
	}
	s.logger.Debug("scene closed", "cards", len(s.cards))
}
