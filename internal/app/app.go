// Package app wires the heartreel components together: the pose pipeline,
// the render loop, the scene lifecycle and the fan-out of confirmed hearts
// to browsers, the tray and plugins.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"gocv.io/x/gocv"

	"github.com/ayusman/heartreel/internal/capture"
	"github.com/ayusman/heartreel/internal/carousel"
	"github.com/ayusman/heartreel/internal/config"
	"github.com/ayusman/heartreel/internal/detector"
	"github.com/ayusman/heartreel/internal/gesture"
	"github.com/ayusman/heartreel/internal/interaction"
	"github.com/ayusman/heartreel/internal/plugin"
	"github.com/ayusman/heartreel/internal/render"
	"github.com/ayusman/heartreel/internal/server"
	"github.com/ayusman/heartreel/internal/store"
)

// Pose sources reported in the status.
const (
	PoseNone    = "none"
	PoseCamera  = "camera"
	PoseBrowser = "browser"
)

// defaultViewport is assumed until a browser reports its size.
var defaultViewport = render.Viewport{Width: 1280, Height: 800}

// Config holds the dependencies of an App.
type Config struct {
	Settings  config.Config
	Store     *store.Store
	StaticDir string
	Logger    *slog.Logger

	// Camera, Detector and Loader replace the defaults built from Settings.
	Camera   capture.Camera
	Detector detector.Detector
	Loader   carousel.Loader
}

// HeartEvent is published for every confirmed heart.
type HeartEvent struct {
	Count uint64    `json:"count"`
	At    time.Time `json:"at"`
}

// CardUpdate is published when a card's material changes.
type CardUpdate struct {
	Generation uint64            `json:"generation"`
	Card       carousel.CardInfo `json:"card"`
}

// SceneLoaded is the plugin payload sent when a scene finishes loading.
type SceneLoaded struct {
	Generation uint64 `json:"generation"`
	Cards      int    `json:"cards"`
	Loaded     int    `json:"loaded"`
}

// CameraUnavailable is the plugin payload sent when the pose source fails.
type CameraUnavailable struct {
	Reason string `json:"reason"`
}

// App is the running heartreel application.
type App struct {
	cfg    Config
	logger *slog.Logger

	hub        *server.Hub
	loop       *render.Loop
	normalizer *gesture.Normalizer
	plugins    *plugin.Manager
	hooks      *plugin.Hooks
	tracker    *carousel.Tracker
	loader     carousel.Loader

	camera      capture.Camera
	motion      *capture.MotionDetector
	detector    detector.Detector
	detectorErr error
	serverPose  atomic.Bool

	sceneMu    sync.Mutex
	scene      atomic.Pointer[carousel.Scene]
	generation uint64
	stopped    bool

	mu              sync.Mutex
	cameraAvailable bool
	cameraError     string
	poseSource      string
	lastConfirmed   *time.Time
	preview         *gocv.Mat
	previewHands    []detector.HandLandmarks
	listeners       []func(server.Status)

	runMu  sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group

	asyncMu  sync.Mutex
	ctx      context.Context
	stopping bool
	async    sync.WaitGroup
}

// ErrStopped is returned for work requested after Stop.
var ErrStopped = errors.New("app stopped")

// New creates an App. Nothing runs until Start.
func New(cfg Config) *App {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := cfg.Settings

	a := &App{
		cfg:        cfg,
		logger:     logger.With("component", "app"),
		normalizer: gesture.NewNormalizer(s.Detector.HeartThreshold),
		plugins:    plugin.NewManager(config.ExpandPath(s.Plugins.Dir)),
		tracker:    carousel.NewTracker(),
		loader:     cfg.Loader,
		camera:     cfg.Camera,
		detector:   cfg.Detector,
		poseSource: PoseNone,
		ctx:        context.Background(),
	}
	a.hooks = plugin.NewHooks(a.plugins, plugin.NewExecutor(s.Plugins.Timeout()), logger)

	if a.loader == nil {
		a.loader = &carousel.AssetLoader{
			StaticDir: cfg.StaticDir,
			Client:    &http.Client{Timeout: 15 * time.Second},
			MaxPixels: cfg.Settings.Carousel.MaxImagePixels,
		}
	}

	if s.Camera.Enabled {
		if a.camera == nil {
			a.camera = capture.NewCamera(capture.Options{
				DeviceID: s.Camera.DeviceID,
				Width:    s.Camera.Width,
				Height:   s.Camera.Height,
				FPS:      s.Camera.IdleFPS,
			})
		}
		if a.detector == nil {
			d, err := detector.NewMediaPipeDetector(detector.Config{
				MaxHands:        s.Detector.MaxHands,
				MinConfidence:   s.Detector.MinConfidence,
				MinTrackingConf: s.Detector.MinTrackingConfidence,
			}, logger)
			if err != nil {
				a.detectorErr = err
			} else {
				a.detector = d
			}
		}
		a.motion = capture.NewMotionDetector(s.Camera.MotionThreshold)
	}

	a.hub = server.NewHub(server.HubConfig{Handler: a, Hello: a.hello}, logger)

	profile := carousel.ProfileFor(defaultViewport.Width, s.Carousel.MobileBreakpoint)
	a.loop = render.NewLoop(render.Options{
		FPS: s.Render.FPS,
		Interaction: interaction.Config{
			Damping:    s.Interaction.Damping,
			DragGain:   s.Interaction.DragGain,
			ZoomEase:   s.Interaction.ZoomEase,
			MaxStep:    s.Interaction.MaxStepSec,
			MinZoom:    s.Interaction.MinZoom,
			MaxZoom:    s.Interaction.MaxZoom,
			WheelScale: s.Interaction.WheelScale,
		},
		InitialZoom:      profile.InitialZoom,
		Viewport:         defaultViewport,
		OnHeartConfirmed: a.heartConfirmed,
		OnResize:         a.resized,
	}, a.hub, logger)

	return a
}

// Hub returns the WebSocket hub browsers connect to.
func (a *App) Hub() *server.Hub {
	return a.hub
}

// Loop returns the render loop.
func (a *App) Loop() *render.Loop {
	return a.loop
}

// Plugins returns the plugin manager.
func (a *App) Plugins() *plugin.Manager {
	return a.plugins
}

// Tracker returns the scene resource tracker.
func (a *App) Tracker() *carousel.Tracker {
	return a.tracker
}

// Start runs the hub, the render loop and, when enabled, the camera pose
// pipeline, then builds the first scene. It returns once everything is
// running; Stop ends it.
func (a *App) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.cancel != nil {
		return errors.New("app already started")
	}
	a.sceneMu.Lock()
	stopped := a.stopped
	a.sceneMu.Unlock()
	if stopped {
		return ErrStopped
	}

	if err := a.plugins.Discover(); err != nil {
		a.logger.Warn("plugin discovery failed", "dir", a.plugins.PluginDir(), "err", err)
	} else if n := len(a.plugins.List()); n > 0 {
		a.logger.Info("plugins loaded", "count", n)
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	a.cancel, a.group = cancel, g
	a.asyncMu.Lock()
	a.ctx = gctx
	a.asyncMu.Unlock()

	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return a.loop.Run(gctx)
	})

	if a.cfg.Settings.Camera.Enabled {
		a.serverPose.Store(true)
		g.Go(func() error {
			a.runPipeline(gctx)
			return nil
		})
	} else {
		a.logger.Info("camera disabled, waiting for browser hand tracking")
	}

	a.goAsync(func(ctx context.Context) {
		if err := a.ReloadScene(ctx); err != nil {
			a.logger.Warn("initial scene build failed", "err", err)
		}
	})

	a.logger.Info("app started")
	return nil
}

// Stop halts every goroutine and releases the scene, the camera and the
// detector.
func (a *App) Stop() {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	// No reload may store a scene once stopped is set.
	a.sceneMu.Lock()
	if a.stopped {
		a.sceneMu.Unlock()
		return
	}
	a.stopped = true
	a.sceneMu.Unlock()

	a.asyncMu.Lock()
	a.stopping = true
	a.asyncMu.Unlock()

	if a.cancel != nil {
		a.cancel()
		if err := a.group.Wait(); err != nil {
			a.logger.Warn("component stopped with error", "err", err)
		}
		a.cancel = nil
	}
	a.async.Wait()

	a.sceneMu.Lock()
	if s := a.scene.Swap(nil); s != nil {
		s.Close()
	}
	a.sceneMu.Unlock()

	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			a.logger.Warn("error closing detector", "err", err)
		}
	}
	if a.motion != nil {
		a.motion.Close()
	}

	a.mu.Lock()
	if a.preview != nil {
		a.preview.Close()
		a.preview = nil
	}
	a.mu.Unlock()

	a.logger.Info("app stopped")
}

// goAsync runs fn in the background with the app context and reports
// whether it was started. Stop waits for it. Nothing runs once Stop has
// begun.
func (a *App) goAsync(fn func(ctx context.Context)) bool {
	a.asyncMu.Lock()
	defer a.asyncMu.Unlock()
	if a.stopping {
		return false
	}
	ctx := a.ctx
	a.async.Add(1)
	go func() {
		defer a.async.Done()
		fn(ctx)
	}()
	return true
}

// RequestReload rebuilds the scene in the background, bound to the app's
// lifetime. It does nothing after Stop.
func (a *App) RequestReload() {
	a.goAsync(func(ctx context.Context) {
		if err := a.ReloadScene(ctx); err != nil && !errors.Is(err, ErrStopped) {
			a.logger.Warn("scene reload failed", "err", err)
		}
	})
}

// Scene returns the current scene, or nil before the first build.
func (a *App) Scene() *carousel.Scene {
	return a.scene.Load()
}

// ReloadScene closes the current scene and builds a new one from the image
// catalogue with the profile for the current viewport. It returns once the
// new scene's textures are settled. A reload that is superseded by another
// returns nil. After Stop it returns ErrStopped and builds nothing.
func (a *App) ReloadScene(ctx context.Context) error {
	if a.cfg.Store == nil {
		return errors.New("no image store")
	}
	images, err := a.cfg.Store.Images().List()
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}
	sources := make([]carousel.Source, len(images))
	for i, img := range images {
		sources[i] = carousel.Source{ID: img.ID, URL: img.URL}
	}

	s := a.cfg.Settings.Carousel
	vp := a.hub.Viewport()
	if vp.Width <= 0 {
		vp = defaultViewport
	}
	profile := carousel.ProfileFor(vp.Width, s.MobileBreakpoint)

	a.sceneMu.Lock()
	if a.stopped {
		a.sceneMu.Unlock()
		return ErrStopped
	}
	old := a.scene.Load()
	if old != nil {
		old.Close()
	}
	a.generation++
	gen := a.generation

	var scene *carousel.Scene
	opts := carousel.SceneOptions{
		Profile:         profile,
		HeightAmplitude: s.HeightAmplitude,
		Texture: carousel.TextureOptions{
			MaxDimension: s.MaxTextureDim,
			Padding:      s.Padding,
		},
		Concurrency: s.LoadConcurrency,
		OnCardUpdate: func(generation uint64, c *carousel.Card) {
			if info, ok := scene.DescribeCard(c.Index); ok {
				a.publish(server.MsgCard, CardUpdate{Generation: generation, Card: info})
			}
		},
	}
	scene = carousel.NewScene(gen, sources, opts, a.loader, a.tracker, a.logger)
	a.scene.Store(scene)
	a.sceneMu.Unlock()

	if old == nil || old.Profile() != profile {
		a.loop.Send(render.Event{Kind: render.EventZoomTo, Delta: profile.InitialZoom})
	}
	a.publish(server.MsgScene, scene.Describe())
	a.logger.Info("scene built", "generation", gen, "cards", len(sources), "mobile", profile.Mobile)

	if err := scene.Load(ctx); err != nil {
		if errors.Is(err, carousel.ErrSceneClosed) {
			a.logger.Debug("scene superseded before load finished", "generation", gen)
			return nil
		}
		return fmt.Errorf("load scene %d: %w", gen, err)
	}

	loaded := loadedCards(scene)
	a.logger.Info("scene loaded", "generation", gen, "cards", len(sources), "textured", loaded)
	a.statusChanged()

	ev := SceneLoaded{Generation: gen, Cards: len(sources), Loaded: loaded}
	a.goAsync(func(ctx context.Context) {
		a.hooks.Fire(ctx, plugin.EventSceneLoaded, ev)
	})
	return nil
}

func loadedCards(s *carousel.Scene) int {
	n := 0
	for _, c := range s.Cards() {
		if c.Material().State == carousel.MaterialTextured {
			n++
		}
	}
	return n
}

// resized runs on the loop goroutine. A viewport crossing the breakpoint
// needs a scene with the other profile.
func (a *App) resized(v render.Viewport) {
	scene := a.scene.Load()
	if scene == nil {
		return
	}
	if carousel.ProfileFor(v.Width, a.cfg.Settings.Carousel.MobileBreakpoint) == scene.Profile() {
		return
	}
	a.logger.Info("viewport crossed breakpoint, rebuilding scene", "width", v.Width, "height", v.Height)
	a.RequestReload()
}

// heartConfirmed runs on the loop goroutine and must not block.
func (a *App) heartConfirmed(count uint64) {
	now := time.Now()
	a.mu.Lock()
	a.lastConfirmed = &now
	a.mu.Unlock()

	ev := HeartEvent{Count: count, At: now}
	a.publish(server.MsgHeartConfirmed, ev)
	a.statusChanged()
	a.goAsync(func(ctx context.Context) {
		a.hooks.Fire(ctx, plugin.EventHeartConfirmed, ev)
	})
}

// SetGestureEnabled turns hand control of the carousel on or off.
func (a *App) SetGestureEnabled(enabled bool) {
	a.loop.SetGestureEnabled(enabled)
	a.logger.Info("gesture control toggled", "enabled", enabled)
	a.statusChanged()
}

// OnStatusChange registers fn to be called with the new status whenever
// camera, gesture or confirmation state changes. fn runs on its own
// goroutine.
func (a *App) OnStatusChange(fn func(server.Status)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

func (a *App) statusChanged() {
	st := a.Status()
	a.publish(server.MsgStatus, st)

	a.mu.Lock()
	listeners := append([]func(server.Status){}, a.listeners...)
	a.mu.Unlock()
	for _, fn := range listeners {
		go fn(st)
	}
}

// Status reports the current application state.
func (a *App) Status() server.Status {
	snap := a.loop.Snapshot()

	a.mu.Lock()
	st := server.Status{
		CameraAvailable: a.cameraAvailable,
		CameraError:     a.cameraError,
		PoseSource:      a.poseSource,
		LastConfirmed:   a.lastConfirmed,
	}
	a.mu.Unlock()

	st.GestureEnabled = a.loop.GestureEnabled()
	st.HandVisible = snap.Control.Visible
	st.HeartPresent = snap.HeartPresent
	st.Confirmations = snap.Confirmations
	st.Clients = a.hub.Clients()

	if s := a.scene.Load(); s != nil {
		st.SceneGeneration = s.Generation()
		st.Cards = len(s.Cards())
		st.CardsLoaded = loadedCards(s)
	}
	return st
}

func (a *App) publish(typ string, data any) {
	if err := a.hub.Publish(typ, data); err != nil {
		a.logger.Warn("publish failed", "type", typ, "err", err)
	}
}

// hello is what every new browser receives before live frames.
func (a *App) hello() []server.Message {
	var msgs []server.Message
	if s := a.scene.Load(); s != nil {
		if m, err := server.NewMessage(server.MsgScene, s.Describe()); err == nil {
			msgs = append(msgs, m)
		}
	}
	if m, err := server.NewMessage(server.MsgStatus, a.Status()); err == nil {
		msgs = append(msgs, m)
	}
	return msgs
}

// HandleInput queues a browser input event for the render loop.
func (a *App) HandleInput(ev render.Event) {
	a.loop.Send(ev)
}

// HandleHands accepts hand frames from a browser running its own detector.
// They are ignored while the server camera is the pose source.
func (a *App) HandleHands(f detector.HandFrame) {
	if a.serverPose.Load() {
		return
	}

	a.mu.Lock()
	changed := a.poseSource != PoseBrowser || !a.cameraAvailable
	a.poseSource = PoseBrowser
	a.cameraAvailable = true
	a.cameraError = ""
	a.mu.Unlock()

	a.submit(f)
	if changed {
		a.statusChanged()
	}
}

// HandleCameraError records a browser's report that its camera failed.
func (a *App) HandleCameraError(message string) {
	if a.serverPose.Load() {
		a.logger.Debug("ignoring browser camera error while the server camera is in use", "message", message)
		return
	}
	a.cameraUnavailable(message)
}

// submit turns a hand frame into a reading for the render loop.
func (a *App) submit(f detector.HandFrame) {
	a.loop.SendReading(a.normalizer.Normalize(f))
}

// cameraUnavailable records a persistent pose failure. The carousel stays
// usable through pointer input.
func (a *App) cameraUnavailable(reason string) {
	a.mu.Lock()
	a.cameraAvailable = false
	a.cameraError = reason
	a.poseSource = PoseNone
	a.mu.Unlock()

	a.logger.Warn("camera unavailable", "reason", reason)
	a.submit(detector.NoHands{})
	a.statusChanged()

	ev := CameraUnavailable{Reason: reason}
	a.goAsync(func(ctx context.Context) {
		a.hooks.Fire(ctx, plugin.EventCameraUnavailable, ev)
	})
}

// serverCameraFailed gives up on the server camera and lets a browser
// detector take over as the pose source.
func (a *App) serverCameraFailed(reason string) {
	a.serverPose.Store(false)
	a.cameraUnavailable(reason)
}
