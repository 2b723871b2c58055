// Package server provides the HTTP and WebSocket surface of heartreel: the
// image catalogue API, scene and texture downloads for the browser
// renderer, the camera preview and the live frame stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/heartreel/internal/carousel"
	"github.com/ayusman/heartreel/internal/server/api"
	"github.com/ayusman/heartreel/internal/store"
)

// Status is the application state reported by /api/status and broadcast
// to clients.
type Status struct {
	CameraAvailable bool       `json:"camera_available"`
	CameraError     string     `json:"camera_error,omitempty"`
	PoseSource      string     `json:"pose_source"`
	GestureEnabled  bool       `json:"gesture_enabled"`
	HandVisible     bool       `json:"hand_visible"`
	HeartPresent    bool       `json:"heart_present"`
	Confirmations   uint64     `json:"confirmations"`
	LastConfirmed   *time.Time `json:"last_confirmed,omitempty"`
	SceneGeneration uint64     `json:"scene_generation"`
	Cards           int        `json:"cards"`
	CardsLoaded     int        `json:"cards_loaded"`
	Clients         int        `json:"clients"`
}

// Backend is the application the server exposes.
type Backend interface {
	Status() Status
	// Scene returns the current scene, or nil before the first build.
	Scene() *carousel.Scene
	// RequestReload schedules a scene rebuild from the image catalogue.
	// It must not block and must not outlive the backend.
	RequestReload()
}

// Config holds the server configuration. Routes whose dependency is nil
// are not registered.
type Config struct {
	StaticDir string
	Store     *store.Store
	Backend   Backend
	Hub       *Hub
	Preview   Preview
	// PreviewFPS is the MJPEG frame rate; zero means 15.
	PreviewFPS int
	Logger     *slog.Logger
}

// Server represents the HTTP server.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: logger.With("component", "server"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		images := api.NewImageHandler(s.config.Store, s.reloadScene)
		s.mux.Handle("/api/images", images)
		s.mux.Handle("/api/images/", images)
	}

	if s.config.Backend != nil {
		s.mux.HandleFunc("GET /api/status", s.handleStatus)
		s.mux.HandleFunc("GET /api/scene", s.handleScene)
		s.mux.HandleFunc("GET /api/cards/{index}/{file}", s.handleCardTexture)
	}

	if s.config.Preview != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Preview, s.config.PreviewFPS))
	}

	if s.config.Hub != nil {
		s.mux.Handle("/api/ws", s.config.Hub)
	}

	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// reloadScene asks the backend to rebuild the scene after the catalogue
// changed. The backend owns the rebuild, so the API call returns at once.
func (s *Server) reloadScene() {
	if s.config.Backend == nil {
		return
	}
	s.config.Backend.RequestReload()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, s.config.Backend.Status())
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	scene := s.config.Backend.Scene()
	if scene == nil {
		api.WriteError(w, http.StatusServiceUnavailable, "Scene not built yet")
		return
	}
	api.WriteJSON(w, http.StatusOK, scene.Describe())
}

// handleCardTexture serves /api/cards/{index}/{photo|frame}.png.
func (s *Server) handleCardTexture(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		api.WriteError(w, http.StatusBadRequest, "Invalid card index")
		return
	}
	kind, ok := strings.CutSuffix(r.PathValue("file"), ".png")
	if !ok || (kind != string(carousel.TexturePhoto) && kind != string(carousel.TextureFrame)) {
		api.WriteError(w, http.StatusNotFound, "Unknown texture")
		return
	}

	scene := s.config.Backend.Scene()
	if scene == nil {
		api.WriteError(w, http.StatusServiceUnavailable, "Scene not built yet")
		return
	}

	img, err := scene.TextureImage(index, carousel.TextureKind(kind))
	switch {
	case errors.Is(err, carousel.ErrNoTexture):
		api.WriteError(w, http.StatusNotFound, "Texture not loaded")
		return
	case errors.Is(err, carousel.ErrSceneClosed):
		api.WriteError(w, http.StatusGone, "Scene was replaced")
		return
	case err != nil:
		api.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", 3600))
	w.Header().Set("X-Scene-Generation", strconv.FormatUint(scene.Generation(), 10))
	if err := png.Encode(w, img); err != nil {
		s.logger.Debug("texture encode failed", "card", index, "err", err)
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()
	s.logger.Info("listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}
