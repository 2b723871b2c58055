// Package config loads the heartreel YAML configuration.
//
// Defaults come from DefaultConfig, a file may override any of them, and
// command-line flags override the file. Validate is called last so the
// rest of the program can assume a well-formed config.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Camera      CameraConfig      `yaml:"camera"`
	Detector    DetectorConfig    `yaml:"detector"`
	Interaction InteractionConfig `yaml:"interaction"`
	Render      RenderConfig      `yaml:"render"`
	Carousel    CarouselConfig    `yaml:"carousel"`
	Plugins     PluginsConfig     `yaml:"plugins"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir,omitempty"` // empty: search the usual web dirs
}

type StoreConfig struct {
	Path      string `yaml:"path"`
	SeedCount int    `yaml:"seed_count"`
}

type CameraConfig struct {
	Enabled         bool    `yaml:"enabled"`
	DeviceID        int     `yaml:"device_id"`
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	IdleFPS         int     `yaml:"idle_fps"`
	ActiveFPS       int     `yaml:"active_fps"`
	MotionThreshold float64 `yaml:"motion_threshold"`
	IdleTimeoutMS   int     `yaml:"idle_timeout_ms"`
}

// IdleTimeout is the quiet period after which the pose pipeline drops back
// to the idle frame rate.
func (c CameraConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMS) * time.Millisecond
}

type DetectorConfig struct {
	MaxHands              int     `yaml:"max_hands"`
	MinConfidence         float64 `yaml:"min_confidence"`
	MinTrackingConfidence float64 `yaml:"min_tracking_confidence"`
	HeartThreshold        float64 `yaml:"heart_threshold"`
}

type InteractionConfig struct {
	Damping    float64 `yaml:"damping"`
	DragGain   float64 `yaml:"drag_gain"`
	ZoomEase   float64 `yaml:"zoom_ease"`
	MaxStepSec float64 `yaml:"max_step_sec"`
	MinZoom    float64 `yaml:"min_zoom"`
	MaxZoom    float64 `yaml:"max_zoom"`
	WheelScale float64 `yaml:"wheel_scale"`
}

type RenderConfig struct {
	FPS int `yaml:"fps"`
}

// Interval is the render tick period.
func (c RenderConfig) Interval() time.Duration {
	return time.Second / time.Duration(c.FPS)
}

type CarouselConfig struct {
	MaxTextureDim    int     `yaml:"max_texture_dim"`
	Padding          int     `yaml:"padding"`
	HeightAmplitude  float64 `yaml:"height_amplitude"`
	LoadConcurrency  int     `yaml:"load_concurrency"`
	MobileBreakpoint int     `yaml:"mobile_breakpoint"`

	// MaxImagePixels rejects source images whose header declares more
	// pixels, before they are decoded.
	MaxImagePixels int `yaml:"max_image_pixels"`
}

type PluginsConfig struct {
	Dir       string `yaml:"dir"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// Timeout bounds a single plugin invocation.
func (c PluginsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		Store: StoreConfig{
			Path:      "~/.heartreel/heartreel.db",
			SeedCount: 16,
		},
		Camera: CameraConfig{
			Enabled:         true,
			DeviceID:        0,
			Width:           480,
			Height:          360,
			IdleFPS:         5,
			ActiveFPS:       15,
			MotionThreshold: 1.0,
			IdleTimeoutMS:   2000,
		},
		Detector: DetectorConfig{
			MaxHands:              2,
			MinConfidence:         0.7,
			MinTrackingConfidence: 0.7,
			HeartThreshold:        0.15,
		},
		Interaction: InteractionConfig{
			Damping:    0.92,
			DragGain:   0.15,
			ZoomEase:   0.001,
			MaxStepSec: 0.05,
			MinZoom:    200,
			MaxZoom:    4500,
			WheelScale: 2.0,
		},
		Render: RenderConfig{
			FPS: 60,
		},
		Carousel: CarouselConfig{
			MaxTextureDim:    1024,
			Padding:          18,
			HeightAmplitude:  250,
			LoadConcurrency:  4,
			MobileBreakpoint: 768,
			MaxImagePixels:   40_000_000,
		},
		Plugins: PluginsConfig{
			Dir:       "~/.heartreel/plugins",
			TimeoutMS: 5000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFile reads a YAML config file on top of the defaults.
// Unknown fields are rejected so typos surface as errors.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults.
func Parse(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file: defaults only.
			return cfg, nil
		}
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace and comments may follow the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds values set on the command line. A nil pointer means
// the flag was not given; a non-nil pointer is applied even if it holds the
// zero value.
type FlagOverrides struct {
	Addr      *string
	StaticDir *string
	StorePath *string

	CameraEnabled *bool
	CameraDevice  *int

	HeartThreshold *float64
	RenderFPS      *int

	PluginsDir *string
	LogLevel   *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Addr != nil {
		cfg.Server.Addr = *o.Addr
	}
	if o.StaticDir != nil {
		cfg.Server.StaticDir = *o.StaticDir
	}
	if o.StorePath != nil {
		cfg.Store.Path = *o.StorePath
	}

	if o.CameraEnabled != nil {
		cfg.Camera.Enabled = *o.CameraEnabled
	}
	if o.CameraDevice != nil {
		cfg.Camera.DeviceID = *o.CameraDevice
	}

	if o.HeartThreshold != nil {
		cfg.Detector.HeartThreshold = *o.HeartThreshold
	}
	if o.RenderFPS != nil {
		cfg.Render.FPS = *o.RenderFPS
	}

	if o.PluginsDir != nil {
		cfg.Plugins.Dir = *o.PluginsDir
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}

	if c.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if c.Store.SeedCount < 0 {
		return errors.New("store.seed_count must be >= 0")
	}

	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return errors.New("camera.width and camera.height must be > 0")
	}
	if c.Camera.IdleFPS <= 0 || c.Camera.ActiveFPS <= 0 {
		return errors.New("camera.idle_fps and camera.active_fps must be > 0")
	}
	if c.Camera.IdleFPS > c.Camera.ActiveFPS {
		return errors.New("camera.idle_fps must be <= camera.active_fps")
	}
	if c.Camera.MotionThreshold < 0 {
		return errors.New("camera.motion_threshold must be >= 0")
	}
	if c.Camera.IdleTimeoutMS < 0 {
		return errors.New("camera.idle_timeout_ms must be >= 0")
	}

	if c.Detector.MaxHands < 1 || c.Detector.MaxHands > 2 {
		return errors.New("detector.max_hands must be 1 or 2")
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		return errors.New("detector.min_confidence must be between 0 and 1")
	}
	if c.Detector.MinTrackingConfidence < 0 || c.Detector.MinTrackingConfidence > 1 {
		return errors.New("detector.min_tracking_confidence must be between 0 and 1")
	}
	if c.Detector.HeartThreshold <= 0 {
		return errors.New("detector.heart_threshold must be > 0")
	}

	if c.Interaction.Damping <= 0 || c.Interaction.Damping >= 1 {
		return errors.New("interaction.damping must be between 0 and 1 (exclusive)")
	}
	if c.Interaction.ZoomEase <= 0 || c.Interaction.ZoomEase >= 1 {
		return errors.New("interaction.zoom_ease must be between 0 and 1 (exclusive)")
	}
	if c.Interaction.MaxStepSec <= 0 {
		return errors.New("interaction.max_step_sec must be > 0")
	}
	if c.Interaction.MinZoom >= c.Interaction.MaxZoom {
		return errors.New("interaction.min_zoom must be < interaction.max_zoom")
	}

	if c.Render.FPS <= 0 || c.Render.FPS > 240 {
		return errors.New("render.fps must be between 1 and 240")
	}

	if c.Carousel.MaxTextureDim < 8 {
		return errors.New("carousel.max_texture_dim must be >= 8")
	}
	if c.Carousel.Padding < 0 {
		return errors.New("carousel.padding must be >= 0")
	}
	if c.Carousel.LoadConcurrency <= 0 {
		return errors.New("carousel.load_concurrency must be > 0")
	}
	if c.Carousel.MobileBreakpoint <= 0 {
		return errors.New("carousel.mobile_breakpoint must be > 0")
	}
	if c.Carousel.MaxImagePixels <= 0 {
		return errors.New("carousel.max_image_pixels must be > 0")
	}

	if c.Plugins.TimeoutMS <= 0 {
		return errors.New("plugins.timeout_ms must be > 0")
	}

	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ExpandPath expands a leading "~" to the user's home directory.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
