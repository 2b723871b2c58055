package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/ayusman/heartreel/internal/app"
	"github.com/ayusman/heartreel/internal/config"
	"github.com/ayusman/heartreel/internal/logging"
	"github.com/ayusman/heartreel/internal/server"
	"github.com/ayusman/heartreel/internal/store"
	"github.com/ayusman/heartreel/internal/tray"
)

const defaultConfigPath = "~/.heartreel/config.yaml"

func main() {
	var (
		configPath     = flag.String("config", "", "YAML config file (default "+defaultConfigPath+" if it exists)")
		addr           = flag.String("addr", "", "HTTP listen address")
		staticDir      = flag.String("static-dir", "", "Directory with the browser renderer and images")
		dbPath         = flag.String("db", "", "SQLite image catalogue path")
		camera         = flag.Bool("camera", true, "Use the local camera for hand tracking")
		cameraDevice   = flag.Int("camera-device", 0, "Camera device index")
		heartThreshold = flag.Float64("heart-threshold", 0, "Max fingertip distance for the heart gesture")
		fps            = flag.Int("fps", 0, "Render loop rate")
		pluginsDir     = flag.String("plugins", "", "Plugin directory")
		logLevel       = flag.String("log-level", "", "Log level (error, warn, info, debug)")
		noTray         = flag.Bool("no-tray", false, "Run without the system tray")
	)
	flag.Parse()

	// Only flags given on the command line override the config file.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	var overrides config.FlagOverrides
	if set["addr"] {
		overrides.Addr = addr
	}
	if set["static-dir"] {
		overrides.StaticDir = staticDir
	}
	if set["db"] {
		overrides.StorePath = dbPath
	}
	if set["camera"] {
		overrides.CameraEnabled = camera
	}
	if set["camera-device"] {
		overrides.CameraDevice = cameraDevice
	}
	if set["heart-threshold"] {
		overrides.HeartThreshold = heartThreshold
	}
	if set["fps"] {
		overrides.RenderFPS = fps
	}
	if set["plugins"] {
		overrides.PluginsDir = pluginsDir
	}
	if set["log-level"] {
		overrides.LogLevel = logLevel
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	overrides.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		fatal(fmt.Errorf("invalid config: %w", err))
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		fatal(err)
	}
	logger := logging.New(os.Stderr, level)
	slog.SetDefault(logger)

	dbFile := config.ExpandPath(cfg.Store.Path)
	if err := os.MkdirAll(filepath.Dir(dbFile), 0755); err != nil {
		fatal(fmt.Errorf("create data directory: %w", err))
	}
	st, err := store.New(dbFile)
	if err != nil {
		fatal(fmt.Errorf("open store: %w", err))
	}
	defer st.Close()

	if n, err := st.Images().Seed(cfg.Store.SeedCount); err != nil {
		fatal(fmt.Errorf("seed images: %w", err))
	} else if n > 0 {
		logger.Info("seeded image catalogue", "images", n)
	}

	webDir := cfg.Server.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	} else {
		webDir = config.ExpandPath(webDir)
	}
	if webDir != "" {
		logger.Info("serving static files", "dir", webDir)
	} else {
		logger.Warn("no web directory found, only the API is served")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.New(app.Config{
		Settings:  cfg,
		Store:     st,
		StaticDir: webDir,
		Logger:    logger,
	})

	srvCfg := server.Config{
		StaticDir: webDir,
		Store:     st,
		Backend:   a,
		Hub:       a.Hub(),
		Logger:    logger,
	}
	if cfg.Camera.Enabled {
		srvCfg.Preview = a
	}
	srv := server.New(srvCfg)

	if err := a.Start(ctx); err != nil {
		fatal(err)
	}
	defer a.Stop()

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.ListenAndServe(ctx, cfg.Server.Addr)
	}()

	if *noTray {
		select {
		case <-ctx.Done():
		case err := <-srvErr:
			if err != nil {
				logger.Error("server failed", "err", err)
			}
		}
		logger.Info("shutting down")
		stop()
		return
	}

	t := tray.New()
	t.OnToggle(a.SetGestureEnabled)
	t.OnOpen(func() {
		if err := openBrowser(browserURL(cfg.Server.Addr)); err != nil {
			logger.Warn("failed to open browser", "err", err)
		}
	})
	t.OnQuit(stop)
	a.OnStatusChange(t.Update)

	go func() {
		select {
		case <-ctx.Done():
		case err := <-srvErr:
			if err != nil {
				logger.Error("server failed", "err", err)
			}
		}
		t.Quit()
	}()

	// The tray must own the main thread.
	t.Run()
	logger.Info("shutting down")
	stop()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "heartreel: %v\n", err)
	os.Exit(1)
}

// loadConfig reads path, or the default config file when path is empty and
// the file exists. Without a file the defaults are used.
func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.LoadFile(defaultConfigPath)
	if errors.Is(err, os.ErrNotExist) {
		return config.DefaultConfig(), nil
	}
	return cfg, err
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.heartreel/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".heartreel", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}

// browserURL turns a listen address into a URL for the local browser.
func browserURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
