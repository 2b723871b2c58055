// Package tray provides the system tray menu for heartreel.
package tray

import (
	"fmt"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/ayusman/heartreel/internal/server"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle func(enabled bool)
	onOpen   func()
	onQuit   func()
	enabled  bool
	status   server.Status
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle    *systray.MenuItem
	menuCamera    *systray.MenuItem
	menuLastHeart *systray.MenuItem
}

// New creates a new Tray with gesture control enabled.
func New() *Tray {
	return &Tray{
		enabled: true,
	}
}

// OnToggle sets the callback called when gesture control is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnOpen sets the callback called when the carousel menu item is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray. It blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("♥")
	systray.SetTooltip("heartreel")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle hand gesture control")
	systray.AddSeparator()

	t.menuCamera = systray.AddMenuItem(cameraTitle(t.status), "Pose source status")
	t.menuCamera.Disable()
	t.menuLastHeart = systray.AddMenuItem(lastHeartTitle(t.status, time.Now()), "Last confirmed heart")
	t.menuLastHeart.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open Carousel...", "Open the carousel in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit heartreel")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Update refreshes the menu from an application status.
func (t *Tray) Update(st server.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = st
	t.enabled = st.GestureEnabled
	if t.menuToggle == nil {
		return
	}
	t.menuToggle.SetTitle(toggleTitle(st.GestureEnabled))
	t.menuCamera.SetTitle(cameraTitle(st))
	t.menuLastHeart.SetTitle(lastHeartTitle(st, time.Now()))
}

// IsEnabled returns whether gesture control is on.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Gestures On"
	}
	return "○ Gestures Off"
}

func cameraTitle(st server.Status) string {
	switch {
	case st.CameraAvailable:
		return "Camera: " + st.PoseSource
	case st.CameraError != "":
		return "Camera: unavailable"
	default:
		return "Camera: waiting"
	}
}

func lastHeartTitle(st server.Status, now time.Time) string {
	if st.LastConfirmed == nil {
		return "Last heart: none"
	}
	ago := now.Sub(*st.LastConfirmed).Round(time.Second)
	if ago < time.Second {
		return fmt.Sprintf("Last heart: just now (%d total)", st.Confirmations)
	}
	return fmt.Sprintf("Last heart: %s ago (%d total)", ago, st.Confirmations)
}
