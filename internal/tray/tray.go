// Package tray provides a system tray menu for controlling the overlay when no
// window is shown.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

const (
	titleCameraOn  = "● Camera on"
	titleCameraOff = "○ Camera off"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle func() bool
	onReset  func()
	onQuit   func()
	enabled  bool
	status   string
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuStatus *systray.MenuItem
}

// New creates a new Tray with the camera enabled.
func New() *Tray {
	return &Tray{
		enabled: true,
		status:  "starting",
	}
}

// OnToggle sets the callback invoked when the camera is toggled. It flips the
// owner's camera state and returns the new value, which the menu then shows.
func (t *Tray) OnToggle(fn func() bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnReset sets the callback invoked when reset is clicked.
func (t *Tray) OnReset(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReset = fn
}

// OnQuit sets the callback invoked when quit is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray. It must be called from the main goroutine and
// blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit stops the tray loop.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Mukha")
	systray.SetTooltip("Mukha face overlay")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle the camera")
	systray.AddSeparator()
	t.menuStatus = systray.AddMenuItem(statusTitle(t.status), "Detection status")
	t.menuStatus.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuReset := systray.AddMenuItem("Reset", "Reset particles")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit Mukha")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuReset.ClickedCh:
				t.handleReset()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				systray.Quit()
				return
			}
		}
	}()
}

// handleToggle asks the owner to flip the camera and shows the result.
func (t *Tray) handleToggle() {
	t.mu.RLock()
	callback := t.onToggle
	t.mu.RUnlock()

	if callback == nil {
		return
	}
	// Call the callback outside the lock to prevent deadlocks
	t.SetEnabled(callback())
}

func (t *Tray) handleReset() {
	t.mu.RLock()
	callback := t.onReset
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
}

// SetEnabled syncs the toggle with a camera state changed elsewhere.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// SetStatus updates the status line in the menu.
func (t *Tray) SetStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if status == t.status {
		return
	}
	t.status = status
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(statusTitle(status))
	}
}

// IsEnabled returns the current camera state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Status returns the last status set.
func (t *Tray) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func toggleTitle(enabled bool) string {
	if enabled {
		return titleCameraOn
	}
	return titleCameraOff
}

func statusTitle(status string) string {
	if status == "" {
		return "Status: idle"
	}
	return "Status: " + status
}
