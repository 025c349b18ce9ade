// Package app runs the live face overlay pipeline: it bootstraps the camera
// and the landmark detector, drives detection and rendering as independent
// loops, and tears everything down again.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/mukha/internal/capture"
	"github.com/ayusman/mukha/internal/detector"
	"github.com/ayusman/mukha/internal/particle"
	"github.com/ayusman/mukha/internal/render"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Pipeline defaults.
const (
	// DefaultPollInterval is the delay between polling detection cycles.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultFPS is the render loop frame rate.
	DefaultFPS = 30
	// DefaultBootstrapTimeout bounds the wait for the first camera frame.
	DefaultBootstrapTimeout = 30 * time.Second
	// DefaultViewportWidth and DefaultViewportHeight describe the screen the
	// canvas is laid out in.
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	// BurstEvery is the frame period of face bursts.
	BurstEvery = 5
	// BurstSize is the number of particles spawned per burst.
	BurstSize = 3
	// resetNoticeFrames is how long the reset status stays on screen.
	resetNoticeFrames = 30
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// current lifecycle state.
	ErrInvalidState = errors.New("invalid pipeline state")
	// ErrStopped is returned when the pipeline is torn down during bootstrap.
	ErrStopped = errors.New("pipeline stopped")
)

// Mode selects how the detection loop is driven.
type Mode string

// Detection modes
const (
	ModeStreaming Mode = "streaming"
	ModePolling   Mode = "polling"
)

// State is a pipeline lifecycle state.
type State int32

// Lifecycle states
const (
	StateIdle State = iota
	StateBootstrapping
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBootstrapping:
		return "bootstrapping"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Config holds configuration options for the pipeline.
type Config struct {
	Camera   capture.Camera
	Loader   detector.Loader
	Detector detector.Config
	Surface  render.Surface
	Logger   logrus.FieldLogger

	Mode             Mode
	PollInterval     time.Duration
	FPS              int
	BootstrapTimeout time.Duration

	Particles      particle.Config
	ViewportWidth  int
	ViewportHeight int
	CanvasFraction float64
	ShowLandmarks  bool

	// Rand seeds the particle system. Nil uses a time-seeded source.
	Rand *rand.Rand
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	Session          string `json:"session"`
	State            string `json:"state"`
	Mode             Mode   `json:"mode"`
	CameraEnabled    bool   `json:"camera_enabled"`
	CameraReady      bool   `json:"camera_ready"`
	ModelReady       bool   `json:"model_ready"`
	Faces            int    `json:"faces"`
	Message          string `json:"message"`
	Frames           uint64 `json:"frames"`
	Particles        int    `json:"particles"`
	DetectErrors     uint64 `json:"detect_errors"`
	SuppressedErrors uint64 `json:"suppressed_errors"`
	Uptime           string `json:"uptime"`
}

// App is one pipeline instance. Create it with New, start it with Activate
// and release it with Teardown.
type App struct {
	config  Config
	log     logrus.FieldLogger
	session string
	started time.Time

	camera     capture.Camera
	perception Perception
	cameraGate *gate
	modelGate  *gate

	mu        sync.Mutex
	state     State
	mode      Mode
	layout    render.Rect
	detector  detector.Detector
	streamer  detector.Streamer
	streaming bool

	// pubMu orders perception writes against camera toggles.
	pubMu    sync.Mutex
	cameraOn atomic.Bool

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	teardown    sync.Once
	teardownErr error

	resetCh  chan struct{}
	resizeCh chan render.Rect
	quit     chan struct{}
	quitOnce sync.Once

	errLimit     *rate.Limiter
	detectErrors atomic.Uint64
	suppressed   atomic.Uint64
	frames       atomic.Uint64
	particles    atomic.Int64
	resetUntil   atomic.Uint64
}

// New creates an idle pipeline. Zero config fields take their defaults.
func New(config Config) *App {
	if config.Camera == nil {
		config.Camera = capture.NewCamera(0)
	}
	if config.Loader == nil {
		config.Loader = detector.FirstOf(detector.MediaPipeLoader, detector.CascadeLoader)
	}
	if config.Detector == (detector.Config{}) {
		config.Detector = detector.DefaultConfig()
	}
	if config.Surface == nil {
		config.Surface = render.Multi{}
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	if config.Mode == "" {
		config.Mode = ModeStreaming
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.FPS <= 0 {
		config.FPS = DefaultFPS
	}
	if config.BootstrapTimeout <= 0 {
		config.BootstrapTimeout = DefaultBootstrapTimeout
	}
	if config.Particles == (particle.Config{}) {
		config.Particles = particle.DefaultConfig()
	}
	if config.ViewportWidth <= 0 || config.ViewportHeight <= 0 {
		config.ViewportWidth, config.ViewportHeight = DefaultViewportWidth, DefaultViewportHeight
	}

	session := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		config:  config,
		session: session,
		started: time.Now(),
		log: config.Logger.WithFields(logrus.Fields{
			"session":   session,
			"component": "app",
		}),
		camera:     config.Camera,
		cameraGate: newGate(),
		modelGate:  newGate(),
		mode:       config.Mode,
		layout:     render.Layout(config.ViewportWidth, config.ViewportHeight, config.CanvasFraction),
		ctx:        ctx,
		cancel:     cancel,
		resetCh:    make(chan struct{}, 1),
		resizeCh:   make(chan render.Rect, 1),
		quit:       make(chan struct{}),
		errLimit:   rate.NewLimiter(rate.Every(time.Second), 5),
	}
	a.cameraOn.Store(true)
	return a
}

// Session returns the session ID of this pipeline instance.
func (a *App) Session() string {
	return a.session
}

// State returns the current lifecycle state.
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Perception returns the shared perception state.
func (a *App) Perception() *Perception {
	return &a.perception
}

// CameraEnabled reports whether the camera toggle is on.
func (a *App) CameraEnabled() bool {
	return a.cameraOn.Load()
}

// SetCameraEnabled switches the camera toggle. While off no frames are
// submitted for detection, the overlay is cleared and the feed is replaced by
// a placeholder.
func (a *App) SetCameraEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setCameraLocked(enabled)
}

// ToggleCamera flips the camera toggle and returns the new state.
func (a *App) ToggleCamera() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	enabled := !a.cameraOn.Load()
	a.setCameraLocked(enabled)
	return enabled
}

// setCameraLocked applies the toggle and its stream side effects in one
// critical section. a.mu must be held.
func (a *App) setCameraLocked(enabled bool) {
	a.pubMu.Lock()
	changed := a.cameraOn.Swap(enabled) != enabled
	if changed && !enabled {
		a.perception.Clear()
	}
	a.pubMu.Unlock()

	if !changed {
		return
	}
	a.log.WithField("enabled", enabled).Info("camera toggled")

	if a.state != StateActive || a.streamer == nil {
		return
	}
	if enabled {
		a.startStreamLocked()
	} else {
		a.stopStreamLocked()
	}
}

// Reset clears perception and asks the render loop to reseed the particles.
func (a *App) Reset() {
	a.pubMu.Lock()
	a.perception.Clear()
	a.pubMu.Unlock()

	select {
	case a.resetCh <- struct{}{}:
	default:
	}
	a.log.Info("reset requested")
}

// Resize lays the canvas out in a new viewport.
func (a *App) Resize(width, height int) {
	rect := render.Layout(width, height, a.config.CanvasFraction)

	a.mu.Lock()
	a.layout = rect
	a.mu.Unlock()

	for {
		select {
		case a.resizeCh <- rect:
			return
		default:
		}
		select {
		case <-a.resizeCh:
		default:
		}
	}
}

// Layout returns the current canvas placement.
func (a *App) Layout() render.Rect {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.layout
}

// Quit asks the owner of the pipeline to shut it down.
func (a *App) Quit() {
	a.quitOnce.Do(func() { close(a.quit) })
}

// Quitting is closed once Quit has been called.
func (a *App) Quitting() <-chan struct{} {
	return a.quit
}

// Status returns a snapshot of the pipeline state.
func (a *App) Status() Status {
	a.mu.Lock()
	state, mode := a.state, a.mode
	a.mu.Unlock()

	snap := a.perception.Load()
	frames := a.frames.Load()
	on := a.cameraOn.Load()

	return Status{
		Session:          a.session,
		State:            state.String(),
		Mode:             mode,
		CameraEnabled:    on,
		CameraReady:      a.cameraGate.Ready(),
		ModelReady:       a.modelGate.Ready(),
		Faces:            len(snap.Faces),
		Message:          statusText(on, len(snap.Faces), frames < a.resetUntil.Load()),
		Frames:           frames,
		Particles:        int(a.particles.Load()),
		DetectErrors:     a.detectErrors.Load(),
		SuppressedErrors: a.suppressed.Load(),
		Uptime:           time.Since(a.started).Round(time.Second).String(),
	}
}

// Teardown stops both loops and releases the detector and the camera. It is
// safe to call at any point of the lifecycle, any number of times.
func (a *App) Teardown() error {
	a.teardown.Do(func() {
		a.mu.Lock()
		prev := a.state
		a.state = StateStopped
		a.stopStreamLocked()
		a.mu.Unlock()

		a.cancel()
		a.wg.Wait()

		a.mu.Lock()
		d := a.detector
		a.detector = nil
		a.mu.Unlock()

		var errs []error
		if d != nil {
			if err := d.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close detector: %w", err))
			}
		}
		if prev == StateBootstrapping || prev == StateActive {
			if err := a.camera.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close camera: %w", err))
			}
		}
		a.teardownErr = errors.Join(errs...)

		a.log.WithField("from", prev.String()).Info("pipeline stopped")
	})
	return a.teardownErr
}

func statusText(cameraOn bool, faces int, resetting bool) string {
	switch {
	case resetting:
		return "reset"
	case !cameraOn:
		return "camera off"
	case faces > 0:
		return fmt.Sprintf("face detected (%d)", faces)
	}
	return "looking for face"
}
