package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/mukha/internal/capture"
	"github.com/ayusman/mukha/internal/detector"
)

func activateAsync(a *App) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.Activate(context.Background()) }()
	return errCh
}

func TestApp_Activate_OrderIndependence(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pipeline test")
	}

	tests := []struct {
		name        string
		cameraFirst bool
	}{
		{name: "camera ready first", cameraFirst: true},
		{name: "model ready first", cameraFirst: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := newTestCamera(t)
			cam.Hold()
			det := detector.NewMockDetector()
			det.SetFaces([]detector.Face{detector.SampleFace(640, 480)})
			loader := detector.NewMockLoader(det, nil)

			a := New(testConfig(cam, loader, ModeStreaming))
			defer a.Teardown()

			errCh := activateAsync(a)
			waitFor(t, "bootstrap to start", func() bool {
				return cam.Opens() == 1 && loader.Loads() == 1
			})

			if tt.cameraFirst {
				cam.Deliver()
			} else {
				loader.Release()
			}

			time.Sleep(30 * time.Millisecond)
			if a.State() != StateBootstrapping {
				t.Fatalf("State() = %v with one resource pending, want bootstrapping", a.State())
			}
			if det.Calls() != 0 {
				t.Fatalf("detection ran before both resources were ready (%d calls)", det.Calls())
			}

			if tt.cameraFirst {
				loader.Release()
			} else {
				cam.Deliver()
			}

			if err := <-errCh; err != nil {
				t.Fatalf("Activate() error = %v", err)
			}
			if a.State() != StateActive {
				t.Errorf("State() = %v, want active", a.State())
			}

			waitFor(t, "faces to be published", func() bool {
				return len(a.Perception().Load().Faces) == 1
			})

			st := a.Status()
			if !st.CameraReady || !st.ModelReady {
				t.Errorf("status readiness = camera %v model %v", st.CameraReady, st.ModelReady)
			}
			if st.Mode != ModeStreaming {
				t.Errorf("Mode = %v, want streaming", st.Mode)
			}
		})
	}
}

func TestApp_Activate_Fatal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pipeline test")
	}

	tests := []struct {
		name      string
		openErr   error
		hold      bool
		loadErr   error
		timeout   time.Duration
		wantErr   error
		wantModel bool
	}{
		{name: "permission denied", openErr: capture.ErrPermissionDenied, wantErr: capture.ErrPermissionDenied},
		{name: "device unavailable", openErr: capture.ErrDeviceUnavailable, wantErr: capture.ErrDeviceUnavailable},
		{name: "model load failed", loadErr: detector.ErrModelLoad, wantErr: detector.ErrModelLoad},
		{name: "loader error is wrapped", loadErr: errors.New("no python"), wantErr: detector.ErrModelLoad},
		{name: "no first frame", hold: true, timeout: 50 * time.Millisecond, wantErr: capture.ErrDeviceUnavailable, wantModel: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := newTestCamera(t)
			if tt.openErr != nil {
				cam.SetOpenError(tt.openErr)
			}
			if tt.hold {
				cam.Hold()
			}
			det := detector.NewMockDetector()
			loader := detector.NewMockLoader(det, tt.loadErr)
			loader.Release()

			cfg := testConfig(cam, loader, ModeStreaming)
			if tt.timeout > 0 {
				cfg.BootstrapTimeout = tt.timeout
			}
			a := New(cfg)
			defer a.Teardown()

			err := a.Activate(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Activate() error = %v, want %v", err, tt.wantErr)
			}
			if a.State() != StateStopped {
				t.Errorf("State() = %v, want stopped", a.State())
			}
			if cam.Closes() == 0 {
				t.Error("camera should be released after a failed bootstrap")
			}
			if tt.wantModel && !det.Closed() {
				t.Error("loaded detector should be released after a failed bootstrap")
			}
			if det.Streaming() {
				t.Error("no stream may run after a failed bootstrap")
			}

			if err := a.Activate(context.Background()); !errors.Is(err, ErrInvalidState) {
				t.Errorf("second Activate() error = %v, want ErrInvalidState", err)
			}
		})
	}
}

func TestApp_DetectionErrorDoesNotStopLoop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pipeline test")
	}

	for _, mode := range []Mode{ModePolling, ModeStreaming} {
		t.Run(string(mode), func(t *testing.T) {
			cam := newTestCamera(t)
			det := detector.NewMockDetector()
			face := detector.SampleFace(640, 480)
			det.Script(
				detector.MockResult{Faces: []detector.Face{face}},
				detector.MockResult{Err: detector.ErrDetection},
				detector.MockResult{Err: detector.ErrDetection},
			)
			det.SetFaces([]detector.Face{face, face})
			loader := detector.NewMockLoader(det, nil)
			loader.Release()

			a := New(testConfig(cam, loader, mode))
			defer a.Teardown()

			if err := a.Activate(context.Background()); err != nil {
				t.Fatalf("Activate() error = %v", err)
			}

			waitFor(t, "a successful cycle after the failures", func() bool {
				return len(a.Perception().Load().Faces) == 2
			})

			st := a.Status()
			if st.DetectErrors != 2 {
				t.Errorf("DetectErrors = %d, want 2", st.DetectErrors)
			}
			if st.State != StateActive.String() {
				t.Errorf("State = %s, want active", st.State)
			}
			if det.Calls() < 4 {
				t.Errorf("Calls() = %d, want at least 4", det.Calls())
			}
		})
	}
}

func TestApp_PollingFallback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pipeline test")
	}

	cam := newTestCamera(t)
	det := detector.NewMockDetector()
	loader := detector.NewMockLoader(detector.PullOnly{Detector: det}, nil)
	loader.Release()

	a := New(testConfig(cam, loader, ModeStreaming))
	defer a.Teardown()

	if err := a.Activate(context.Background()); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	if a.Status().Mode != ModePolling {
		t.Errorf("Mode = %v, want polling fallback", a.Status().Mode)
	}
	waitFor(t, "polling cycles", func() bool { return det.Calls() >= 3 })
	if det.Streaming() {
		t.Error("pull-only detector should never stream")
	}
}

func TestApp_CameraToggle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pipeline test")
	}

	for _, mode := range []Mode{ModePolling, ModeStreaming} {
		t.Run(string(mode), func(t *testing.T) {
			cam := newTestCamera(t)
			det := detector.NewMockDetector()
			det.SetFaces([]detector.Face{detector.SampleFace(640, 480)})
			loader := detector.NewMockLoader(det, nil)
			loader.Release()

			a := New(testConfig(cam, loader, mode))
			defer a.Teardown()

			if err := a.Activate(context.Background()); err != nil {
				t.Fatalf("Activate() error = %v", err)
			}
			waitFor(t, "first faces", func() bool { return len(a.Perception().Load().Faces) == 1 })

			a.SetCameraEnabled(false)

			if n := len(a.Perception().Load().Faces); n != 0 {
				t.Errorf("perception should be cleared when the camera is off, got %d faces", n)
			}
			if mode == ModeStreaming && det.Streaming() {
				t.Error("stream should stop while the camera is off")
			}

			// Let any in-flight polling cycle finish before sampling.
			time.Sleep(20 * time.Millisecond)
			calls := det.Calls()
			time.Sleep(50 * time.Millisecond)
			if det.Calls() != calls {
				t.Errorf("detection ran while the camera was off (%d -> %d)", calls, det.Calls())
			}
			if n := len(a.Perception().Load().Faces); n != 0 {
				t.Errorf("faces published while the camera was off: %d", n)
			}
			if msg := a.Status().Message; msg != "camera off" {
				t.Errorf("status = %q, want camera off", msg)
			}

			a.SetCameraEnabled(true)
			waitFor(t, "detection to resume", func() bool {
				return det.Calls() > calls && len(a.Perception().Load().Faces) == 1
			})
			if mode == ModeStreaming && !det.Streaming() {
				t.Error("stream should restart when the camera is back on")
			}
			if msg := a.Status().Message; msg != "face detected (1)" {
				t.Errorf("status = %q, want face detected (1)", msg)
			}
		})
	}
}

func TestApp_CameraToggle_Concurrent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pipeline test")
	}

	cam := newTestCamera(t)
	det := detector.NewMockDetector()
	det.SetFaces([]detector.Face{detector.SampleFace(640, 480)})
	loader := detector.NewMockLoader(det, nil)
	loader.Release()

	a := New(testConfig(cam, loader, ModeStreaming))
	defer a.Teardown()

	if err := a.Activate(context.Background()); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				switch i % 3 {
				case 0:
					a.SetCameraEnabled(false)
				case 1:
					a.SetCameraEnabled(true)
				default:
					a.ToggleCamera()
				}
			}(i)
		}
		wg.Wait()

		if det.Streaming() != a.CameraEnabled() {
			t.Fatalf("round %d: streaming = %v, camera enabled = %v", round, det.Streaming(), a.CameraEnabled())
		}
	}

	a.SetCameraEnabled(true)
	if !det.Streaming() {
		t.Error("stream should run with the camera on")
	}
	waitFor(t, "faces after toggling", func() bool { return len(a.Perception().Load().Faces) == 1 })
}

func TestApp_ToggleCamera(t *testing.T) {
	a := New(Config{Logger: quietLogger()})

	if a.ToggleCamera() {
		t.Error("first toggle should turn the camera off")
	}
	if a.CameraEnabled() {
		t.Error("CameraEnabled() = true after toggling off")
	}
	if !a.ToggleCamera() || !a.CameraEnabled() {
		t.Error("second toggle should turn the camera back on")
	}
}

func TestApp_RenderLoop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pipeline test")
	}

	cam := newTestCamera(t)
	det := detector.NewMockDetector()
	loader := detector.NewMockLoader(det, nil)
	loader.Release()

	cfg := testConfig(cam, loader, ModePolling)
	surface := cfg.Surface.(*recordSurface)
	a := New(cfg)
	defer a.Teardown()

	if err := a.Activate(context.Background()); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	waitFor(t, "frames to be presented", func() bool { return surface.Presents() >= 5 })
	if got := a.Status().Particles; got < 30 {
		t.Errorf("Particles = %d, want at least the floor", got)
	}

	surface.Press('q')
	select {
	case <-a.Quitting():
	case <-time.After(2 * time.Second):
		t.Fatal("quit key was not handled")
	}
}

func TestApp_Teardown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pipeline test")
	}

	t.Run("double teardown is safe", func(t *testing.T) {
		cam := newTestCamera(t)
		det := detector.NewMockDetector()
		loader := detector.NewMockLoader(det, nil)
		loader.Release()

		a := New(testConfig(cam, loader, ModeStreaming))
		if err := a.Activate(context.Background()); err != nil {
			t.Fatalf("Activate() error = %v", err)
		}
		waitFor(t, "stream", det.Streaming)

		if err := a.Teardown(); err != nil {
			t.Errorf("first Teardown() error = %v", err)
		}
		if err := a.Teardown(); err != nil {
			t.Errorf("second Teardown() error = %v", err)
		}

		if a.State() != StateStopped {
			t.Errorf("State() = %v, want stopped", a.State())
		}
		if cam.Closes() != 1 {
			t.Errorf("camera closed %d times, want 1", cam.Closes())
		}
		if !det.Closed() {
			t.Error("detector should be closed")
		}
		if det.Streaming() {
			t.Error("stream should be stopped")
		}

		calls := det.Calls()
		time.Sleep(30 * time.Millisecond)
		if det.Calls() != calls {
			t.Error("detection continued after teardown")
		}
	})

	t.Run("teardown before activate", func(t *testing.T) {
		cam := newTestCamera(t)
		a := New(testConfig(cam, detector.NewMockLoader(nil, nil), ModePolling))

		if err := a.Teardown(); err != nil {
			t.Errorf("Teardown() error = %v", err)
		}
		if cam.Closes() != 0 {
			t.Error("an unopened camera should not be closed")
		}
		if err := a.Activate(context.Background()); !errors.Is(err, ErrInvalidState) {
			t.Errorf("Activate() after teardown error = %v, want ErrInvalidState", err)
		}
	})

	t.Run("teardown during bootstrap", func(t *testing.T) {
		cam := newTestCamera(t)
		cam.Hold()
		det := detector.NewMockDetector()
		loader := detector.NewMockLoader(det, nil)

		a := New(testConfig(cam, loader, ModeStreaming))
		errCh := activateAsync(a)
		waitFor(t, "bootstrap to start", func() bool { return cam.Opens() == 1 && loader.Loads() == 1 })

		done := make(chan error, 1)
		go func() { done <- a.Teardown() }()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Teardown blocked during bootstrap")
		}

		if err := <-errCh; !errors.Is(err, ErrStopped) {
			t.Errorf("Activate() error = %v, want ErrStopped", err)
		}
		if a.State() != StateStopped {
			t.Errorf("State() = %v, want stopped", a.State())
		}
		if cam.IsOpen() {
			t.Error("camera should be released")
		}
		if det.Calls() != 0 {
			t.Error("detection must not run after an aborted bootstrap")
		}
	})
}
