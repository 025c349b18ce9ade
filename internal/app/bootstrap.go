package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/mukha/internal/capture"
	"github.com/ayusman/mukha/internal/detector"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// readyPollInterval is how often the camera is checked for its first frame.
const readyPollInterval = 10 * time.Millisecond

// Activate acquires the camera and loads the detector concurrently, then
// starts the detection and render loops once both are ready. Either resource
// may become ready first. A failure of either stops the pipeline and releases
// whatever was acquired.
func (a *App) Activate(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateIdle {
		state := a.state
		a.mu.Unlock()
		return fmt.Errorf("%w: activate while %s", ErrInvalidState, state)
	}
	a.state = StateBootstrapping
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	a.log.WithFields(logrus.Fields{
		"mode":    a.config.Mode,
		"timeout": a.config.BootstrapTimeout,
	}).Info("bootstrapping")
	start := time.Now()

	bctx, cancel := context.WithTimeout(ctx, a.config.BootstrapTimeout)
	defer cancel()
	stop := context.AfterFunc(a.ctx, cancel)
	defer stop()

	g, gctx := errgroup.WithContext(bctx)
	g.Go(func() error {
		err := a.openCamera(gctx)
		a.cameraGate.resolve(err)
		return err
	})
	g.Go(func() error {
		err := a.loadDetector(gctx)
		a.modelGate.resolve(err)
		return err
	})

	err := g.Wait()
	if err == nil && !a.camera.Ready() {
		err = fmt.Errorf("%w: stream lost during bootstrap", capture.ErrDeviceUnavailable)
	}
	if err != nil {
		return a.abort(err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateBootstrapping {
		return ErrStopped
	}
	a.state = StateActive
	a.startLocked()

	a.log.WithFields(logrus.Fields{
		"mode":    a.mode,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("pipeline active")
	return nil
}

// openCamera opens the device and waits until it has buffered a frame.
func (a *App) openCamera(ctx context.Context) error {
	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for !a.camera.Ready() {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: no frame within %s", capture.ErrDeviceUnavailable, a.config.BootstrapTimeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}

	w, h := a.camera.Size()
	a.log.WithFields(logrus.Fields{"width": w, "height": h}).Info("camera ready")
	return nil
}

// loadDetector resolves the model through the configured loader.
func (a *App) loadDetector(ctx context.Context) error {
	d, err := a.config.Loader.Load(ctx, a.config.Detector)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, detector.ErrModelLoad) {
			err = fmt.Errorf("%w: %w", detector.ErrModelLoad, err)
		}
		return err
	}

	a.mu.Lock()
	a.detector = d
	a.mu.Unlock()

	a.log.WithField("detector", fmt.Sprintf("%T", d)).Info("model ready")
	return nil
}

// abort moves the pipeline to Stopped after a failed bootstrap and releases
// anything acquired so far.
func (a *App) abort(err error) error {
	a.mu.Lock()
	tornDown := a.state == StateStopped
	a.state = StateStopped
	d := a.detector
	a.detector = nil
	a.mu.Unlock()

	a.cancel()
	if d != nil {
		d.Close()
	}
	a.camera.Close()

	if tornDown {
		return fmt.Errorf("%w: %w", ErrStopped, err)
	}
	a.log.WithError(err).Error("bootstrap failed")
	return err
}

// startLocked launches the detection and render loops. a.mu must be held.
func (a *App) startLocked() {
	s, ok := a.detector.(detector.Streamer)
	if ok && a.config.Mode == ModeStreaming {
		a.mode = ModeStreaming
		a.streamer = s
		if a.cameraOn.Load() {
			a.startStreamLocked()
		}
	} else {
		if a.config.Mode == ModeStreaming {
			a.log.Info("detector cannot stream, falling back to polling")
		}
		a.mode = ModePolling
		a.wg.Add(1)
		go a.pollLoop(a.ctx, a.detector)
	}

	a.wg.Add(1)
	go a.renderLoop(a.ctx)
}

func (a *App) startStreamLocked() {
	if a.streaming {
		return
	}
	if err := a.streamer.DetectStart(a.camera, a.handleResult); err != nil {
		a.log.WithError(err).Error("failed to start detection stream")
		return
	}
	a.streaming = true
}

func (a *App) stopStreamLocked() {
	if !a.streaming {
		return
	}
	a.streamer.DetectStop()
	a.streaming = false
}
