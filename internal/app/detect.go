package app

import (
	"context"
	"errors"
	"time"

	"github.com/ayusman/mukha/internal/capture"
	"github.com/ayusman/mukha/internal/detector"
)

// pollLoop runs detection cycles separated by the poll interval until ctx is
// cancelled. Failed cycles are reported and the loop carries on.
func (a *App) pollLoop(ctx context.Context, d detector.Detector) {
	defer a.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if a.cameraOn.Load() {
			a.detectOnce(ctx, d)
		}
		timer.Reset(a.config.PollInterval)
	}
}

// detectOnce runs a single detection cycle against the latest frame.
func (a *App) detectOnce(ctx context.Context, d detector.Detector) {
	frame, err := a.camera.ReadFrame()
	if err != nil {
		a.handleResult(nil, err)
		return
	}
	defer frame.Close()

	faces, err := d.Detect(ctx, frame)
	a.handleResult(faces, err)
}

// handleResult is the single sink for polling and streaming results.
func (a *App) handleResult(faces []detector.Face, err error) {
	if a.ctx.Err() != nil {
		return
	}
	if err != nil {
		if errors.Is(err, capture.ErrNoFrame) {
			return
		}
		a.reportError(err)
		return
	}
	a.publish(faces)
}

// publish overwrites perception unless the camera is toggled off.
func (a *App) publish(faces []detector.Face) {
	a.pubMu.Lock()
	defer a.pubMu.Unlock()
	if !a.cameraOn.Load() {
		return
	}
	a.perception.Publish(faces)
}

// reportError counts a failed cycle and logs it, throttled.
func (a *App) reportError(err error) {
	a.detectErrors.Add(1)
	if !a.errLimit.Allow() {
		a.suppressed.Add(1)
		return
	}
	a.log.WithError(err).
		WithField("component", "detect").
		WithField("suppressed", a.suppressed.Load()).
		Warn("detection cycle failed")
}
