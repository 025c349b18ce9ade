package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ayusman/mukha/internal/app"
	"github.com/ayusman/mukha/internal/capture"
	"github.com/ayusman/mukha/internal/config"
	"github.com/ayusman/mukha/internal/detector"
	mlog "github.com/ayusman/mukha/internal/log"
	"github.com/ayusman/mukha/internal/render"
	"github.com/ayusman/mukha/internal/server"
	"github.com/ayusman/mukha/internal/tray"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	cfg    = config.Default()
	logger *mlog.Logger
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the camera, detector and overlay",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(); err != nil {
			return err
		}
		if err := cfg.ApplyEnv(os.LookupEnv, cmd.Flags().Changed); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		var err error
		logger, err = mlog.New(mlog.Options{Level: cfg.LogLevel, File: cfg.LogFile})
		return err
	},
	PostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Close()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	cfg.BindFlags(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

func run(ctx context.Context) error {
	log := mlog.Component(logger, "main")

	var surfaces render.Multi
	var stream *render.StreamSurface
	if cfg.Window {
		surfaces = append(surfaces, render.NewWindowSurface("mukha"))
	}
	if cfg.Listen != "" {
		stream = render.NewStreamSurface()
		surfaces = append(surfaces, stream)
	}

	a := app.New(app.Config{
		Camera:           capture.NewCamera(cfg.CameraID),
		Loader:           loaderFor(cfg.Detector),
		Detector:         cfg.DetectorConfig(),
		Surface:          surfaces,
		Logger:           logger,
		Mode:             app.Mode(cfg.Mode),
		PollInterval:     cfg.PollInterval,
		FPS:              cfg.FPS,
		BootstrapTimeout: cfg.BootstrapTimeout,
		Particles:        cfg.ParticleConfig(),
		ViewportWidth:    cfg.ViewportWidth,
		ViewportHeight:   cfg.ViewportHeight,
		CanvasFraction:   cfg.CanvasFraction,
		ShowLandmarks:    cfg.ShowLandmarks,
	})
	log = log.WithField("session", a.Session())

	if err := activate(ctx, a); err != nil {
		surfaces.Close()
		return explain(err)
	}

	srvCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()
	if stream != nil {
		srv := server.New(server.Config{
			StaticDir: findWebDir(),
			App:       a,
			Stream:    stream,
			Logger:    logger,
		})
		go func() {
			if err := srv.ListenAndServe(srvCtx, cfg.Listen); err != nil {
				log.WithError(err).Error("preview server stopped")
				a.Quit()
			}
		}()
	}

	if cfg.Tray {
		runTray(ctx, a)
	} else {
		select {
		case <-ctx.Done():
		case <-a.Quitting():
		}
	}

	log.Info("shutting down")
	err := a.Teardown()
	surfaces.Close()
	stopServer()
	return err
}

// activate bootstraps the pipeline behind a spinner.
func activate(ctx context.Context, a *app.App) error {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("starting camera and face model"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bar.Add(1)
			}
		}
	}()

	err := a.Activate(ctx)
	close(done)
	bar.Finish()
	return err
}

// runTray blocks on the tray loop until quit is chosen, ctx is cancelled or
// the app asks to stop.
func runTray(ctx context.Context, a *app.App) {
	t := tray.New()
	t.OnToggle(a.ToggleCamera)
	t.OnReset(a.Reset)
	t.OnQuit(a.Quit)

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				t.Quit()
				return
			case <-a.Quitting():
				t.Quit()
				return
			case <-ticker.C:
				t.SetEnabled(a.CameraEnabled())
				t.SetStatus(a.Status().Message)
			}
		}
	}()

	t.Run()
}

func loaderFor(name string) detector.Loader {
	switch name {
	case "mediapipe":
		return detector.MediaPipeLoader
	case "cascade":
		return detector.CascadeLoader
	default:
		return detector.FirstOf(detector.MediaPipeLoader, detector.CascadeLoader)
	}
}

// explain adds a remedy to fatal bootstrap errors.
func explain(err error) error {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return fmt.Errorf("%w (grant camera access to this terminal and retry)", err)
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return fmt.Errorf("%w (check --camera=%d or close other apps using it)", err, cfg.CameraID)
	case errors.Is(err, detector.ErrModelLoad):
		return fmt.Errorf("%w (install mediapipe in ./venv or pass --detector=cascade)", err)
	}
	return err
}

// findWebDir searches for the preview page in common locations.
// It checks: "web", "../web", "../../web", and ~/.mukha/web.
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

	homeWebDir := filepath.Join(homeDir, ".mukha", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
