package detector

import (
	"context"
	"errors"

	"gocv.io/x/gocv"
)

var (
	// ErrModelLoad is returned when a detector fails to initialize its model.
	ErrModelLoad = errors.New("model load failed")
	// ErrDetection is returned when a single detection cycle fails.
	ErrDetection = errors.New("detection failed")
	// ErrStreaming is returned by DetectStart when a stream is already running.
	ErrStreaming = errors.New("detection stream already running")
	// ErrClosed is returned when a closed detector is used.
	ErrClosed = errors.New("detector is closed")
)

// Detector defines the interface for face landmark detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected faces.
	// Returns an empty slice if no faces are detected.
	Detect(ctx context.Context, frame *gocv.Mat) ([]Face, error)

	// Close releases any resources held by the detector.
	Close() error
}

// FrameSource supplies the most recent camera frame. The caller owns the
// returned Mat and must close it.
type FrameSource interface {
	ReadFrame() (*gocv.Mat, error)
}

// Callback receives every streaming detection result. Exactly one of faces
// and err is meaningful per call.
type Callback func(faces []Face, err error)

// Streamer is implemented by detectors that drive detection at their own
// cadence and push results.
type Streamer interface {
	// DetectStart begins continuous detection against src, invoking cb for
	// each cycle until DetectStop is called.
	DetectStart(src FrameSource, cb Callback) error

	// DetectStop halts a running stream. It is safe to call when no stream is running.
	DetectStop()
}

// Loader creates a ready Detector. Loading may be slow; it must honor ctx.
type Loader interface {
	Load(ctx context.Context, config Config) (Detector, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, config Config) (Detector, error)

// Load calls f(ctx, config).
func (f LoaderFunc) Load(ctx context.Context, config Config) (Detector, error) {
	return f(ctx, config)
}

// Config holds configuration options for face detection.
type Config struct {
	// MaxFaces is the maximum number of faces to detect (default: 1).
	MaxFaces int

	// RefineLandmarks enables iris refinement (478 keypoints instead of 468).
	RefineLandmarks bool

	// FlipHorizontal asks the model to mirror its output coordinates.
	FlipHorizontal bool

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// CascadePath is the Haar cascade file used by the fallback detector.
	CascadePath string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxFaces:        1,
		RefineLandmarks: false,
		FlipHorizontal:  false,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}
