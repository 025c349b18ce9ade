package detector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gocv.io/x/gocv"
)

// CascadeFile is the default OpenCV frontal face cascade.
const CascadeFile = "haarcascade_frontalface_default.xml"

// CascadeDetector implements Detector with an OpenCV Haar cascade. It only
// reports bounding boxes; faces carry no keypoints.
type CascadeDetector struct {
	config     Config
	classifier gocv.CascadeClassifier
	mu         sync.Mutex
	closed     bool
}

// CascadeLoader loads the Haar cascade named by Config.CascadePath.
var CascadeLoader = LoaderFunc(func(ctx context.Context, config Config) (Detector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewCascadeDetector(config)
})

// NewCascadeDetector loads the cascade file. When config.CascadePath is empty
// a few common OpenCV install locations are searched.
func NewCascadeDetector(config Config) (*CascadeDetector, error) {
	path := config.CascadePath
	if path == "" {
		path = findCascade()
	}
	if path == "" {
		return nil, fmt.Errorf("%w: %s not found", ErrModelLoad, CascadeFile)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("%w: cannot load cascade %s", ErrModelLoad, path)
	}

	return &CascadeDetector{config: config, classifier: classifier}, nil
}

// Detect returns one box-only face per detected rectangle, largest first.
func (d *CascadeDetector) Detect(ctx context.Context, frame *gocv.Mat) ([]Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrDetection)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}

	rects := d.classifier.DetectMultiScale(*frame)
	sort.Slice(rects, func(i, j int) bool {
		return rects[i].Dx()*rects[i].Dy() > rects[j].Dx()*rects[j].Dy()
	})

	faces := make([]Face, 0, len(rects))
	for _, r := range rects {
		if d.config.MaxFaces > 0 && len(faces) >= d.config.MaxFaces {
			break
		}
		box := Box{
			X:      float64(r.Min.X),
			Y:      float64(r.Min.Y),
			Width:  float64(r.Dx()),
			Height: float64(r.Dy()),
		}
		if box.Empty() {
			continue
		}
		faces = append(faces, Face{Box: &box, Score: 1})
	}
	return faces, nil
}

// Close releases the classifier.
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.classifier.Close()
}

func findCascade() string {
	candidates := []string{
		filepath.Join("data", CascadeFile),
		filepath.Join(os.Getenv("HOME"), ".mukha", "data", CascadeFile),
		filepath.Join("/usr/share/opencv4/haarcascades", CascadeFile),
		filepath.Join("/usr/local/share/opencv4/haarcascades", CascadeFile),
		filepath.Join("/opt/homebrew/share/opencv4/haarcascades", CascadeFile),
	}
	return firstExisting(candidates)
}

// FirstOf returns a Loader that tries each loader in order and returns the
// first detector that loads. If all fail the errors are joined.
func FirstOf(loaders ...Loader) Loader {
	return LoaderFunc(func(ctx context.Context, config Config) (Detector, error) {
		var errs []error
		for _, l := range loaders {
			d, err := l.Load(ctx, config)
			if err == nil {
				return d, nil
			}
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
		if len(errs) == 0 {
			return nil, fmt.Errorf("%w: no loaders configured", ErrModelLoad)
		}
		return nil, errors.Join(errs...)
	})
}
