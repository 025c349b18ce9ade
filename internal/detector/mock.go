package detector

import (
	"context"
	"math"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockResult is one scripted detection outcome.
type MockResult struct {
	Faces []Face
	Err   error
}

// MockDetector is a test implementation of the Detector and Streamer
// interfaces. Scripted results are consumed in order; once exhausted the
// configured faces or error are returned on every call.
type MockDetector struct {
	mu     sync.Mutex
	faces  []Face
	err    error
	script []MockResult
	calls  int
	closed bool
	stream *streamer
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	m := &MockDetector{}
	m.stream = newStreamer(m.Detect, 5*time.Millisecond)
	return m
}

// SetFaces sets the faces that will be returned by Detect.
func (m *MockDetector) SetFaces(faces []Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Script queues results returned by the next calls to Detect.
func (m *MockDetector) Script(results ...MockResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, results...)
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close has been called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Streaming reports whether a DetectStart stream is running.
func (m *MockDetector) Streaming() bool {
	return m.stream.running()
}

// Detect returns the next scripted result or the pre-configured faces or error.
func (m *MockDetector) Detect(ctx context.Context, frame *gocv.Mat) ([]Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if len(m.script) > 0 {
		r := m.script[0]
		m.script = m.script[1:]
		return r.Faces, r.Err
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.faces, nil
}

// DetectStart implements Streamer.
func (m *MockDetector) DetectStart(src FrameSource, cb Callback) error {
	return m.stream.start(src, cb)
}

// DetectStop implements Streamer.
func (m *MockDetector) DetectStop() {
	m.stream.stop()
}

// Close stops streaming and marks the detector closed.
func (m *MockDetector) Close() error {
	m.stream.stop()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// PullOnly hides the Streamer implementation of a detector.
type PullOnly struct {
	Detector
}

// MockLoader is a Loader whose completion is controlled by the test.
type MockLoader struct {
	detector Detector
	err      error
	release  chan struct{}
	once     sync.Once
	loads    int
	mu       sync.Mutex
}

// NewMockLoader returns a loader that yields d once Release is called.
// A nil error and immediate release can be had with Release before Load.
func NewMockLoader(d Detector, err error) *MockLoader {
	return &MockLoader{detector: d, err: err, release: make(chan struct{})}
}

// Release lets pending and future Load calls complete.
func (l *MockLoader) Release() {
	l.once.Do(func() { close(l.release) })
}

// Loads returns how many times Load was called.
func (l *MockLoader) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

// Load blocks until Release or ctx is done.
func (l *MockLoader) Load(ctx context.Context, config Config) (Detector, error) {
	l.mu.Lock()
	l.loads++
	l.mu.Unlock()

	select {
	case <-l.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.detector, nil
}

// SampleFace returns a synthetic FaceMesh result centered in a width x height
// frame, with both eye contours and the upper lip populated.
func SampleFace(width, height float64) Face {
	face := Face{
		Keypoints: make([]Keypoint, NumLandmarks),
		Score:     0.97,
	}

	cx, cy := width/2, height/2
	rx, ry := width/5, height/4

	// Face oval
	for i := range face.Keypoints {
		a := 2 * math.Pi * float64(i) / float64(NumLandmarks)
		face.Keypoints[i] = Keypoint{X: cx + rx*math.Cos(a), Y: cy + ry*math.Sin(a), Present: true}
	}

	ring := func(indices []int, ex, ey, r float64) {
		for j, idx := range indices {
			a := 2 * math.Pi * float64(j) / float64(len(indices))
			face.Keypoints[idx] = Keypoint{X: ex + r*math.Cos(a), Y: ey + r*math.Sin(a)/2, Present: true}
		}
	}
	ring(LeftEyeIndices, cx-rx/2, cy-ry/4, rx/6)
	ring(RightEyeIndices, cx+rx/2, cy-ry/4, rx/6)

	lip := 0
	for i := range face.Keypoints {
		if !IsUpperLip(i) {
			continue
		}
		t := float64(lip)/11 - 0.5
		face.Keypoints[i] = Keypoint{X: cx + t*rx, Y: cy + ry/2 - math.Abs(t)*ry/8, Present: true}
		lip++
	}

	if b, ok := face.Bounds(); ok {
		face.Box = &b
	}
	return face
}
