package render

import (
	"context"
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// NoKey is returned by Present when no key was pressed.
const NoKey = -1

// Surface receives every rendered canvas.
type Surface interface {
	// Present shows the canvas and returns the pressed key code, or NoKey.
	Present(canvas *gocv.Mat) int
	Close() error
}

// Placer is implemented by surfaces that can be positioned in a viewport.
type Placer interface {
	Place(r Rect)
}

// WindowSurface presents the canvas in an OpenCV highgui window. On macOS
// it must be driven from the main OS thread.
type WindowSurface struct {
	window *gocv.Window
}

// NewWindowSurface opens a window with the given title.
func NewWindowSurface(title string) *WindowSurface {
	return &WindowSurface{window: gocv.NewWindow(title)}
}

// Present shows canvas and polls the keyboard for one millisecond.
func (s *WindowSurface) Present(canvas *gocv.Mat) int {
	s.window.IMShow(*canvas)
	key := s.window.WaitKey(1)
	if key < 0 {
		return NoKey
	}
	return key & 0xff
}

// Place resizes and centers the window.
func (s *WindowSurface) Place(r Rect) {
	s.window.ResizeWindow(r.Size, r.Size)
	s.window.MoveWindow(r.X, r.Y)
}

// Close destroys the window.
func (s *WindowSurface) Close() error {
	return s.window.Close()
}

// ErrSurfaceClosed is returned by Next after the stream surface is closed.
var ErrSurfaceClosed = errors.New("surface closed")

// StreamSurface keeps the latest canvas as JPEG for MJPEG preview clients.
type StreamSurface struct {
	mu      sync.Mutex
	jpeg    []byte
	seq     uint64
	changed chan struct{}
	closed  bool
}

// NewStreamSurface creates an empty stream surface.
func NewStreamSurface() *StreamSurface {
	return &StreamSurface{changed: make(chan struct{})}
}

// Present encodes canvas and wakes waiting readers.
func (s *StreamSurface) Present(canvas *gocv.Mat) int {
	buf, err := gocv.IMEncode(".jpg", *canvas)
	if err != nil {
		return NoKey
	}
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	buf.Close()

	s.Publish(data)
	return NoKey
}

// Publish stores an already encoded frame.
func (s *StreamSurface) Publish(jpeg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.jpeg = jpeg
	s.seq++
	close(s.changed)
	s.changed = make(chan struct{})
}

// Latest returns the newest frame and its sequence number. Seq 0 means no
// frame has been presented yet.
func (s *StreamSurface) Latest() ([]byte, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jpeg, s.seq
}

// Next blocks until a frame newer than after is available.
func (s *StreamSurface) Next(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, 0, ErrSurfaceClosed
		}
		if s.seq > after {
			data, seq := s.jpeg, s.seq
			s.mu.Unlock()
			return data, seq, nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-changed:
		}
	}
}

// Close wakes all readers. Safe to call repeatedly.
func (s *StreamSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.changed)
	}
	return nil
}

// Multi fans a canvas out to several surfaces. The first key reported wins.
type Multi []Surface

// Present presents to every surface.
func (m Multi) Present(canvas *gocv.Mat) int {
	key := NoKey
	for _, s := range m {
		if k := s.Present(canvas); k != NoKey && key == NoKey {
			key = k
		}
	}
	return key
}

// Place forwards to every surface that can be placed.
func (m Multi) Place(r Rect) {
	for _, s := range m {
		if p, ok := s.(Placer); ok {
			p.Place(r)
		}
	}
}

// Close closes every surface and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
