// Package capture provides camera capture functionality using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrNoFrame is returned until the camera has buffered its first frame.
	ErrNoFrame = errors.New("no frame buffered yet")
	// ErrPermissionDenied is returned when the OS refuses access to the device.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrDeviceUnavailable is returned when no usable camera device exists.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
)

// Camera defines the interface for camera capture implementations.
type Camera interface {
	// Open acquires the device and starts buffering frames.
	Open() error
	// Close stops buffering and releases the device. Safe to call repeatedly.
	Close() error
	// ReadFrame returns a copy of the latest buffered frame. The caller is
	// responsible for closing it. Returns ErrNoFrame until Ready.
	ReadFrame() (*gocv.Mat, error)
	// Ready reports whether at least one frame has been buffered.
	Ready() bool
	// Size returns the frame dimensions, or zeros before Ready.
	Size() (width, height int)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// frameSource is the part of gocv.VideoCapture the grab loop uses.
type frameSource interface {
	Read(m *gocv.Mat) bool
	Set(prop gocv.VideoCaptureProperties, param float64)
	Close() error
}

// cameraImpl manages video capture from a camera device using GoCV. A grab
// goroutine keeps only the newest frame; readers never wait on the device.
type cameraImpl struct {
	deviceID int
	capture  frameSource
	mu       sync.Mutex
	running  bool
	fps      int

	latest gocv.Mat
	ready  bool
	width  int
	height int

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewCamera creates a new Camera with the given device ID.
func NewCamera(deviceID int) Camera {
	return &cameraImpl{
		deviceID: deviceID,
		fps:      DefaultFPS,
		running:  false,
		capture:  nil,
	}
}

// Open opens the camera for capturing frames and starts the grab loop.
// It sets the resolution to 640x480 for performance.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	if err := checkDevice(c.deviceID); err != nil {
		return err
	}

	capture, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("%w: device %d did not open", ErrDeviceUnavailable, c.deviceID)
	}

	// Set resolution for performance
	capture.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
	capture.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
	capture.Set(gocv.VideoCaptureFPS, float64(c.fps))

	c.startLocked(capture)
	return nil
}

// startLocked begins buffering frames from src. c.mu must be held.
func (c *cameraImpl) startLocked(src frameSource) {
	c.capture = src
	c.running = true
	c.ready = false
	c.latest = gocv.NewMat()
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})

	go c.grab(src, c.stopCh, c.doneCh)
}

// grab reads frames as fast as the device delivers them, overwriting the
// previously buffered frame.
func (c *cameraImpl) grab(capture frameSource, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if ok := capture.Read(&frame); !ok || frame.Empty() {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		c.mu.Lock()
		frame.CopyTo(&c.latest)
		c.ready = true
		c.width, c.height = frame.Cols(), frame.Rows()
		c.mu.Unlock()
	}
}

// Close stops the grab loop, closes the camera and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	if !c.running || c.capture == nil {
		c.running = false
		c.mu.Unlock()
		return nil
	}
	stopCh, doneCh, capture := c.stopCh, c.doneCh, c.capture
	c.running = false
	c.mu.Unlock()

	close(stopCh)
	<-doneCh

	c.mu.Lock()
	defer c.mu.Unlock()

	err := capture.Close()
	c.capture = nil
	c.latest.Close()
	c.ready = false
	c.width, c.height = 0, 0

	return err
}

// ReadFrame returns a copy of the most recently buffered frame.
// The caller is responsible for closing the returned Mat.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}
	if !c.ready {
		return nil, ErrNoFrame
	}

	mat := c.latest.Clone()
	return &mat, nil
}

// Ready reports whether a frame has been buffered since Open.
func (c *cameraImpl) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.ready
}

// Size returns the dimensions of the buffered frames.
func (c *cameraImpl) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// SetFPS sets the frames per second for capture.
// Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps

	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current frames per second setting.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fps
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

// checkDevice classifies an unusable V4L2 device node before OpenCV tries it,
// so a permission problem is not reported as a missing camera. Other
// platforms are left to OpenCV.
func checkDevice(deviceID int) error {
	if runtime.GOOS != "linux" {
		return nil
	}

	path := fmt.Sprintf("/dev/video%d", deviceID)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return deviceError(path, err)
	}
	return f.Close()
}

// deviceError maps a failure to open a device node onto the capture errors.
func deviceError(path string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %s does not exist", ErrDeviceUnavailable, path)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	default:
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
}
