package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gocv.io/x/gocv"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ServiceScript is the file name of the FaceMesh python service.
const ServiceScript = "face_mesh_service.py"

// closeTimeout is how long Close waits for the service to exit after its
// stdin is closed before killing it.
const closeTimeout = 2 * time.Second

// MediaPipeDetector implements Detector and Streamer using a Python
// MediaPipe FaceMesh subprocess.
type MediaPipeDetector struct {
	config Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stream *streamer

	// busy holds a token while a request is on the pipes. A caller that
	// gives up keeps the token with its goroutine until the reply or EOF.
	busy      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	wait      time.Duration
}

// MediaPipeLoader starts the FaceMesh service and waits for its model to load.
var MediaPipeLoader = LoaderFunc(func(ctx context.Context, config Config) (Detector, error) {
	return NewMediaPipeDetector(ctx, config)
})

// NewMediaPipeDetector starts the Python service and blocks until it reports
// that the model is loaded, ctx is done, or the service fails.
func NewMediaPipeDetector(ctx context.Context, config Config) (*MediaPipeDetector, error) {
	scriptPath := findServiceScript()
	if scriptPath == "" {
		return nil, fmt.Errorf("%w: %s not found", ErrModelLoad, ServiceScript)
	}

	// Use virtual environment Python if available
	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	cmd := exec.Command(pythonPath, append([]string{scriptPath}, serviceArgs(config)...)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: create stdin pipe: %v", ErrModelLoad, err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: create stdout pipe: %v", ErrModelLoad, err)
	}

	// Capture stderr for debugging
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start face mesh service: %v", ErrModelLoad, err)
	}

	d := &MediaPipeDetector{
		config: config,
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		busy:   make(chan struct{}, 1),
		wait:   closeTimeout,
	}
	d.stream = newStreamer(d.Detect, DefaultStreamInterval)

	handshake := make(chan error, 1)
	go func() { handshake <- readHandshake(d.stdout) }()

	select {
	case err = <-handshake:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		d.kill()
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	return d, nil
}

// Detect analyzes a frame and returns detected faces in frame pixel coordinates.
func (d *MediaPipeDetector) Detect(ctx context.Context, frame *gocv.Mat) ([]Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Encode frame as JPEG
	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("%w: encode frame: %v", ErrDetection, err)
	}
	defer buf.Close()

	raw, err := d.exchange(ctx, buf.GetBytes())
	if err != nil {
		return nil, err
	}
	return normalizeFaces(raw, d.config.MaxFaces), nil
}

// exchange sends one frame and waits for the reply or ctx. A hung service
// never blocks the caller past ctx; the request keeps the pipes until the
// service answers or is killed by Close.
func (d *MediaPipeDetector) exchange(ctx context.Context, data []byte) ([]wireFace, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}

	select {
	case d.busy <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if d.closed.Load() {
		<-d.busy
		return nil, ErrClosed
	}

	// The frame buffer is released when Detect returns.
	frame := append([]byte(nil), data...)

	type result struct {
		faces []wireFace
		err   error
	}
	done := make(chan result, 1)
	go func() {
		faces, err := roundTrip(d.stdin, d.stdout, frame)
		<-d.busy
		done <- result{faces, err}
	}()

	select {
	case r := <-done:
		return r.faces, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DetectStart implements Streamer.
func (d *MediaPipeDetector) DetectStart(src FrameSource, cb Callback) error {
	if d.closed.Load() {
		return ErrClosed
	}
	return d.stream.start(src, cb)
}

// DetectStop implements Streamer.
func (d *MediaPipeDetector) DetectStop() {
	d.stream.stop()
}

// Close stops any running stream and shuts down the Python process. A service
// that does not exit within the close timeout is killed.
func (d *MediaPipeDetector) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		d.stream.stop()

		if d.stdin != nil {
			d.stdin.Close()
		}

		exited := make(chan error, 1)
		go func() { exited <- d.cmd.Wait() }()

		select {
		case d.closeErr = <-exited:
		case <-time.After(d.wait):
			if d.cmd.Process != nil {
				d.cmd.Process.Kill()
			}
			<-exited
			d.closeErr = fmt.Errorf("face mesh service did not exit within %s, killed", d.wait)
		}
	})
	return d.closeErr
}

func (d *MediaPipeDetector) kill() {
	if d.stdin != nil {
		d.stdin.Close()
	}
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	d.cmd.Wait()
}

func serviceArgs(config Config) []string {
	return []string{
		"--max-faces", strconv.Itoa(config.MaxFaces),
		"--refine-landmarks=" + strconv.FormatBool(config.RefineLandmarks),
		"--flip-horizontal=" + strconv.FormatBool(config.FlipHorizontal),
		"--min-detection-confidence", strconv.FormatFloat(config.MinConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(config.MinTrackingConf, 'f', -1, 64),
	}
}

// readHandshake reads the first line the service writes once its model is
// loaded: {"ready":true} or {"error":"..."}.
func readHandshake(r *bufio.Reader) error {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}

	var msg struct {
		Ready bool   `json:"ready"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(line, &msg); err != nil {
		return fmt.Errorf("parse handshake: %w", err)
	}
	if msg.Error != "" {
		return fmt.Errorf("service: %s", msg.Error)
	}
	if !msg.Ready {
		return fmt.Errorf("service did not report ready")
	}
	return nil
}

// roundTrip writes one length-prefixed JPEG and reads one JSON response line.
func roundTrip(w io.Writer, r *bufio.Reader, data []byte) ([]wireFace, error) {
	// Write length (4 bytes big-endian) + data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := w.Write(length); err != nil {
		return nil, fmt.Errorf("%w: write length: %v", ErrDetection, err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("%w: write data: %v", ErrDetection, err)
	}

	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrDetection, err)
	}

	var response struct {
		Faces []wireFace `json:"faces"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrDetection, err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrDetection, response.Error)
	}
	return response.Faces, nil
}

func findServiceScript() string {
	// Get executable directory
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", ServiceScript),
		filepath.Join("..", "scripts", ServiceScript),
		filepath.Join(execDir, "scripts", ServiceScript),
		filepath.Join(os.Getenv("HOME"), ".mukha", "scripts", ServiceScript),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
// It checks for venv/bin/python relative to the project directory.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".mukha/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
