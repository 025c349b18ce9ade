package detector

import (
	"context"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// DefaultStreamInterval is the pause between streaming detection cycles.
const DefaultStreamInterval = 33 * time.Millisecond

type detectFunc func(ctx context.Context, frame *gocv.Mat) ([]Face, error)

// streamer runs a detect function continuously on its own goroutine. It backs
// the Streamer implementations of the concrete detectors.
type streamer struct {
	detect   detectFunc
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newStreamer(detect detectFunc, interval time.Duration) *streamer {
	if interval <= 0 {
		interval = DefaultStreamInterval
	}
	return &streamer{detect: detect, interval: interval}
}

func (s *streamer) start(src FrameSource, cb Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrStreaming
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, src, cb, s.done)
	return nil
}

func (s *streamer) run(ctx context.Context, src FrameSource, cb Callback, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		faces, err := s.cycle(ctx, src)
		if ctx.Err() != nil {
			return
		}
		cb(faces, err)
		timer.Reset(s.interval)
	}
}

func (s *streamer) cycle(ctx context.Context, src FrameSource) ([]Face, error) {
	frame, err := src.ReadFrame()
	if err != nil {
		return nil, err
	}
	defer frame.Close()
	return s.detect(ctx, frame)
}

// stop cancels a running stream and waits for its goroutine to exit.
func (s *streamer) stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *streamer) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
