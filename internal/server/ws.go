package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ayusman/mukha/internal/app"
	"github.com/ayusman/mukha/internal/detector"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// broadcastInterval is how often perception is checked for a new snapshot.
const broadcastInterval = 33 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// FacesMessage is one perception snapshot sent to websocket clients.
type FacesMessage struct {
	Seq       uint64        `json:"seq"`
	Timestamp int64         `json:"timestamp"`
	Faces     []FacePayload `json:"faces"`
}

// FacePayload is a face with its derived eye centers. Absent keypoints are
// encoded as null.
type FacePayload struct {
	Keypoints []*detector.Point2D `json:"keypoints"`
	Box       *detector.Box       `json:"box,omitempty"`
	Score     float64             `json:"score"`
	LeftEye   *detector.Point2D   `json:"left_eye,omitempty"`
	RightEye  *detector.Point2D   `json:"right_eye,omitempty"`
}

// FacesHandler broadcasts perception snapshots via WebSocket.
type FacesHandler struct {
	perception *app.Perception
	log        logrus.FieldLogger
	clients    map[*websocket.Conn]bool
	mu         sync.RWMutex
}

// NewFacesHandler creates a new FacesHandler reading from perception.
func NewFacesHandler(perception *app.Perception, log logrus.FieldLogger) *FacesHandler {
	return &FacesHandler{
		perception: perception,
		log:        log,
		clients:    make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *FacesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *FacesHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run sends every new snapshot to all clients until ctx is done.
func (h *FacesHandler) Run(ctx context.Context) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if h.Clients() == 0 {
			continue
		}

		snap := h.perception.Load()
		if snap.Seq == last {
			continue
		}
		last = snap.Seq

		msg, err := json.Marshal(NewFacesMessage(snap))
		if err != nil {
			h.log.WithError(err).Warn("failed to encode faces")
			continue
		}

		h.mu.Lock()
		for conn := range h.clients {
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				conn.Close()
				delete(h.clients, conn)
			}
		}
		h.mu.Unlock()
	}
}

// NewFacesMessage converts a snapshot to its wire form.
func NewFacesMessage(snap *app.Snapshot) FacesMessage {
	msg := FacesMessage{
		Seq:       snap.Seq,
		Timestamp: snap.At.UnixMilli(),
		Faces:     make([]FacePayload, 0, len(snap.Faces)),
	}
	for i := range snap.Faces {
		f := &snap.Faces[i]
		p := FacePayload{
			Keypoints: make([]*detector.Point2D, len(f.Keypoints)),
			Box:       f.Box,
			Score:     f.Score,
		}
		for j := range f.Keypoints {
			if pt, ok := f.Keypoint(j); ok {
				p.Keypoints[j] = &pt
			}
		}
		if pt, ok := f.LeftEye(); ok {
			p.LeftEye = &pt
		}
		if pt, ok := f.RightEye(); ok {
			p.RightEye = &pt
		}
		msg.Faces = append(msg.Faces, p)
	}
	return msg
}
