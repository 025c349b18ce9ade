package server

import (
	"fmt"
	"net/http"

	"github.com/ayusman/mukha/internal/render"
)

// StreamHandler serves the rendered canvas as MJPEG.
type StreamHandler struct {
	surface *render.StreamSurface
}

// NewStreamHandler creates a new StreamHandler reading from surface.
func NewStreamHandler(surface *render.StreamSurface) *StreamHandler {
	return &StreamHandler{surface: surface}
}

// ServeHTTP streams every new canvas to the client until it disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var seq uint64
	for {
		jpeg, next, err := h.surface.Next(r.Context(), seq)
		if err != nil {
			return
		}
		seq = next

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(jpeg))
		if _, err := w.Write(jpeg); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
