package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseWriter writes chat-completion chunks as server-sent events.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (sw *sseWriter) setHeaders() {
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// writeData writes v as one data event.
func (sw *sseWriter) writeData(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// writeDone terminates a completed stream.
func (sw *sseWriter) writeDone() error {
	if _, err := fmt.Fprint(sw.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}
