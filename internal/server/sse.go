package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/valpere/cvtran/internal/orchestrator"
)

// eventWriter writes orchestrator events as server-sent events.
type eventWriter struct {
	w       http.ResponseWriter
	r       *http.Request
	flusher http.Flusher
}

func newEventWriter(w http.ResponseWriter, r *http.Request) (*eventWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported by response writer")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &eventWriter{w: w, r: r, flusher: flusher}, nil
}

// emit fails once the client has gone away, which stops the pipeline.
func (e *eventWriter) emit(ev orchestrator.Event) error {
	if err := e.r.Context().Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Name, err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}
