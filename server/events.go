package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	SSE_BUFFER         = 64
	SSE_KEEP_ALIVE     = 15 * time.Second
	SSE_SNAPSHOT_EVENT = "snapshot"
)

// streamEvents relays controller signals as server-sent events. The first event
// is the current walk status so a client never starts blind.
func (s *Server) streamEvents(rw http.ResponseWriter, r *http.Request) {
	flusher, ok := rw.(http.Flusher)
	if !ok {
		writeResponse(rw, ResponsePayload{Errors: []string{"streaming unsupported"}}, http.StatusInternalServerError)
		return
	}

	signals, cancel := s.controller.Subscribe(SSE_BUFFER)
	defer cancel()

	header := rw.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	rw.WriteHeader(http.StatusOK)

	if err := writeEvent(rw, SSE_SNAPSHOT_EVENT, s.status()); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(SSE_KEEP_ALIVE)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-keepAlive.C:
			if _, err := fmt.Fprint(rw, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case signal, ok := <-signals:
			if !ok {
				return
			}
			if err := writeEvent(rw, string(signal.Kind), signal); err != nil {
				logg.Debugf("event stream closed: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(rw http.ResponseWriter, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(rw, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
