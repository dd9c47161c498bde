package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/skyport-ops/soc-backend/system/events"
)

const (
	blockMsDefault = 2000
	staleAfter     = time.Second
)

// StreamHandler serves GET /stream/ops (C8, spec §4.8): a long-lived
// SSE connection that tails the global stream from a resumable cursor.
func (a *API) StreamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeBadRequest(w, "streaming unsupported")
		return
	}

	cursor := a.resolveInitialCursor(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	a.metrics.SSEConnectionOpened()
	defer a.metrics.SSEConnectionClosed()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entry, found, err := a.bus.TailForPush(ctx, cursor, blockMsDefault)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.WithError(err).Warn("stream: tail error, backing off")
			time.Sleep(staleAfter)
			continue
		}

		if !found {
			a.writeKeepAlive(w, flusher)
			continue
		}

		cursor = a.bus.WireCursor(entry.ID)
		if err := writeSSEEvent(w, cursor, entry.Envelope.EventType, entry.Envelope); err != nil {
			return
		}
		flusher.Flush()
	}
}

// resolveInitialCursor applies spec §4.8's precedence: Last-Event-ID
// header, then ?since= query param, then the tail sentinel (only
// entries published after the connection opens).
func (a *API) resolveInitialCursor(r *http.Request) string {
	if id := r.Header.Get("Last-Event-ID"); id != "" {
		return id
	}
	if since := r.URL.Query().Get("since"); since != "" {
		return since
	}
	return a.bus.WireCursor(events.CursorTail)
}

func (a *API) writeKeepAlive(w http.ResponseWriter, flusher http.Flusher) {
	if a.bus.InMemory() {
		payload, _ := json.Marshal(map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"mode":      "demo",
		})
		fmt.Fprintf(w, "event: heartbeat\ndata: %s\n\n", payload)
	} else {
		fmt.Fprint(w, ": keep-alive\n\n")
	}
	flusher.Flush()
}

func writeSSEEvent(w http.ResponseWriter, id, eventType string, envelope *events.Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", id, eventType, data)
	return err
}
