package httpapi

import (
	"net/http"
	"strconv"

	apierrors "github.com/skyport-ops/soc-backend/infrastructure/errors"
)

const (
	listEventsDefaultLimit = 50
	listEventsMaxLimit     = 1000
)

// EventsHandler serves GET /events?since=&limit= (spec §4.4/§6.1): a
// cursored page of event history, independent of the push endpoint.
func (a *API) EventsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := listEventsDefaultLimit
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > listEventsMaxLimit {
			writeError(w, apierrors.ValidationError("limit", "must be an integer between 1 and 1000"))
			return
		}
		limit = parsed
	}

	cursor := q.Get("since")

	items, nextCursor, err := a.bus.ListEvents(r.Context(), cursor, limit)
	if err != nil {
		writeError(w, apierrors.Unavailable("event log", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":       items,
		"next_cursor": nextCursor,
	})
}
