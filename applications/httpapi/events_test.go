package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skyport-ops/soc-backend/system/events"
)

func TestEventsHandlerDefaultLimit(t *testing.T) {
	ta := newTestAPI()
	for _, et := range []string{"a", "b"} {
		if _, err := ta.api.bus.Publish(context.Background(), et, nil, "test", "info", "", nil, ""); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rr := httptest.NewRecorder()
	ta.api.EventsHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Items      []map[string]interface{} `json:"items"`
		NextCursor string                   `json:"next_cursor"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Items) != 2 {
		t.Fatalf("expected two items, got %d", len(body.Items))
	}
	if body.NextCursor == "" {
		t.Error("expected a non-empty next_cursor")
	}
}

func TestEventsHandlerRejectsOutOfRangeLimit(t *testing.T) {
	ta := newTestAPI()

	for _, limit := range []string{"0", "1001", "not-a-number"} {
		req := httptest.NewRequest(http.MethodGet, "/events?limit="+limit, nil)
		rr := httptest.NewRecorder()
		ta.api.EventsHandler(rr, req)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("limit=%s: expected 422, got %d", limit, rr.Code)
		}
	}
}

func TestEventsHandlerAcceptsSinceCursor(t *testing.T) {
	ta := newTestAPI()
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	if _, err := ta.api.bus.Publish(ctx, "a", nil, "test", "info", "", nil, ""); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/events?since="+ta.api.bus.WireCursor(events.CursorStart), nil)
	rr := httptest.NewRecorder()
	ta.api.EventsHandler(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}
