package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

func newTicketRouter(a *API) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/tickets", a.CreateTicketHandler).Methods(http.MethodPost)
	return r
}

func TestCreateTicketHandlerHappyPath(t *testing.T) {
	ta := newTestAPI()
	router := newTicketRouter(ta.api)

	rr := postJSON(t, router, "/tickets", map[string]interface{}{"incident_id": ta.incidentID})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp ticketResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Idempotent {
		t.Error("expected first create to not be idempotent")
	}
	if resp.IncidentID != ta.incidentID || resp.ID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreateTicketHandlerIsIdempotent(t *testing.T) {
	ta := newTestAPI()
	router := newTicketRouter(ta.api)

	first := postJSON(t, router, "/tickets", map[string]interface{}{"incident_id": ta.incidentID})
	second := postJSON(t, router, "/tickets", map[string]interface{}{"incident_id": ta.incidentID})

	var firstResp, secondResp ticketResponse
	_ = json.Unmarshal(first.Body.Bytes(), &firstResp)
	_ = json.Unmarshal(second.Body.Bytes(), &secondResp)

	if !secondResp.Idempotent {
		t.Error("expected second create for the same incident to be idempotent")
	}
	if firstResp.ID != secondResp.ID {
		t.Fatalf("expected same ticket id, got %s vs %s", firstResp.ID, secondResp.ID)
	}
}

func TestCreateTicketHandlerMissingIncidentIDIs400(t *testing.T) {
	ta := newTestAPI()
	router := newTicketRouter(ta.api)

	rr := postJSON(t, router, "/tickets", map[string]interface{}{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing incident_id, got %d", rr.Code)
	}
}

func TestCreateTicketHandlerUnknownIncidentIs404(t *testing.T) {
	ta := newTestAPI()
	router := newTicketRouter(ta.api)

	rr := postJSON(t, router, "/tickets", map[string]interface{}{"incident_id": "ghost"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown incident, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCreateTicketHandlerInvalidBodyIs400(t *testing.T) {
	ta := newTestAPI()
	router := newTicketRouter(ta.api)

	req := httptest.NewRequest(http.MethodPost, "/tickets", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty/invalid body, got %d", rr.Code)
	}
}
