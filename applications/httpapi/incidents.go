package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/skyport-ops/soc-backend/domain/ticketing"
)

type transitionRequest struct {
	ToState     string `json:"to_state"`
	TriggeredBy string `json:"triggered_by"`
}

type escalateRequest struct {
	TriggeredBy string `json:"triggered_by"`
}

type incidentResponse struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	UpdatedAtUTC string `json:"updated_at_utc"`
}

// TransitionIncidentHandler serves POST /incidents/{id}/transition
// (spec §6.1).
func (a *API) TransitionIncidentHandler(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["id"]
	if publicID == "" {
		writeBadRequest(w, "invalid id")
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.ToState == "" || req.TriggeredBy == "" {
		writeBadRequest(w, "to_state and triggered_by are required")
		return
	}

	inc, err := a.soc.Transition(r.Context(), publicID, req.ToState, req.TriggeredBy)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, incidentResponse{
		ID:           publicID,
		State:        inc.State,
		UpdatedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type escalateResponse struct {
	Status       string `json:"status"`
	IncidentID   string `json:"incident_id"`
	TicketID     string `json:"ticket_id"`
	TicketStatus string `json:"ticket_status"`
}

// EscalateIncidentHandler serves POST /incidents/{id}/escalate:
// transitions the incident to Escalated through the FSM (so a Closed
// incident is rejected with 409) and idempotently opens a ticket for
// it (spec §4.6/§4.7's escalation path).
func (a *API) EscalateIncidentHandler(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["id"]
	if publicID == "" {
		writeBadRequest(w, "invalid id")
		return
	}

	var req escalateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.TriggeredBy == "" {
		writeBadRequest(w, "triggered_by is required")
		return
	}

	inc, err := a.soc.Transition(r.Context(), publicID, "Escalated", req.TriggeredBy)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := a.ticketing.CreateFromIncident(r.Context(), ticketing.IncidentRef{
		PublicID:      publicID,
		DBID:          inc.ID,
		Severity:      inc.Severity,
		CorrelationID: inc.CorrelationID,
	}, "")
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, escalateResponse{
		Status:       "escalated",
		IncidentID:   publicID,
		TicketID:     result.Ticket.ID,
		TicketStatus: result.Ticket.Status,
	})
}
