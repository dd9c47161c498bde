package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/skyport-ops/soc-backend/domain/ticketing"
)

type createTicketRequest struct {
	IncidentID string `json:"incident_id"`
}

type ticketResponse struct {
	ID          string `json:"id"`
	IncidentID  string `json:"incident_id"`
	Status      string `json:"status"`
	SLADeadline string `json:"sla_deadline"`
	Idempotent  bool   `json:"idempotent"`
}

// CreateTicketHandler serves POST /tickets: the direct entry point into
// the same idempotent create-from-incident contract the escalation path
// uses (spec §4.7).
func (a *API) CreateTicketHandler(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.IncidentID == "" {
		writeBadRequest(w, "incident_id is required")
		return
	}

	inc, err := a.soc.Get(r.Context(), req.IncidentID)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := a.ticketing.CreateFromIncident(r.Context(), ticketing.IncidentRef{
		PublicID:      req.IncidentID,
		DBID:          inc.ID,
		Severity:      inc.Severity,
		CorrelationID: inc.CorrelationID,
	}, "")
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ticketResponse{
		ID:          result.Ticket.ID,
		IncidentID:  req.IncidentID,
		Status:      result.Ticket.Status,
		SLADeadline: result.Ticket.SLADeadline.Format(time.RFC3339Nano),
		Idempotent:  result.Idempotent,
	})
}
