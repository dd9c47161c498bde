package ticketing

import (
	"context"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/skyport-ops/soc-backend/infrastructure/errors"
	"github.com/skyport-ops/soc-backend/infrastructure/metrics"
	"github.com/skyport-ops/soc-backend/pkg/logger"
	"github.com/skyport-ops/soc-backend/system/events"
)

// EventPublisher is the subset of *events.Bus the service depends on.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]any, sourceContext string, severity events.Severity, correlationID string, entityRefs map[string]any, stream string) (string, error)
}

// IncidentRef is the minimal incident context CreateFromIncident needs;
// callers (the HTTP handlers and the consumer dispatcher) assemble it
// from the incident they already loaded.
type IncidentRef struct {
	PublicID      string
	DBID          string
	Severity      string
	CorrelationID string
}

// CreateResult is the outcome of CreateFromIncident (spec §4.7).
type CreateResult struct {
	Status     string // "created" or "exists"
	Ticket     Ticket
	Idempotent bool
}

// Service implements the ticket lifecycle on top of a Store.
type Service struct {
	store   Store
	bus     EventPublisher
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(store Store, bus EventPublisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ticketing")
	}
	return &Service{store: store, bus: bus, logger: log, metrics: metrics.Global()}
}

// CreateFromIncident implements spec §4.7's 7-step idempotent contract.
func (s *Service) CreateFromIncident(ctx context.Context, incident IncidentRef, correlationID string) (CreateResult, error) {
	if incident.PublicID == "" || incident.DBID == "" {
		return CreateResult{}, apierrors.ValidationError("incident_id", "must not be empty")
	}

	incidentDBID, err := uuid.Parse(incident.DBID)
	if err != nil {
		return CreateResult{}, apierrors.Internal("parse incident db id", err)
	}

	effectiveCorrelationID := correlationID
	if effectiveCorrelationID == "" {
		effectiveCorrelationID = incident.CorrelationID
	}
	if effectiveCorrelationID == "" {
		effectiveCorrelationID = uuid.New().String()
	}

	slaDeadline := time.Now().UTC().Add(SLA(incident.Severity))

	ticket, created, err := s.store.CreateIfAbsent(ctx, incidentDBID, slaDeadline)
	if err != nil {
		return CreateResult{}, apierrors.Internal("create ticket", err)
	}

	if !created {
		return CreateResult{Status: "exists", Ticket: ticket, Idempotent: true}, nil
	}

	if _, err := s.bus.Publish(ctx, "ticket.created",
		map[string]any{
			"ticket_id":         ticket.ID,
			"incident_id":       incident.PublicID,
			"incident_db_id":    incident.DBID,
			"severity_snapshot": incident.Severity,
			"sla_deadline":      ticket.SLADeadline.Format(time.RFC3339Nano),
			"status":            StatusOpen,
		},
		"ticketing", severityOrDefault(incident.Severity), effectiveCorrelationID,
		map[string]any{"ticketId": ticket.ID, "incidentId": incident.PublicID, "incidentDbId": incident.DBID},
		events.GlobalStream,
	); err != nil {
		s.logger.WithError(err).WithField("ticket_id", ticket.ID).Error("publish ticket.created failed")
	}

	return CreateResult{Status: "created", Ticket: ticket}, nil
}

// Transition drives the ticket FSM, following the same CAS-with-audit
// pattern as soc.Service.Transition.
func (s *Service) Transition(ctx context.Context, id, toState, triggeredBy, incidentPublicID, incidentDBID string) (Ticket, error) {
	if !isStatus(toState) {
		return Ticket{}, apierrors.UnknownState(toState, false)
	}

	ticketID, err := uuid.Parse(id)
	if err != nil {
		ticketID = uuid.NewSHA1(uuid.NameSpaceDNS, []byte(id))
	}

	ticket, ok, err := s.store.Get(ctx, ticketID)
	if err != nil {
		return Ticket{}, apierrors.Internal("load ticket", err)
	}
	if !ok {
		return Ticket{}, apierrors.NotFound("ticket", id)
	}

	if !isStatus(ticket.Status) {
		return Ticket{}, apierrors.UnknownState(ticket.Status, true)
	}
	if toState == ticket.Status {
		return ticket, nil
	}
	if !canTransition(ticket.Status, toState) {
		return Ticket{}, apierrors.InvalidTransition(ticket.Status, toState, allowedFrom(ticket.Status))
	}

	from := ticket.Status
	if err := s.store.CompareAndSwap(ctx, ticketID, from, toState, triggeredBy); err != nil {
		return Ticket{}, err
	}
	ticket.Status = toState

	s.metrics.RecordTicketTransition(from, toState)

	entityRefs := map[string]any{"ticketId": ticket.ID}
	if incidentPublicID != "" {
		entityRefs["incidentId"] = incidentPublicID
	}
	if incidentDBID != "" {
		entityRefs["incidentDbId"] = incidentDBID
	}

	if _, err := s.bus.Publish(ctx, "ticket.state_changed",
		map[string]any{"ticket_id": ticket.ID, "from_state": from, "to_state": toState, "triggered_by": triggeredBy},
		"ticketing", events.SeverityInfo, uuid.New().String(), entityRefs, events.GlobalStream,
	); err != nil {
		s.logger.WithError(err).WithField("ticket_id", ticket.ID).Error("publish ticket.state_changed failed")
	}

	return ticket, nil
}

// Assign records a ticket assignment and emits ticket.assigned.
func (s *Service) Assign(ctx context.Context, id, assigneeID, triggeredBy, incidentPublicID, incidentDBID string) error {
	ticketID, err := uuid.Parse(id)
	if err != nil {
		ticketID = uuid.NewSHA1(uuid.NameSpaceDNS, []byte(id))
	}

	if err := s.store.Assign(ctx, ticketID, assigneeID, triggeredBy); err != nil {
		return err
	}

	entityRefs := map[string]any{"ticketId": id}
	if incidentPublicID != "" {
		entityRefs["incidentId"] = incidentPublicID
	}
	if incidentDBID != "" {
		entityRefs["incidentDbId"] = incidentDBID
	}

	if _, err := s.bus.Publish(ctx, "ticket.assigned",
		map[string]any{"ticket_id": id, "assignee_id": assigneeID, "triggered_by": triggeredBy},
		"ticketing", events.SeverityInfo, uuid.New().String(), entityRefs, events.GlobalStream,
	); err != nil {
		s.logger.WithError(err).WithField("ticket_id", id).Error("publish ticket.assigned failed")
	}

	return nil
}

func severityOrDefault(sev string) events.Severity {
	switch sev {
	case string(events.SeverityWarning):
		return events.SeverityWarning
	case string(events.SeverityCritical):
		return events.SeverityCritical
	default:
		return events.SeverityInfo
	}
}
