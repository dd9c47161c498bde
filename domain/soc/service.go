package soc

import (
	"context"

	"github.com/google/uuid"

	"github.com/skyport-ops/soc-backend/domain/identifier"
	apierrors "github.com/skyport-ops/soc-backend/infrastructure/errors"
	"github.com/skyport-ops/soc-backend/infrastructure/metrics"
	"github.com/skyport-ops/soc-backend/pkg/logger"
	"github.com/skyport-ops/soc-backend/system/events"
)

// EventPublisher is the subset of *events.Bus the service depends on.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]any, sourceContext string, severity events.Severity, correlationID string, entityRefs map[string]any, stream string) (string, error)
}

// Service implements the incident state machine on top of a Store,
// publishing state-change notifications to the event bus.
type Service struct {
	store   Store
	bus     EventPublisher
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(store Store, bus EventPublisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("soc")
	}
	return &Service{store: store, bus: bus, logger: log, metrics: metrics.Global()}
}

// ApplyCreated handles the `incident.created` dispatch table entry
// (spec §4.5): upserts the row, tolerating a pre-existing one.
func (s *Service) ApplyCreated(ctx context.Context, publicID, incidentType, severity, state, correlationID string) error {
	if publicID == "" {
		return apierrors.InvalidMessage("incident.created missing id")
	}
	if state == "" {
		state = StateNew
	}
	return s.store.Upsert(ctx, identifier.DBID(publicID), incidentType, severity, state, correlationID)
}

// ApplyStateChanged handles the `incident.state_changed` dispatch table
// entry: it overwrites the stored state with toState without checking
// the FSM graph (the write-model mirror; edge validation happens in
// Transition). The write goes through store.CompareAndSwap from the
// currently stored state, so the store also records an audit row with
// triggered_by "system". A row already in toState is left untouched.
func (s *Service) ApplyStateChanged(ctx context.Context, publicID, toState string) error {
	if publicID == "" || toState == "" {
		return apierrors.InvalidMessage("incident.state_changed missing id or state")
	}
	id := identifier.DBID(publicID)
	inc, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apierrors.InvalidMessage("incident.state_changed: unknown incident " + publicID)
	}
	if inc.State == toState {
		return nil
	}
	return s.store.CompareAndSwap(ctx, id, inc.State, toState, "system")
}

// Get loads an incident by its public identifier, for callers (the
// ticket-creation and escalation handlers) that need its current
// snapshot without performing a transition.
func (s *Service) Get(ctx context.Context, publicID string) (Incident, error) {
	inc, ok, err := s.store.Get(ctx, identifier.DBID(publicID))
	if err != nil {
		return Incident{}, apierrors.Internal("load incident", err)
	}
	if !ok {
		return Incident{}, apierrors.NotFound("incident", publicID)
	}
	return inc, nil
}

// Transition drives the FSM per spec §4.6's 7-step contract.
func (s *Service) Transition(ctx context.Context, publicID, toState, triggeredBy string) (Incident, error) {
	if !isState(toState) {
		return Incident{}, apierrors.UnknownState(toState, false)
	}

	id := identifier.DBID(publicID)
	inc, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return Incident{}, apierrors.Internal("load incident", err)
	}
	if !ok {
		return Incident{}, apierrors.NotFound("incident", publicID)
	}

	if !isState(inc.State) {
		return Incident{}, apierrors.UnknownState(inc.State, true)
	}

	if toState == inc.State {
		return inc, nil
	}

	if !canTransition(inc.State, toState) {
		return Incident{}, apierrors.InvalidTransition(inc.State, toState, allowedFrom(inc.State))
	}

	from := inc.State
	if err := s.store.CompareAndSwap(ctx, id, from, toState, triggeredBy); err != nil {
		return Incident{}, err
	}
	inc.State = toState

	s.metrics.RecordIncidentTransition(from, toState)

	correlationID := inc.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	if _, err := s.bus.Publish(ctx, "incident.state_changed",
		map[string]any{
			"incident_id":  publicID,
			"from_state":   from,
			"to_state":     toState,
			"triggered_by": triggeredBy,
		},
		"soc", events.Severity(severityOrDefault(inc.Severity)), correlationID,
		map[string]any{"incidentId": publicID},
		events.GlobalStream,
	); err != nil {
		s.logger.WithError(err).WithField("incident_id", publicID).Error("publish incident.state_changed failed")
	}

	return inc, nil
}

func severityOrDefault(sev string) string {
	switch sev {
	case string(events.SeverityInfo), string(events.SeverityWarning), string(events.SeverityCritical):
		return sev
	default:
		return string(events.SeverityInfo)
	}
}
