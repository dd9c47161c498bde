// Package ingest wires the consumer manager's generic Dispatcher to the
// SOC/Ticketing domain write models (spec §4.5's dispatch table).
package ingest

import (
	"context"

	"github.com/skyport-ops/soc-backend/domain/soc"
	apierrors "github.com/skyport-ops/soc-backend/infrastructure/errors"
	"github.com/skyport-ops/soc-backend/infrastructure/metrics"
	"github.com/skyport-ops/soc-backend/pkg/logger"
	"github.com/skyport-ops/soc-backend/system/events"
)

// FleetSink receives fleet telemetry forwarded by the dispatcher. A
// thin interface keeps this package decoupled from whatever downstream
// consumes fleet events; the default implementation just logs.
type FleetSink interface {
	Forward(ctx context.Context, assetID, eventType string, payload map[string]any) error
}

// LoggingFleetSink is the default FleetSink: it logs and never fails,
// matching spec §4.5's "forward to fleet telemetry sink" being outside
// this core's scope beyond the routing decision itself.
type LoggingFleetSink struct {
	logger *logger.Logger
}

func NewLoggingFleetSink(log *logger.Logger) *LoggingFleetSink {
	if log == nil {
		log = logger.NewDefault("fleet-sink")
	}
	return &LoggingFleetSink{logger: log}
}

func (s *LoggingFleetSink) Forward(ctx context.Context, assetID, eventType string, payload map[string]any) error {
	s.logger.WithFields(map[string]interface{}{"asset_id": assetID, "event_type": eventType}).Debug("forwarded fleet event")
	return nil
}

// Dispatcher routes decoded envelopes to domain side effects.
type Dispatcher struct {
	soc    *soc.Service
	fleet  FleetSink
	logger *logger.Logger
}

func NewDispatcher(socService *soc.Service, fleet FleetSink, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("dispatcher")
	}
	if fleet == nil {
		fleet = NewLoggingFleetSink(log)
	}
	return &Dispatcher{soc: socService, fleet: fleet, logger: log}
}

// Dispatch implements events.Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, entry events.Entry) error {
	env := entry.Envelope
	if env == nil {
		return apierrors.InvalidMessage("entry decoded to nil envelope")
	}

	var err error
	switch env.EventType {
	case "incident.created":
		err = d.handleIncidentCreated(ctx, env)
	case "incident.state_changed":
		err = d.handleIncidentStateChanged(ctx, env)
	case "fleet.asset_status_changed", "fleet.asset.status_changed", "fleet.robot_patrol_started":
		err = d.handleFleetEvent(ctx, env)
	default:
		err = nil
	}

	outcome := "ack"
	if err != nil {
		if apierrors.Is(err, apierrors.ErrCodePoisonMessage) {
			outcome = "poison"
			d.logger.WithField("event_type", env.EventType).WithField("event_id", env.EventID).Warn("poison message, acking anyway")
			err = nil
		} else {
			outcome = "no_ack"
		}
	}
	metrics.Global().RecordEventConsumed(env.EventType, "dispatcher", outcome)
	return err
}

func (d *Dispatcher) handleIncidentCreated(ctx context.Context, env *events.Envelope) error {
	publicID := events.GetAnyString(env.Payload, "", "id", "incident_id")
	if publicID == "" {
		return apierrors.InvalidMessage("incident.created missing id")
	}
	incidentType := events.GetAnyString(env.Payload, "", "type")
	severity := events.GetAnyString(env.Payload, string(env.Severity), "severity")
	state := events.GetAnyString(env.Payload, "", "state")
	return d.soc.ApplyCreated(ctx, publicID, incidentType, severity, state, env.CorrelationID)
}

func (d *Dispatcher) handleIncidentStateChanged(ctx context.Context, env *events.Envelope) error {
	publicID := events.GetAnyString(env.Payload, "", "incident_id", "id")
	toState := events.GetAnyString(env.Payload, "", "to_state", "state")
	if publicID == "" || toState == "" {
		return apierrors.InvalidMessage("incident.state_changed missing id or state")
	}
	return d.soc.ApplyStateChanged(ctx, publicID, toState)
}

func (d *Dispatcher) handleFleetEvent(ctx context.Context, env *events.Envelope) error {
	assetID := events.GetAnyString(env.Payload, "", "asset_id", "assetId")
	if assetID == "" {
		// soft error per spec §4.5: poison, not invalid.
		return apierrors.PoisonMessage("fleet event missing asset id")
	}
	return d.fleet.Forward(ctx, assetID, env.EventType, env.Payload)
}
