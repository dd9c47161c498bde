package ingest

import (
	"context"
	"testing"

	"github.com/skyport-ops/soc-backend/domain/soc"
	apierrors "github.com/skyport-ops/soc-backend/infrastructure/errors"
	"github.com/skyport-ops/soc-backend/system/events"
)

type fakeFleetSink struct {
	forwarded []string
}

func (f *fakeFleetSink) Forward(ctx context.Context, assetID, eventType string, payload map[string]any) error {
	f.forwarded = append(f.forwarded, assetID)
	return nil
}

func entryFor(env *events.Envelope) events.Entry {
	return events.Entry{ID: "1-0", Envelope: env}
}

func TestDispatchUnknownEventTypeIsNoOp(t *testing.T) {
	d := NewDispatcher(nil, &fakeFleetSink{}, nil)
	env := events.NewEnvelope("some.unrelated.event", "test", events.SeverityInfo, "", nil, nil)
	if err := d.Dispatch(context.Background(), entryFor(env)); err != nil {
		t.Fatalf("expected unknown event type to be a no-op, got %v", err)
	}
}

func TestDispatchNilEnvelopeIsInvalidMessage(t *testing.T) {
	d := NewDispatcher(nil, &fakeFleetSink{}, nil)
	err := d.Dispatch(context.Background(), events.Entry{ID: "1-0", Envelope: nil})
	if !apierrors.Is(err, apierrors.ErrCodeInvalidMessage) {
		t.Fatalf("expected InvalidMessage for nil envelope, got %v", err)
	}
}

func TestDispatchFleetEventMissingAssetIDIsPoisonSwallowed(t *testing.T) {
	d := NewDispatcher(nil, &fakeFleetSink{}, nil)
	env := events.NewEnvelope("fleet.asset_status_changed", "fleet", events.SeverityInfo, "", nil, map[string]any{})

	// handleFleetEvent returns PoisonMessage, which Dispatch must swallow
	// (log-and-ack) rather than propagate as a no-ack error.
	err := d.Dispatch(context.Background(), entryFor(env))
	if err != nil {
		t.Fatalf("expected poison fleet event to be swallowed (acked), got %v", err)
	}
}

func TestDispatchFleetEventForwardsToSink(t *testing.T) {
	sink := &fakeFleetSink{}
	d := NewDispatcher(nil, sink, nil)
	env := events.NewEnvelope("fleet.robot_patrol_started", "fleet", events.SeverityInfo, "", nil, map[string]any{"asset_id": "robot-7"})

	if err := d.Dispatch(context.Background(), entryFor(env)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(sink.forwarded) != 1 || sink.forwarded[0] != "robot-7" {
		t.Fatalf("expected fleet event forwarded to sink, got %v", sink.forwarded)
	}
}

func TestDispatchFleetEventAliasesRouteToSameHandler(t *testing.T) {
	sink := &fakeFleetSink{}
	d := NewDispatcher(nil, sink, nil)

	for _, alias := range []string{"fleet.asset_status_changed", "fleet.asset.status_changed", "fleet.robot_patrol_started"} {
		env := events.NewEnvelope(alias, "fleet", events.SeverityInfo, "", nil, map[string]any{"asset_id": "a-1"})
		if err := d.Dispatch(context.Background(), entryFor(env)); err != nil {
			t.Fatalf("Dispatch(%s): %v", alias, err)
		}
	}
	if len(sink.forwarded) != 3 {
		t.Fatalf("expected all three fleet aliases routed, got %d", len(sink.forwarded))
	}
}

func TestDispatchIncidentStateChangedMissingFieldsIsInvalidMessage(t *testing.T) {
	d := NewDispatcher(soc.NewService(nil, nil, nil), &fakeFleetSink{}, nil)
	env := events.NewEnvelope("incident.state_changed", "soc-core", events.SeverityInfo, "", nil, map[string]any{})

	err := d.Dispatch(context.Background(), entryFor(env))
	if !apierrors.Is(err, apierrors.ErrCodeInvalidMessage) {
		t.Fatalf("expected InvalidMessage for missing incident_id/to_state, got %v", err)
	}
}
