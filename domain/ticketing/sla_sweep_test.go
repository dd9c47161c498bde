package ticketing

import (
	"context"
	"testing"
	"time"
)

type fakeBreachLister struct {
	tickets []Ticket
	calls   int
}

func (f *fakeBreachLister) ListSLABreaches(ctx context.Context, now time.Time) ([]Ticket, error) {
	f.calls++
	return f.tickets, nil
}

func TestSLASweepEmitsOncePerTicket(t *testing.T) {
	lister := &fakeBreachLister{tickets: []Ticket{
		{ID: "t1", IncidentID: "i1", Status: StatusOpen, SLADeadline: time.Now().Add(-time.Hour)},
	}}
	pub := &fakePublisher{}
	sweep := &SLASweep{store: lister, bus: pub, seen: make(map[string]bool)}

	sweep.sweepOnce(context.Background())
	if len(pub.published) != 1 || pub.published[0] != "ticket.sla_breached" {
		t.Fatalf("expected one sla_breached publish, got %v", pub.published)
	}
	if got := pub.entityRefs[0]["incidentId"]; got != "i1" {
		t.Errorf("expected entity_refs.incidentId = i1, got %v", got)
	}
	if got, ok := pub.payloads[0]["breached_at"]; !ok || got == "" {
		t.Errorf("expected payload.breached_at to be set, got %v", got)
	}

	sweep.sweepOnce(context.Background())
	if len(pub.published) != 1 {
		t.Fatalf("expected no re-publish for already-seen ticket, got %v", pub.published)
	}
}
