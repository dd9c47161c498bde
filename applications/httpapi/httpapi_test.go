package httpapi

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/skyport-ops/soc-backend/domain/soc"
	"github.com/skyport-ops/soc-backend/domain/ticketing"
	apierrors "github.com/skyport-ops/soc-backend/infrastructure/errors"
	"github.com/skyport-ops/soc-backend/infrastructure/metrics"
	"github.com/skyport-ops/soc-backend/pkg/logger"
	"github.com/skyport-ops/soc-backend/system/events"
)

// fakeSOCStore and fakeTicketStore are minimal in-memory doubles of the
// domain Store interfaces, letting these tests exercise the real
// Service/FSM logic behind each handler without a database.

type fakeSOCStore struct {
	rows map[uuid.UUID]soc.Incident
}

func newFakeSOCStore() *fakeSOCStore {
	return &fakeSOCStore{rows: map[uuid.UUID]soc.Incident{}}
}

func (f *fakeSOCStore) Upsert(ctx context.Context, id uuid.UUID, incidentType, severity, state, correlationID string) error {
	if _, ok := f.rows[id]; ok {
		return nil
	}
	f.rows[id] = soc.Incident{ID: id.String(), Type: incidentType, Severity: severity, State: state, CorrelationID: correlationID}
	return nil
}

func (f *fakeSOCStore) Get(ctx context.Context, id uuid.UUID) (soc.Incident, bool, error) {
	inc, ok := f.rows[id]
	return inc, ok, nil
}

func (f *fakeSOCStore) CompareAndSwap(ctx context.Context, id uuid.UUID, from, to, triggeredBy string) error {
	inc, ok := f.rows[id]
	if !ok || inc.State != from {
		return apierrors.ConcurrentModification("incident", id.String())
	}
	inc.State = to
	f.rows[id] = inc
	return nil
}

type fakeTicketStore struct {
	byIncident map[uuid.UUID]ticketing.Ticket
	byID       map[uuid.UUID]ticketing.Ticket
}

func newFakeTicketStore() *fakeTicketStore {
	return &fakeTicketStore{byIncident: map[uuid.UUID]ticketing.Ticket{}, byID: map[uuid.UUID]ticketing.Ticket{}}
}

func (f *fakeTicketStore) FindByIncident(ctx context.Context, incidentID uuid.UUID) (ticketing.Ticket, bool, error) {
	t, ok := f.byIncident[incidentID]
	return t, ok, nil
}

func (f *fakeTicketStore) CreateIfAbsent(ctx context.Context, incidentID uuid.UUID, slaDeadline time.Time) (ticketing.Ticket, bool, error) {
	if existing, ok := f.byIncident[incidentID]; ok {
		return existing, false, nil
	}
	id := uuid.New()
	t := ticketing.Ticket{ID: id.String(), IncidentID: incidentID.String(), Status: ticketing.StatusOpen, SLADeadline: slaDeadline, CreatedAt: time.Now().UTC()}
	f.byIncident[incidentID] = t
	f.byID[id] = t
	return t, true, nil
}

func (f *fakeTicketStore) Get(ctx context.Context, id uuid.UUID) (ticketing.Ticket, bool, error) {
	t, ok := f.byID[id]
	return t, ok, nil
}

func (f *fakeTicketStore) CompareAndSwap(ctx context.Context, id uuid.UUID, from, to, triggeredBy string) error {
	t, ok := f.byID[id]
	if !ok || t.Status != from {
		return apierrors.ConcurrentModification("ticket", id.String())
	}
	t.Status = to
	f.byID[id] = t
	return nil
}

func (f *fakeTicketStore) Assign(ctx context.Context, id uuid.UUID, assigneeID, triggeredBy string) error {
	t, ok := f.byID[id]
	if !ok {
		return apierrors.NotFound("ticket", id.String())
	}
	t.AssigneeID = assigneeID
	f.byID[id] = t
	return nil
}

// testAPI wires a full API instance backed by fakes and a real
// in-memory event bus, with one seeded incident ready to transition.
type testAPI struct {
	api        *API
	socStore   *fakeSOCStore
	incidentID string // public id seeded into socStore
}

func newTestAPI() *testAPI {
	bus, err := events.NewBus(context.Background(), events.Config{InMemory: true}, nil)
	if err != nil {
		panic(err)
	}
	socStore := newFakeSOCStore()
	socService := soc.NewService(socStore, bus, nil)
	ticketStore := newFakeTicketStore()
	ticketService := ticketing.NewService(ticketStore, bus, nil)

	publicID := "inc-1"
	_ = socService.ApplyCreated(context.Background(), publicID, "fire", "critical", soc.StateNew, "")

	return &testAPI{
		api: &API{
			bus:       bus,
			soc:       socService,
			ticketing: ticketService,
			logger:    logger.NewDefault("httpapi-test"),
			metrics:   metrics.Global(),
		},
		socStore:   socStore,
		incidentID: publicID,
	}
}
