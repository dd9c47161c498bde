package ticketing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/skyport-ops/soc-backend/infrastructure/errors"
	"github.com/skyport-ops/soc-backend/system/events"
)

type fakeStore struct {
	byIncident  map[uuid.UUID]Ticket
	byID        map[uuid.UUID]Ticket
	createCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byIncident: map[uuid.UUID]Ticket{}, byID: map[uuid.UUID]Ticket{}}
}

func (f *fakeStore) FindByIncident(ctx context.Context, incidentID uuid.UUID) (Ticket, bool, error) {
	t, ok := f.byIncident[incidentID]
	return t, ok, nil
}

func (f *fakeStore) CreateIfAbsent(ctx context.Context, incidentID uuid.UUID, slaDeadline time.Time) (Ticket, bool, error) {
	f.createCalls++
	if existing, ok := f.byIncident[incidentID]; ok {
		return existing, false, nil
	}
	id := uuid.New()
	ticket := Ticket{ID: id.String(), IncidentID: incidentID.String(), Status: StatusOpen, SLADeadline: slaDeadline, CreatedAt: time.Now().UTC()}
	f.byIncident[incidentID] = ticket
	f.byID[id] = ticket
	return ticket, true, nil
}

func (f *fakeStore) Get(ctx context.Context, id uuid.UUID) (Ticket, bool, error) {
	t, ok := f.byID[id]
	return t, ok, nil
}

func (f *fakeStore) CompareAndSwap(ctx context.Context, id uuid.UUID, from, to, triggeredBy string) error {
	t, ok := f.byID[id]
	if !ok || t.Status != from {
		return apierrors.ConcurrentModification("ticket", id.String())
	}
	t.Status = to
	f.byID[id] = t
	return nil
}

func (f *fakeStore) Assign(ctx context.Context, id uuid.UUID, assigneeID, triggeredBy string) error {
	t, ok := f.byID[id]
	if !ok {
		return apierrors.NotFound("ticket", id.String())
	}
	t.AssigneeID = assigneeID
	f.byID[id] = t
	return nil
}

type fakePublisher struct {
	published  []string
	payloads   []map[string]any
	entityRefs []map[string]any
}

func (f *fakePublisher) Publish(ctx context.Context, eventType string, payload map[string]any, sourceContext string, severity events.Severity, correlationID string, entityRefs map[string]any, stream string) (string, error) {
	f.published = append(f.published, eventType)
	f.payloads = append(f.payloads, payload)
	f.entityRefs = append(f.entityRefs, entityRefs)
	return "id-1", nil
}

func TestCreateFromIncidentCreatesOnce(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	svc := NewService(store, pub, nil)
	ctx := context.Background()

	ref := IncidentRef{PublicID: "inc-1", DBID: uuid.New().String(), Severity: "critical"}

	result, err := svc.CreateFromIncident(ctx, ref, "")
	if err != nil {
		t.Fatalf("CreateFromIncident: %v", err)
	}
	if result.Status != "created" || result.Idempotent {
		t.Fatalf("expected created result, got %+v", result)
	}
	if len(pub.published) != 1 || pub.published[0] != "ticket.created" {
		t.Fatalf("expected ticket.created publish, got %v", pub.published)
	}

	second, err := svc.CreateFromIncident(ctx, ref, "")
	if err != nil {
		t.Fatalf("second CreateFromIncident: %v", err)
	}
	if second.Status != "exists" || !second.Idempotent {
		t.Fatalf("expected idempotent exists result, got %+v", second)
	}
	if second.Ticket.ID != result.Ticket.ID {
		t.Fatalf("expected same ticket id, got %s vs %s", second.Ticket.ID, result.Ticket.ID)
	}
	if len(pub.published) != 1 {
		t.Fatalf("idempotent create must not publish again, got %v", pub.published)
	}
}

func TestCreateFromIncidentRejectsEmptyRef(t *testing.T) {
	svc := NewService(newFakeStore(), &fakePublisher{}, nil)
	_, err := svc.CreateFromIncident(context.Background(), IncidentRef{}, "")
	if !apierrors.Is(err, apierrors.ErrCodeValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreateFromIncidentSLADeadlineReflectsSeverity(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakePublisher{}, nil)
	ctx := context.Background()

	ref := IncidentRef{PublicID: "inc-1", DBID: uuid.New().String(), Severity: "critical"}
	before := time.Now().UTC()
	result, err := svc.CreateFromIncident(ctx, ref, "")
	if err != nil {
		t.Fatalf("CreateFromIncident: %v", err)
	}
	gotHours := result.Ticket.SLADeadline.Sub(before).Hours()
	if gotHours < 3.9 || gotHours > 4.1 {
		t.Fatalf("expected ~4h SLA for critical, got %.2fh", gotHours)
	}
}

func TestTicketTransitionHappyPath(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	svc := NewService(store, pub, nil)
	ctx := context.Background()

	result, _ := svc.CreateFromIncident(ctx, IncidentRef{PublicID: "inc-1", DBID: uuid.New().String(), Severity: "info"}, "")

	ticket, err := svc.Transition(ctx, result.Ticket.ID, StatusInProgress, "operator-1", "inc-1", "")
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if ticket.Status != StatusInProgress {
		t.Fatalf("expected InProgress, got %s", ticket.Status)
	}
}

func TestTicketTransitionRejectsInvalidEdge(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakePublisher{}, nil)
	ctx := context.Background()
	result, _ := svc.CreateFromIncident(ctx, IncidentRef{PublicID: "inc-1", DBID: uuid.New().String(), Severity: "info"}, "")

	_, err := svc.Transition(ctx, result.Ticket.ID, StatusClosed, "operator-1", "inc-1", "")
	if !apierrors.Is(err, apierrors.ErrCodeInvalidTransition) {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}
}

func TestAssignRecordsAssignee(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakePublisher{}, nil)
	ctx := context.Background()
	result, _ := svc.CreateFromIncident(ctx, IncidentRef{PublicID: "inc-1", DBID: uuid.New().String(), Severity: "info"}, "")

	if err := svc.Assign(ctx, result.Ticket.ID, "agent-7", "operator-1", "inc-1", ""); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	id, _ := uuid.Parse(result.Ticket.ID)
	ticket, ok, _ := store.Get(ctx, id)
	if !ok || ticket.AssigneeID != "agent-7" {
		t.Fatalf("expected assignee recorded, got %+v ok=%v", ticket, ok)
	}
}
