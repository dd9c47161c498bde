package ticketing

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/skyport-ops/soc-backend/infrastructure/errors"
)

// Store persists tickets, their assignments, and their transition
// audit trail.
type Store interface {
	// FindByIncident returns the ticket for an incident, if any.
	FindByIncident(ctx context.Context, incidentID uuid.UUID) (Ticket, bool, error)
	// CreateIfAbsent atomically creates a ticket for incidentID unless
	// one already exists, serializing concurrent callers for the same
	// incident (spec §4.7's idempotency requirement, P6).
	CreateIfAbsent(ctx context.Context, incidentID uuid.UUID, slaDeadline time.Time) (ticket Ticket, created bool, err error)
	Get(ctx context.Context, id uuid.UUID) (Ticket, bool, error)
	CompareAndSwap(ctx context.Context, id uuid.UUID, from, to, triggeredBy string) error
	Assign(ctx context.Context, id uuid.UUID, assigneeID, triggeredBy string) error
}

// PGStore is the PostgreSQL-backed Store.
type PGStore struct {
	DB *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{DB: db}
}

func (s *PGStore) FindByIncident(ctx context.Context, incidentID uuid.UUID) (Ticket, bool, error) {
	return scanTicketRow(s.DB.QueryRowContext(ctx, `
		SELECT id, incident_id, status, sla_deadline, assignee_id, created_at
		FROM tickets WHERE incident_id = $1
		ORDER BY created_at ASC LIMIT 1
	`, incidentID))
}

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (Ticket, bool, error) {
	return scanTicketRow(s.DB.QueryRowContext(ctx, `
		SELECT id, incident_id, status, sla_deadline, assignee_id, created_at
		FROM tickets WHERE id = $1
	`, id))
}

func scanTicketRow(row *sql.Row) (Ticket, bool, error) {
	var t Ticket
	var assigneeID sql.NullString
	err := row.Scan(&t.ID, &t.IncidentID, &t.Status, &t.SLADeadline, &assigneeID, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, false, nil
	}
	if err != nil {
		return Ticket{}, false, err
	}
	t.AssigneeID = assigneeID.String
	return t, true, nil
}

// CreateIfAbsent takes a Postgres advisory lock scoped to the
// transaction, keyed on the incident id, so two concurrent escalations
// of the same incident serialize instead of racing the classic
// check-then-insert window (there is no unique constraint on
// incident_id in the baseline schema, per spec §4.7).
func (s *PGStore) CreateIfAbsent(ctx context.Context, incidentID uuid.UUID, slaDeadline time.Time) (Ticket, bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Ticket{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, incidentID.String()); err != nil {
		return Ticket{}, false, err
	}

	var existing Ticket
	row := tx.QueryRowContext(ctx, `
		SELECT id, incident_id, status, sla_deadline, created_at
		FROM tickets WHERE incident_id = $1
		ORDER BY created_at ASC LIMIT 1
	`, incidentID)
	switch err := row.Scan(&existing.ID, &existing.IncidentID, &existing.Status, &existing.SLADeadline, &existing.CreatedAt); err {
	case nil:
		return existing, false, tx.Commit()
	case sql.ErrNoRows:
		// fall through to insert
	default:
		return Ticket{}, false, err
	}

	id := uuid.New()
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tickets (id, incident_id, status, sla_deadline, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, incidentID, StatusOpen, slaDeadline, now); err != nil {
		return Ticket{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return Ticket{}, false, err
	}

	return Ticket{ID: id.String(), IncidentID: incidentID.String(), Status: StatusOpen, SLADeadline: slaDeadline, CreatedAt: now}, true, nil
}

func (s *PGStore) CompareAndSwap(ctx context.Context, id uuid.UUID, from, to, triggeredBy string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE tickets SET status = $1 WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows != 1 {
		return apierrors.ConcurrentModification("ticket", id.String())
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ticket_transitions (id, ticket_id, from_state, to_state, triggered_by, occurred_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, uuid.New(), id, from, to, triggeredBy); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PGStore) Assign(ctx context.Context, id uuid.UUID, assigneeID, triggeredBy string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE tickets SET assignee_id = $1 WHERE id = $2`, assigneeID, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows != 1 {
		return apierrors.NotFound("ticket", id.String())
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ticket_assignments (id, ticket_id, assignee_id, assigned_at)
		VALUES ($1, $2, $3, now())
	`, uuid.New(), id, assigneeID); err != nil {
		return err
	}

	return tx.Commit()
}

// ListSLABreaches returns open/in-progress tickets past their SLA
// deadline, for the sweep job (spec §4.9 expansion).
func (s *PGStore) ListSLABreaches(ctx context.Context, now time.Time) ([]Ticket, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, incident_id, status, sla_deadline, created_at
		FROM tickets
		WHERE status IN ($1, $2) AND sla_deadline < $3
	`, StatusOpen, StatusInProgress, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ticket
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(&t.ID, &t.IncidentID, &t.Status, &t.SLADeadline, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
