package soc

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	apierrors "github.com/skyport-ops/soc-backend/infrastructure/errors"
)

// Store persists incidents and their transition audit trail.
type Store interface {
	// Upsert inserts a new incident row, ignoring the call if one with
	// the same id already exists (ON CONFLICT DO NOTHING).
	Upsert(ctx context.Context, id uuid.UUID, incidentType, severity, state, correlationID string) error
	// Get loads an incident by its db id.
	Get(ctx context.Context, id uuid.UUID) (Incident, bool, error)
	// CompareAndSwap performs the state CAS and audit insert in one
	// transaction (spec §4.6 step 6). Returns apierrors.ConcurrentModification
	// if the row's current state no longer matches from.
	CompareAndSwap(ctx context.Context, id uuid.UUID, from, to, triggeredBy string) error
}

// PGStore is the PostgreSQL-backed Store.
type PGStore struct {
	DB *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{DB: db}
}

func (s *PGStore) Upsert(ctx context.Context, id uuid.UUID, incidentType, severity, state, correlationID string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO incidents (id, type, severity, state, correlation_id, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, now())
		ON CONFLICT (id) DO NOTHING
	`, id, incidentType, severity, state, correlationID)
	return err
}

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (Incident, bool, error) {
	var inc Incident
	var correlationID sql.NullString
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, type, severity, state, correlation_id, created_at
		FROM incidents
		WHERE id = $1
	`, id).Scan(&inc.ID, &inc.Type, &inc.Severity, &inc.State, &correlationID, &inc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Incident{}, false, nil
	}
	if err != nil {
		return Incident{}, false, err
	}
	inc.CorrelationID = correlationID.String
	return inc, true, nil
}

func (s *PGStore) CompareAndSwap(ctx context.Context, id uuid.UUID, from, to, triggeredBy string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE incidents SET state = $1 WHERE id = $2 AND state = $3
	`, to, id, from)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows != 1 {
		return apierrors.ConcurrentModification("incident", id.String())
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO incident_transitions (id, incident_id, from_state, to_state, triggered_by, occurred_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, uuid.New(), id, from, to, triggeredBy); err != nil {
		return err
	}

	return tx.Commit()
}
