package database

import (
	"context"
	"database/sql"
)

// schema holds the idempotent DDL for the core tables (spec §6.4). Each
// statement is safe to re-run; there is no golang-migrate style
// versioned migration chain here, only a startup bootstrap gated by
// AUTO_MIGRATE.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,
	`CREATE TABLE IF NOT EXISTS incidents (
		id uuid PRIMARY KEY,
		type text NOT NULL,
		severity text NOT NULL,
		state text NOT NULL,
		correlation_id uuid,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS incident_transitions (
		id uuid PRIMARY KEY,
		incident_id uuid NOT NULL REFERENCES incidents(id),
		from_state text NOT NULL,
		to_state text NOT NULL,
		triggered_by text NOT NULL,
		occurred_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_incident_transitions_incident_id ON incident_transitions(incident_id)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id uuid PRIMARY KEY,
		incident_id uuid NOT NULL,
		status text NOT NULL,
		sla_deadline timestamptz NOT NULL,
		assignee_id uuid,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_incident_id ON tickets(incident_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_sla_deadline ON tickets(sla_deadline)`,
	`CREATE TABLE IF NOT EXISTS ticket_transitions (
		id uuid PRIMARY KEY,
		ticket_id uuid NOT NULL REFERENCES tickets(id),
		from_state text NOT NULL,
		to_state text NOT NULL,
		triggered_by text NOT NULL,
		occurred_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ticket_assignments (
		id uuid PRIMARY KEY,
		ticket_id uuid NOT NULL REFERENCES tickets(id),
		assignee_id uuid NOT NULL,
		assigned_at timestamptz NOT NULL DEFAULT now()
	)`,
}

// Migrate applies the schema bootstrap. Safe to call on every startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
