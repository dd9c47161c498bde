// Package soc implements the incident store and state machine (spec
// §3.4, §4.6): transactional compare-and-swap transitions over a fixed
// directed graph, with an audit trail and post-commit event emission.
package soc

import "time"

// Incident mirrors the `incidents` table (spec §6.4). CorrelationID and
// ID are the persisted uuid forms; the public string identifier
// callers used to address the incident is never stored, only echoed
// back into outgoing events.
type Incident struct {
	ID            string
	Type          string
	Severity      string
	State         string
	CorrelationID string
	CreatedAt     time.Time
}

// Transition records one row of `incident_transitions`.
type Transition struct {
	ID          string
	IncidentID  string
	FromState   string
	ToState     string
	TriggeredBy string
	OccurredAt  time.Time
}
