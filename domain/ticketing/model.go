// Package ticketing implements the ticket store and lifecycle (spec
// §3.5, §4.7): idempotent creation from an incident, SLA computation,
// and CAS-driven state transitions.
package ticketing

import "time"

// Ticket mirrors the `tickets` table (spec §6.4).
type Ticket struct {
	ID          string
	IncidentID  string
	Status      string
	SLADeadline time.Time
	AssigneeID  string
	CreatedAt   time.Time
}

// Assignment mirrors one row of `ticket_assignments`.
type Assignment struct {
	ID         string
	TicketID   string
	AssigneeID string
	AssignedAt time.Time
}

// Transition records one row of `ticket_transitions` (spec §4.7,
// following the same CAS-with-audit pattern as incidents — see the
// `domain/ticketing` entry in DESIGN.md and SPEC_FULL.md §10 item 2).
type Transition struct {
	ID          string
	TicketID    string
	FromState   string
	ToState     string
	TriggeredBy string
	OccurredAt  time.Time
}

// Status values (spec §4.7).
const (
	StatusOpen       = "Open"
	StatusInProgress = "InProgress"
	StatusResolved   = "Resolved"
	StatusClosed     = "Closed"
)

var graph = map[string][]string{
	StatusOpen:       {StatusInProgress},
	StatusInProgress: {StatusResolved},
	StatusResolved:   {StatusClosed},
	StatusClosed:     {},
}

func isStatus(s string) bool {
	_, ok := graph[s]
	return ok
}

func canTransition(from, to string) bool {
	for _, s := range graph[from] {
		if s == to {
			return true
		}
	}
	return false
}

func allowedFrom(s string) []string {
	return graph[s]
}

// slaHours maps incident severity to the ticket's SLA window (spec
// §4.7); an unrecognized severity is treated as "info".
var slaHours = map[string]int{
	"critical": 4,
	"warning":  24,
	"info":     72,
}

func SLA(severity string) time.Duration {
	hours, ok := slaHours[severity]
	if !ok {
		hours = slaHours["info"]
	}
	return time.Duration(hours) * time.Hour
}
