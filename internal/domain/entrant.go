package domain

import (
	"context"
	"time"
)

// EntrantState is one of the four mutually exclusive lifecycle states an
// entrant occupies within an event.
type EntrantState string

const (
	StateWaitlisted  EntrantState = "waitlisted"
	StateSelected    EntrantState = "selected"
	StateNonSelected EntrantState = "non_selected"
	StateCancelled   EntrantState = "cancelled"
)

// Entrant is a user's registration of interest in an event, carrying a
// profile snapshot used for display and message personalization. A given
// (event, user) pair holds exactly one state at any instant.
type Entrant struct {
	EventID     string       `json:"event_id"`
	UserID      string       `json:"user_id"`
	FirstName   string       `json:"first_name"`
	FullName    string       `json:"full_name"`
	DisplayName string       `json:"display_name"`
	State       EntrantState `json:"state"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// EntrantRepository defines storage operations for the entrant ledger.
// Every transition method is atomic: it either fully applies or not at all,
// and can never leave a user in two states.
type EntrantRepository interface {
	ListByState(ctx context.Context, eventID string, state EntrantState) ([]*Entrant, error)
	CountByState(ctx context.Context, eventID string, state EntrantState) (int, error)

	// CommitSelection promotes the given waitlisted users to Selected and
	// marks the event's selection as processed, in a single transaction that
	// locks the event row, re-checks the processed flag and re-counts the
	// Selected pool. The move is truncated so the Selected count never
	// exceeds the event's sample size; the promoted user IDs are returned.
	// Returns ErrAlreadyProcessed when a concurrent invocation won the race.
	CommitSelection(ctx context.Context, eventID string, userIDs []string) ([]string, error)

	// DemoteRemainingWaitlisted moves every still-waitlisted entrant that is
	// not in keep to NonSelected. Returns the moved user IDs.
	DemoteRemainingWaitlisted(ctx context.Context, eventID string, keep []string) ([]string, error)

	// MoveAllByState moves every entrant currently in from to the state to,
	// returning the moved user IDs.
	MoveAllByState(ctx context.Context, eventID string, from, to EntrantState) ([]string, error)
}
