package domain

import (
	"context"
)

// Event represents a registerable event with a capacity-bounded lottery.
// Times are epoch milliseconds, matching what the organizer apps write.
type Event struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	OrganizerID string `json:"organizer_id"`

	RegistrationEnd int64 `json:"registration_end"` // registration window close, epoch ms
	StartsAt        int64 `json:"starts_at"`        // event start, epoch ms
	DeadlineAt      int64 `json:"deadline_at"`      // invitation response deadline, epoch ms (0 = unset)
	SampleSize      int   `json:"sample_size"`      // capacity: max entrants ever Selected

	// Idempotency flags. Monotonic: they only ever go false -> true.
	SelectionProcessed        bool `json:"selection_processed"`
	SelectionNotificationSent bool `json:"selection_notification_sent"`
	SorryNotificationSent     bool `json:"sorry_notification_sent"`

	// SelectionError records a non-fatal failure (e.g. the notification
	// request could not be created) for operator visibility.
	SelectionError string `json:"selection_error,omitempty"`
}

// EventRepository defines the interface for event storage.
type EventRepository interface {
	GetByID(ctx context.Context, id string) (*Event, error)

	// ListSelectionPending returns events whose selection has not been
	// processed yet. Window checks against registration_end and starts_at
	// happen in the caller, mirroring the store's single-field query limits.
	ListSelectionPending(ctx context.Context) ([]*Event, error)

	// ListStartingBetween returns events with starts_at in [from, to) (epoch
	// ms) that have not had their sorry notification sent.
	ListStartingBetween(ctx context.Context, from, to int64) ([]*Event, error)

	MarkSelectionProcessed(ctx context.Context, eventID string) error
	MarkSelectionNotificationSent(ctx context.Context, eventID string, selectionErr string) error
	MarkSorryNotificationSent(ctx context.Context, eventID string) error
}
