package domain

import (
	"context"
)

// InvitationStatusPending is the status every invitation is created with.
// Accept/decline transitions happen in the client apps, not here.
const InvitationStatusPending = "PENDING"

// Invitation grants a selected entrant the right to accept or decline
// participation. One per selected entrant.
type Invitation struct {
	ID          string `json:"id"`
	EventID     string `json:"event_id"`
	UserID      string `json:"user_id"`
	OrganizerID string `json:"organizer_id"`
	Status      string `json:"status"`
	IssuedAt    int64  `json:"issued_at"`  // epoch ms
	ExpiresAt   int64  `json:"expires_at"` // epoch ms
}

// NewInvitation returns a pending Invitation. ID is set by the caller.
func NewInvitation(id, eventID, userID, organizerID string, issuedAt, expiresAt int64) *Invitation {
	return &Invitation{
		ID:          id,
		EventID:     eventID,
		UserID:      userID,
		OrganizerID: organizerID,
		Status:      InvitationStatusPending,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
	}
}

// InvitationRepository defines storage operations for invitations.
type InvitationRepository interface {
	// CreateBatch inserts all invitations atomically. Duplicate
	// (event, user) pairs are ignored rather than erroring, so a retried
	// selection tick cannot double-invite.
	CreateBatch(ctx context.Context, invs []*Invitation) error
	ListByEventID(ctx context.Context, eventID string) ([]*Invitation, error)
}
