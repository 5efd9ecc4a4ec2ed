package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"eventlottery/internal/domain"
)

type invitationRepository struct {
	DB *sql.DB
}

func NewInvitationRepository(db *sql.DB) domain.InvitationRepository {
	return &invitationRepository{
		DB: db,
	}
}

func (r *invitationRepository) CreateBatch(ctx context.Context, invs []*domain.Invitation) error {
	if len(invs) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin invitation tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO invitations (id, event_id, user_id, organizer_id, status, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id, user_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare invitation insert: %w", err)
	}
	defer stmt.Close()

	for _, inv := range invs {
		if _, err := stmt.ExecContext(ctx, inv.ID, inv.EventID, inv.UserID, inv.OrganizerID,
			inv.Status, inv.IssuedAt, inv.ExpiresAt); err != nil {
			return fmt.Errorf("insert invitation for user %s: %w", inv.UserID, err)
		}
	}
	return tx.Commit()
}

func (r *invitationRepository) ListByEventID(ctx context.Context, eventID string) ([]*domain.Invitation, error) {
	query := `
		SELECT id, event_id, user_id, organizer_id, status, issued_at, expires_at
		FROM invitations
		WHERE event_id = $1
		ORDER BY issued_at ASC
	`
	rows, err := r.DB.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invs []*domain.Invitation
	for rows.Next() {
		inv := &domain.Invitation{}
		if err := rows.Scan(&inv.ID, &inv.EventID, &inv.UserID, &inv.OrganizerID,
			&inv.Status, &inv.IssuedAt, &inv.ExpiresAt); err != nil {
			return nil, err
		}
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if invs == nil {
		invs = []*domain.Invitation{}
	}
	return invs, nil
}
