package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"eventlottery/internal/domain"
)

type entrantRepository struct {
	DB *sql.DB
}

func NewEntrantRepository(db *sql.DB) domain.EntrantRepository {
	return &entrantRepository{
		DB: db,
	}
}

func (r *entrantRepository) ListByState(ctx context.Context, eventID string, state domain.EntrantState) ([]*domain.Entrant, error) {
	query := `
		SELECT event_id, user_id, first_name, full_name, display_name, state, updated_at
		FROM entrants
		WHERE event_id = $1 AND state = $2
		ORDER BY user_id ASC
	`
	rows, err := r.DB.QueryContext(ctx, query, eventID, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entrants []*domain.Entrant
	for rows.Next() {
		e := &domain.Entrant{}
		var st string
		if err := rows.Scan(&e.EventID, &e.UserID, &e.FirstName, &e.FullName, &e.DisplayName, &st, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.State = domain.EntrantState(st)
		entrants = append(entrants, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if entrants == nil {
		entrants = []*domain.Entrant{}
	}
	return entrants, nil
}

func (r *entrantRepository) CountByState(ctx context.Context, eventID string, state domain.EntrantState) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM entrants
		WHERE event_id = $1 AND state = $2
	`
	var n int
	if err := r.DB.QueryRowContext(ctx, query, eventID, string(state)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CommitSelection is the one read-modify-write transaction of the selection
// flow. The event row lock serializes overlapping selection ticks; the
// fresh Selected count keeps |Selected| within sample_size no matter what
// an earlier read of the event said.
func (r *entrantRepository) CommitSelection(ctx context.Context, eventID string, userIDs []string) ([]string, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin selection tx: %w", err)
	}
	defer tx.Rollback()

	var sampleSize int
	var processed bool
	err = tx.QueryRowContext(ctx, `
		SELECT sample_size, selection_processed
		FROM events
		WHERE id = $1
		FOR UPDATE
	`, eventID).Scan(&sampleSize, &processed)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}
	if processed {
		return nil, domain.ErrAlreadyProcessed
	}

	var selectedCount int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM entrants
		WHERE event_id = $1 AND state = $2
	`, eventID, string(domain.StateSelected)).Scan(&selectedCount)
	if err != nil {
		return nil, fmt.Errorf("count selected: %w", err)
	}

	room := sampleSize - selectedCount
	if room < 0 {
		room = 0
	}
	if len(userIDs) > room {
		userIDs = userIDs[:room]
	}

	var promoted []string
	if len(userIDs) > 0 {
		rows, err := tx.QueryContext(ctx, `
			UPDATE entrants
			SET state = $3, updated_at = NOW()
			WHERE event_id = $1 AND user_id = ANY($2) AND state = $4
			RETURNING user_id
		`, eventID, pq.Array(userIDs), string(domain.StateSelected), string(domain.StateWaitlisted))
		if err != nil {
			return nil, fmt.Errorf("promote entrants: %w", err)
		}
		promoted, err = collectUserIDs(rows)
		if err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE events
		SET selection_processed = TRUE
		WHERE id = $1
	`, eventID); err != nil {
		return nil, fmt.Errorf("mark selection processed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit selection tx: %w", err)
	}
	if promoted == nil {
		promoted = []string{}
	}
	return promoted, nil
}

func (r *entrantRepository) DemoteRemainingWaitlisted(ctx context.Context, eventID string, keep []string) ([]string, error) {
	if keep == nil {
		keep = []string{}
	}
	rows, err := r.DB.QueryContext(ctx, `
		UPDATE entrants
		SET state = $3, updated_at = NOW()
		WHERE event_id = $1 AND state = $4 AND NOT (user_id = ANY($2))
		RETURNING user_id
	`, eventID, pq.Array(keep), string(domain.StateNonSelected), string(domain.StateWaitlisted))
	if err != nil {
		return nil, err
	}
	return collectUserIDs(rows)
}

func (r *entrantRepository) MoveAllByState(ctx context.Context, eventID string, from, to domain.EntrantState) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		UPDATE entrants
		SET state = $3, updated_at = NOW()
		WHERE event_id = $1 AND state = $2
		RETURNING user_id
	`, eventID, string(from), string(to))
	if err != nil {
		return nil, err
	}
	return collectUserIDs(rows)
}

func collectUserIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
