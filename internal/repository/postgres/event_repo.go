package postgres

import (
	"context"
	"database/sql"
	"errors"

	"eventlottery/internal/domain"
)

type eventRepository struct {
	DB *sql.DB
}

func NewEventRepository(db *sql.DB) domain.EventRepository {
	return &eventRepository{
		DB: db,
	}
}

const eventColumns = `id, title, organizer_id, registration_end, starts_at, deadline_at, sample_size,
		selection_processed, selection_notification_sent, sorry_notification_sent, selection_error`

func scanEvent(row interface{ Scan(...any) error }) (*domain.Event, error) {
	ev := &domain.Event{}
	var selectionErr sql.NullString
	err := row.Scan(&ev.ID, &ev.Title, &ev.OrganizerID, &ev.RegistrationEnd, &ev.StartsAt,
		&ev.DeadlineAt, &ev.SampleSize, &ev.SelectionProcessed, &ev.SelectionNotificationSent,
		&ev.SorryNotificationSent, &selectionErr)
	if err != nil {
		return nil, err
	}
	ev.SelectionError = selectionErr.String
	return ev, nil
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE id = $1
	`
	ev, err := scanEvent(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return ev, nil
}

func (r *eventRepository) ListSelectionPending(ctx context.Context) ([]*domain.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE selection_processed = FALSE
		ORDER BY registration_end ASC
	`
	return r.queryEvents(ctx, query)
}

func (r *eventRepository) ListStartingBetween(ctx context.Context, from, to int64) ([]*domain.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE starts_at >= $1 AND starts_at < $2 AND sorry_notification_sent = FALSE
		ORDER BY starts_at ASC
	`
	return r.queryEvents(ctx, query, from, to)
}

func (r *eventRepository) queryEvents(ctx context.Context, query string, args ...any) ([]*domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if events == nil {
		events = []*domain.Event{}
	}
	return events, nil
}

func (r *eventRepository) MarkSelectionProcessed(ctx context.Context, eventID string) error {
	query := `
		UPDATE events
		SET selection_processed = TRUE
		WHERE id = $1
	`
	return r.exec(ctx, query, eventID)
}

func (r *eventRepository) MarkSelectionNotificationSent(ctx context.Context, eventID string, selectionErr string) error {
	query := `
		UPDATE events
		SET selection_notification_sent = TRUE,
		    selection_error = NULLIF($2, '')
		WHERE id = $1
	`
	return r.exec(ctx, query, eventID, selectionErr)
}

func (r *eventRepository) MarkSorryNotificationSent(ctx context.Context, eventID string) error {
	query := `
		UPDATE events
		SET sorry_notification_sent = TRUE
		WHERE id = $1
	`
	return r.exec(ctx, query, eventID)
}

func (r *eventRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
