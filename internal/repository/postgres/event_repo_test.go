package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"eventlottery/internal/domain"
)

var eventColumnNames = []string{
	"id", "title", "organizer_id", "registration_end", "starts_at", "deadline_at", "sample_size",
	"selection_processed", "selection_notification_sent", "sorry_notification_sent", "selection_error",
}

func TestEventRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		want    *domain.Event
		wantErr error
	}{
		{
			name: "success",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT (.+) FROM events`).
					WithArgs("ev-1").
					WillReturnRows(sqlmock.NewRows(eventColumnNames).AddRow(
						"ev-1", "Pottery Class", "org-1", int64(1700000000000), int64(1700003600000),
						int64(1700001800000), 20, false, false, false, nil))
			},
			want: &domain.Event{
				ID:              "ev-1",
				Title:           "Pottery Class",
				OrganizerID:     "org-1",
				RegistrationEnd: 1700000000000,
				StartsAt:        1700003600000,
				DeadlineAt:      1700001800000,
				SampleSize:      20,
			},
		},
		{
			name: "not found",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT (.+) FROM events`).
					WithArgs("ev-1").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			repo := NewEventRepository(db)
			got, err := repo.GetByID(ctx, "ev-1")
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventRepository_ListSelectionPending(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`WHERE selection_processed = FALSE`).
		WillReturnRows(sqlmock.NewRows(eventColumnNames).AddRow(
			"ev-1", "Pottery Class", "org-1", int64(1700000000000), int64(1700003600000),
			int64(0), 20, false, false, false, "earlier failure"))

	repo := NewEventRepository(db)
	events, err := repo.ListSelectionPending(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "earlier failure", events[0].SelectionError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepository_ListStartingBetween(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`WHERE starts_at >= \$1 AND starts_at < \$2`).
		WithArgs(int64(100), int64(200)).
		WillReturnRows(sqlmock.NewRows(eventColumnNames))

	repo := NewEventRepository(db)
	events, err := repo.ListStartingBetween(ctx, 100, 200)
	require.NoError(t, err)
	require.NotNil(t, events)
	require.Empty(t, events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepository_MarkSelectionNotificationSent(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		rows    int64
		wantErr error
	}{
		{name: "success", rows: 1},
		{name: "missing event", rows: 0, wantErr: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectExec(`SET selection_notification_sent = TRUE`).
				WithArgs("ev-1", "boom").
				WillReturnResult(sqlmock.NewResult(0, tt.rows))

			repo := NewEventRepository(db)
			err = repo.MarkSelectionNotificationSent(ctx, "ev-1", "boom")
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventRepository_MarkSorryNotificationSent(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`SET sorry_notification_sent = TRUE`).
		WithArgs("ev-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewEventRepository(db)
	require.NoError(t, repo.MarkSorryNotificationSent(ctx, "ev-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
