package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"eventlottery/internal/domain"
)

func TestUserRepository_GetByIDs(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"id", "first_name", "full_name", "display_name",
		"push_token", "notifications_enabled", "pref_invited", "pref_not_invited",
	}).
		AddRow("u-1", "Anna", "Anna Smith", "", "tok-1", "true", nil, "false").
		AddRow("u-2", "", "", "bo", "", nil, "yes", "garbage")
	mock.ExpectQuery(`WHERE id = ANY\(\$1\)`).
		WithArgs(pq.Array([]string{"u-1", "u-2", "ghost"})).
		WillReturnRows(rows)

	repo := NewUserRepository(db)
	users, err := repo.GetByIDs(ctx, []string{"u-1", "u-2", "ghost"})
	require.NoError(t, err)
	require.Len(t, users, 2)

	u1 := users["u-1"]
	require.Equal(t, "tok-1", u1.PushToken)
	require.Equal(t, domain.PreferenceEnabled, u1.NotificationsEnabled)
	require.Equal(t, domain.PreferenceUnset, u1.PrefInvited)
	require.Equal(t, domain.PreferenceDisabled, u1.PrefNotInvited)

	u2 := users["u-2"]
	require.Empty(t, u2.PushToken)
	require.Equal(t, domain.PreferenceUnset, u2.NotificationsEnabled)
	require.Equal(t, domain.PreferenceEnabled, u2.PrefInvited)
	require.Equal(t, domain.PreferenceDisabled, u2.PrefNotInvited)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByIDs_EmptyInputSkipsQuery(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepository(db)
	users, err := repo.GetByIDs(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, users)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ClearPushTokens(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`SET push_token = NULL`).
		WithArgs(pq.Array([]string{"u-1", "u-2"})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	repo := NewUserRepository(db)
	require.NoError(t, repo.ClearPushTokens(ctx, []string{"u-1", "u-2"}))
	require.NoError(t, mock.ExpectationsWereMet())
}
