package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"eventlottery/internal/domain"
)

type userRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) domain.UserRepository {
	return &userRepository{
		DB: db,
	}
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.UserProfile, error) {
	users := make(map[string]*domain.UserProfile, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	query := `
		SELECT id, COALESCE(first_name, ''), COALESCE(full_name, ''), COALESCE(display_name, ''),
		       COALESCE(push_token, ''), notifications_enabled, pref_invited, pref_not_invited
		FROM users
		WHERE id = ANY($1)
	`
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		u := &domain.UserProfile{}
		var enabled, invited, notInvited sql.NullString
		if err := rows.Scan(&u.ID, &u.FirstName, &u.FullName, &u.DisplayName,
			&u.PushToken, &enabled, &invited, &notInvited); err != nil {
			return nil, err
		}
		// Preference columns hold whatever the clients wrote (booleans,
		// strings, nothing). They are normalized here, once.
		u.NotificationsEnabled = domain.ParsePreference(enabled.String)
		u.PrefInvited = domain.ParsePreference(invited.String)
		u.PrefNotInvited = domain.ParsePreference(notInvited.String)
		users[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) ClearPushTokens(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	query := `
		UPDATE users
		SET push_token = NULL
		WHERE id = ANY($1)
	`
	_, err := r.DB.ExecContext(ctx, query, pq.Array(userIDs))
	return err
}
