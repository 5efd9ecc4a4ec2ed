package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"eventlottery/internal/domain"
)

type notificationRequestRepository struct {
	DB *sql.DB
}

func NewNotificationRequestRepository(db *sql.DB) domain.NotificationRequestRepository {
	return &notificationRequestRepository{
		DB: db,
	}
}

func (r *notificationRequestRepository) Create(ctx context.Context, req *domain.NotificationRequest) error {
	query := `
		INSERT INTO notification_requests
			(id, event_id, event_title, user_ids, group_type, title, message, status, created_at, processed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)
	`
	_, err := r.DB.ExecContext(ctx, query, req.ID, req.EventID, req.EventTitle,
		pq.Array(req.UserIDs), req.GroupType, req.Title, req.Message, req.Status, req.CreatedAt)
	return err
}

const requestColumns = `id, event_id, event_title, user_ids, group_type, title, message, status,
		created_at, processed, COALESCE(error, ''), sent_count, failure_count, users_without_tokens,
		should_retry, retry_count, last_retry_attempt, COALESCE(final_status, ''), failed_users`

func (r *notificationRequestRepository) GetByID(ctx context.Context, id string) (*domain.NotificationRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM notification_requests
		WHERE id = $1
	`
	req, err := scanRequest(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

func (r *notificationRequestRepository) ListRetryable(ctx context.Context) ([]*domain.NotificationRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM notification_requests
		WHERE processed = TRUE AND should_retry = TRUE
		ORDER BY created_at ASC
	`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []*domain.NotificationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if reqs == nil {
		reqs = []*domain.NotificationRequest{}
	}
	return reqs, nil
}

func (r *notificationRequestRepository) MarkProcessed(ctx context.Context, id string, result *domain.DispatchResult) error {
	failedUsers, err := marshalFailedUsers(result.FailedUsers)
	if err != nil {
		return err
	}
	query := `
		UPDATE notification_requests
		SET processed = TRUE,
		    error = NULLIF($2, ''),
		    sent_count = $3,
		    failure_count = $4,
		    users_without_tokens = $5,
		    should_retry = $6,
		    failed_users = $7
		WHERE id = $1
	`
	res, err := r.DB.ExecContext(ctx, query, id, result.Error, result.SentCount,
		result.FailureCount, result.UsersWithoutTokens, result.ShouldRetry, failedUsers)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *notificationRequestRepository) RecordRetry(ctx context.Context, id string, outcome *domain.RetryOutcome) error {
	failedUsers, err := marshalFailedUsers(outcome.FailedUsers)
	if err != nil {
		return err
	}
	query := `
		UPDATE notification_requests
		SET retry_count = retry_count + 1,
		    last_retry_attempt = $2,
		    sent_count = sent_count + $3,
		    failure_count = $4,
		    should_retry = $5,
		    final_status = NULLIF($6, ''),
		    failed_users = $7
		WHERE id = $1
	`
	res, err := r.DB.ExecContext(ctx, query, id, outcome.AttemptedAt, outcome.SentCount,
		outcome.FailureCount, outcome.ShouldRetry, outcome.FinalStatus, failedUsers)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *notificationRequestRepository) Finalize(ctx context.Context, id string, finalStatus string) error {
	query := `
		UPDATE notification_requests
		SET should_retry = FALSE,
		    final_status = NULLIF($2, '')
		WHERE id = $1
	`
	res, err := r.DB.ExecContext(ctx, query, id, finalStatus)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanRequest(row interface{ Scan(...any) error }) (*domain.NotificationRequest, error) {
	req := &domain.NotificationRequest{}
	var userIDs pq.StringArray
	var lastRetry sql.NullTime
	var failedUsers []byte
	err := row.Scan(&req.ID, &req.EventID, &req.EventTitle, &userIDs, &req.GroupType,
		&req.Title, &req.Message, &req.Status, &req.CreatedAt, &req.Processed, &req.Error,
		&req.SentCount, &req.FailureCount, &req.UsersWithoutTokens, &req.ShouldRetry,
		&req.RetryCount, &lastRetry, &req.FinalStatus, &failedUsers)
	if err != nil {
		return nil, err
	}
	req.UserIDs = []string(userIDs)
	if lastRetry.Valid {
		t := lastRetry.Time
		req.LastRetryAttempt = &t
	}
	if len(failedUsers) > 0 {
		if err := json.Unmarshal(failedUsers, &req.FailedUsers); err != nil {
			return nil, fmt.Errorf("decode failed_users: %w", err)
		}
	}
	return req, nil
}

func marshalFailedUsers(users []domain.FailedUser) ([]byte, error) {
	if users == nil {
		users = []domain.FailedUser{}
	}
	b, err := json.Marshal(users)
	if err != nil {
		return nil, fmt.Errorf("encode failed_users: %w", err)
	}
	return b, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
