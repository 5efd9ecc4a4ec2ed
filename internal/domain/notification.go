package domain

import (
	"context"
	"time"
)

// Group types carried on a notification request. The dispatcher uses them to
// pick the per-user preference that gates delivery.
const (
	GroupTypeSelection   = "selection"
	GroupTypeSelected    = "selected"
	GroupTypeSorry       = "sorry"
	GroupTypeNonSelected = "nonSelected"
	GroupTypeGeneral     = "general"
)

// FailedUser records a single per-user delivery failure on a request.
type FailedUser struct {
	UserID    string `json:"userId"`
	ErrorCode string `json:"errorCode"`
}

// NotificationRequest is a persisted unit of work describing one batch push
// send. Created by the selection engine or the expiry sweeper; the dispatcher
// and the retry coordinator write the outcome fields back onto it.
type NotificationRequest struct {
	ID         string   `json:"id"`
	EventID    string   `json:"event_id"`
	EventTitle string   `json:"event_title"`
	UserIDs    []string `json:"user_ids"`
	GroupType  string   `json:"group_type"`
	Title      string   `json:"title"`
	Message    string   `json:"message"`
	Status     string   `json:"status"`
	CreatedAt  int64    `json:"created_at"` // epoch ms

	// Outcome of the initial dispatch. Processed goes false -> true exactly
	// once; ShouldRetry may re-open delivery attempts without resetting it.
	Processed          bool   `json:"processed"`
	Error              string `json:"error,omitempty"`
	SentCount          int    `json:"sent_count"`
	FailureCount       int    `json:"failure_count"`
	UsersWithoutTokens int    `json:"users_without_tokens"`

	// Retry bookkeeping, owned by the retry coordinator.
	ShouldRetry      bool         `json:"should_retry"`
	RetryCount       int          `json:"retry_count"`
	LastRetryAttempt *time.Time   `json:"last_retry_attempt,omitempty"`
	FinalStatus      string       `json:"final_status,omitempty"` // "success" or "failed"
	FailedUsers      []FailedUser `json:"failed_users,omitempty"`
}

// DispatchResult is what a delivery attempt writes back onto the request.
type DispatchResult struct {
	SentCount          int
	FailureCount       int
	UsersWithoutTokens int
	Error              string
	ShouldRetry        bool
	FailedUsers        []FailedUser
}

// RetryOutcome is the bookkeeping update after one retry attempt.
type RetryOutcome struct {
	SentCount    int
	FailureCount int
	ShouldRetry  bool
	FinalStatus  string // set only when ShouldRetry flips to false
	FailedUsers  []FailedUser
	AttemptedAt  time.Time
}

// NotificationRequestRepository defines storage operations for requests.
type NotificationRequestRepository interface {
	Create(ctx context.Context, req *NotificationRequest) error
	GetByID(ctx context.Context, id string) (*NotificationRequest, error)

	// ListRetryable returns requests with processed=true and should_retry=true.
	ListRetryable(ctx context.Context) ([]*NotificationRequest, error)

	// MarkProcessed records the initial dispatch outcome and flips processed
	// to true. It never unsets processed.
	MarkProcessed(ctx context.Context, id string, result *DispatchResult) error

	// RecordRetry increments retry_count and stamps last_retry_attempt.
	// SentCount adds to the running total of deliveries; FailureCount
	// replaces the previous value, since only the still-failing remainder
	// is meaningful after a partial recovery.
	RecordRetry(ctx context.Context, id string, outcome *RetryOutcome) error

	// Finalize clears should_retry and records the terminal status without
	// counting a delivery attempt.
	Finalize(ctx context.Context, id string, finalStatus string) error
}
