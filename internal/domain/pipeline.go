package domain

import (
	"context"
	"time"
)

// SelectionEngine runs capacity-bounded random selection for events whose
// registration window has closed.
type SelectionEngine interface {
	Run(ctx context.Context, now time.Time) error
}

// NotificationDispatcher processes one notification request end to end.
type NotificationDispatcher interface {
	ProcessRequest(ctx context.Context, requestID string) error
}

// ExpirySweeper cancels remaining non-selected entrants shortly before an
// event starts and raises the final notification request.
type ExpirySweeper interface {
	Run(ctx context.Context, now time.Time) error
}

// RetryCoordinator re-attempts previously failed deliveries with a bounded
// retry count and a minimum inter-attempt delay.
type RetryCoordinator interface {
	Run(ctx context.Context, now time.Time) error
}
