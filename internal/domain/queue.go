package domain

import (
	"context"
	"time"
)

// DispatchQueue carries newly created notification request IDs to the
// dispatcher. Delivery is at-least-once; the claim lease and the processed
// flag make processing effectively once.
type DispatchQueue interface {
	Publish(ctx context.Context, requestID string) error

	// Receive blocks up to timeout for the next request ID. It returns
	// ("", nil) when the timeout elapses with nothing queued.
	Receive(ctx context.Context, timeout time.Duration) (string, error)
}

// RequestClaimer hands out short-lived processing leases so two dispatcher
// instances racing on the same request ID cannot both deliver it.
type RequestClaimer interface {
	// Claim returns true when the caller now owns the request for ttl.
	Claim(ctx context.Context, requestID string, ttl time.Duration) (bool, error)

	// Release gives a claim back before its ttl expires. Used when
	// processing fails without reaching a terminal state, so the requeued
	// request is not locked out of its next attempt.
	Release(ctx context.Context, requestID string) error
}
