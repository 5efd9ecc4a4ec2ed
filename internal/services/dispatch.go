package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eventlottery/internal/domain"
)

// claimTTL bounds how long one dispatcher instance owns a request. Long
// enough for the largest send, short enough that a crashed worker's request
// becomes claimable again.
const claimTTL = 5 * time.Minute

type dispatchService struct {
	requestRepo domain.NotificationRequestRepository
	userRepo    domain.UserRepository
	claimer     domain.RequestClaimer
	engine      *deliveryEngine
	log         *slog.Logger
}

// NewDispatchService returns the NotificationDispatcher that performs the
// initial delivery attempt for newly created requests.
func NewDispatchService(
	requestRepo domain.NotificationRequestRepository,
	userRepo domain.UserRepository,
	sender domain.PushSender,
	claimer domain.RequestClaimer,
	log *slog.Logger,
) domain.NotificationDispatcher {
	return &dispatchService{
		requestRepo: requestRepo,
		userRepo:    userRepo,
		claimer:     claimer,
		engine:      newDeliveryEngine(userRepo, sender, log),
		log:         log,
	}
}

func (s *dispatchService) ProcessRequest(ctx context.Context, requestID string) error {
	log := s.log.With("request_id", requestID)

	// The lease closes the window where two deliveries of the same creation
	// trigger both read processed=false. A claim-store outage degrades to
	// the plain processed check rather than stopping dispatch.
	claimed, err := s.claimer.Claim(ctx, requestID, claimTTL)
	if err != nil {
		log.Warn("claim check failed, proceeding on processed flag only", "error", err)
		claimed = false
	} else if !claimed {
		log.Info("request already claimed by another dispatcher")
		return nil
	}

	if err := s.process(ctx, requestID, log); err != nil {
		// No terminal state was recorded, so the caller requeues the ID.
		// Give the lease back first or the requeued attempt would be
		// claim-denied until the ttl expires and then dropped for good.
		if claimed {
			if relErr := s.claimer.Release(ctx, requestID); relErr != nil {
				log.Error("failed to release claim", "error", relErr)
			}
		}
		return err
	}
	return nil
}

func (s *dispatchService) process(ctx context.Context, requestID string, log *slog.Logger) error {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("request vanished before dispatch")
			return nil
		}
		return fmt.Errorf("load request: %w", err)
	}
	if req.Processed {
		log.Info("request already processed, skipping")
		return nil
	}

	if len(req.UserIDs) == 0 {
		log.Warn("request has no recipients, marking processed")
		return s.requestRepo.MarkProcessed(ctx, requestID, &domain.DispatchResult{
			Error: domain.ErrEmptyRecipients.Error(),
		})
	}

	outcome, err := s.engine.deliver(ctx, req, req.UserIDs)
	if err != nil {
		// Never leave the request un-terminated: the retry path, not the
		// error channel, is the recovery mechanism.
		log.Error("dispatch failed before delivery, routing to retry", "error", err)
		return s.requestRepo.MarkProcessed(ctx, requestID, &domain.DispatchResult{
			Error:       err.Error(),
			ShouldRetry: true,
		})
	}

	if len(outcome.InvalidTokens) > 0 {
		if err := s.userRepo.ClearPushTokens(ctx, outcome.InvalidTokens); err != nil {
			log.Error("failed to clear invalid push tokens", "count", len(outcome.InvalidTokens), "error", err)
		}
	}

	log.Info("request dispatched",
		"group_type", req.GroupType,
		"sent", outcome.Sent,
		"failed", outcome.Failed,
		"without_tokens", outcome.WithoutTokens,
		"preference_skipped", outcome.SkippedDisabled,
		"retryable", len(outcome.Retryable))

	return s.requestRepo.MarkProcessed(ctx, requestID, &domain.DispatchResult{
		SentCount:          outcome.Sent,
		FailureCount:       outcome.Failed,
		UsersWithoutTokens: outcome.WithoutTokens,
		ShouldRetry:        len(outcome.Retryable) > 0,
		FailedUsers:        outcome.Retryable,
	})
}
