package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"eventlottery/internal/domain"
)

const (
	finalStatusSuccess = "success"
	finalStatusFailed  = "failed"
)

type retryService struct {
	requestRepo   domain.NotificationRequestRepository
	userRepo      domain.UserRepository
	engine        *deliveryEngine
	alerts        domain.AlertService
	maxRetries    int
	minRetryDelay time.Duration
	log           *slog.Logger
}

// NewRetryService returns the RetryCoordinator: bounded re-delivery of
// requests whose initial dispatch left retryable failures.
func NewRetryService(
	requestRepo domain.NotificationRequestRepository,
	userRepo domain.UserRepository,
	sender domain.PushSender,
	alerts domain.AlertService,
	maxRetries int,
	minRetryDelay time.Duration,
	log *slog.Logger,
) domain.RetryCoordinator {
	return &retryService{
		requestRepo:   requestRepo,
		userRepo:      userRepo,
		engine:        newDeliveryEngine(userRepo, sender, log),
		alerts:        alerts,
		maxRetries:    maxRetries,
		minRetryDelay: minRetryDelay,
		log:           log,
	}
}

func (s *retryService) Run(ctx context.Context, now time.Time) error {
	reqs, err := s.requestRepo.ListRetryable(ctx)
	if err != nil {
		return fmt.Errorf("list retryable requests: %w", err)
	}
	for _, req := range reqs {
		if err := s.retryRequest(ctx, now, req); err != nil {
			s.log.Error("retry failed for request", "request_id", req.ID, "error", err)
		}
	}
	return nil
}

func (s *retryService) retryRequest(ctx context.Context, now time.Time, req *domain.NotificationRequest) error {
	log := s.log.With("request_id", req.ID)

	if req.RetryCount >= s.maxRetries {
		log.Warn("request exhausted retries", "retry_count", req.RetryCount)
		if err := s.requestRepo.Finalize(ctx, req.ID, finalStatusFailed); err != nil {
			return fmt.Errorf("finalize failed request: %w", err)
		}
		s.notifyFailure(ctx, req)
		return nil
	}
	if req.LastRetryAttempt != nil && now.Sub(*req.LastRetryAttempt) < s.minRetryDelay {
		// Too soon; leave it retryable for a later tick.
		return nil
	}

	targets := failedUserIDs(req)
	if len(targets) == 0 {
		targets = req.UserIDs
	}

	outcome, err := s.engine.deliver(ctx, req, targets)
	if err != nil {
		// The attempt counts even when resolution failed, so a permanently
		// broken request still terminates at maxRetries.
		attemptsLeft := req.RetryCount+1 < s.maxRetries
		log.Error("retry attempt failed before delivery", "error", err)
		recErr := s.requestRepo.RecordRetry(ctx, req.ID, &domain.RetryOutcome{
			FailureCount: len(targets),
			ShouldRetry:  attemptsLeft,
			FinalStatus:  finalStatusUnlessRetrying(attemptsLeft),
			FailedUsers:  req.FailedUsers,
			AttemptedAt:  now,
		})
		if recErr != nil {
			return fmt.Errorf("record failed retry: %w", recErr)
		}
		if !attemptsLeft {
			s.notifyFailure(ctx, req)
		}
		return nil
	}

	if len(outcome.InvalidTokens) > 0 {
		if err := s.userRepo.ClearPushTokens(ctx, outcome.InvalidTokens); err != nil {
			log.Error("failed to clear invalid push tokens", "count", len(outcome.InvalidTokens), "error", err)
		}
	}

	attemptsLeft := req.RetryCount+1 < s.maxRetries
	stillRetryable := len(outcome.Retryable) > 0
	shouldRetry := stillRetryable && attemptsLeft

	var finalStatus string
	if !shouldRetry {
		if outcome.Failed == 0 {
			finalStatus = finalStatusSuccess
		} else {
			finalStatus = finalStatusFailed
		}
	}

	log.Info("retry attempt finished",
		"attempt", req.RetryCount+1,
		"sent", outcome.Sent,
		"failed", outcome.Failed,
		"should_retry", shouldRetry,
		"final_status", finalStatus)

	if err := s.requestRepo.RecordRetry(ctx, req.ID, &domain.RetryOutcome{
		SentCount:    outcome.Sent,
		FailureCount: outcome.Failed,
		ShouldRetry:  shouldRetry,
		FinalStatus:  finalStatus,
		FailedUsers:  outcome.Retryable,
		AttemptedAt:  now,
	}); err != nil {
		return fmt.Errorf("record retry: %w", err)
	}

	if finalStatus == finalStatusFailed {
		failed := *req
		failed.RetryCount = req.RetryCount + 1
		failed.FailedUsers = outcome.Retryable
		s.notifyFailure(ctx, &failed)
	}
	return nil
}

func (s *retryService) notifyFailure(ctx context.Context, req *domain.NotificationRequest) {
	s.alerts.NotifyDeliveryFailure(ctx, &domain.DeliveryFailureAlert{
		RequestID:   req.ID,
		EventID:     req.EventID,
		EventTitle:  req.EventTitle,
		GroupType:   req.GroupType,
		RetryCount:  req.RetryCount,
		FailedUsers: req.FailedUsers,
	})
}

func failedUserIDs(req *domain.NotificationRequest) []string {
	ids := make([]string, 0, len(req.FailedUsers))
	for _, f := range req.FailedUsers {
		ids = append(ids, f.UserID)
	}
	return ids
}

func finalStatusUnlessRetrying(attemptsLeft bool) string {
	if attemptsLeft {
		return ""
	}
	return finalStatusFailed
}
