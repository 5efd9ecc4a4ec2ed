package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"eventlottery/internal/domain"
)

type sweepService struct {
	eventRepo   domain.EventRepository
	entrantRepo domain.EntrantRepository
	requestRepo domain.NotificationRequestRepository
	queue       domain.DispatchQueue
	interval    time.Duration
	log         *slog.Logger
}

// NewSweepService returns the ExpirySweeper. interval must equal the cadence
// it runs at: the forward-looking window [now+interval, now+2*interval) is
// what keeps an event from being swept twice.
func NewSweepService(
	eventRepo domain.EventRepository,
	entrantRepo domain.EntrantRepository,
	requestRepo domain.NotificationRequestRepository,
	queue domain.DispatchQueue,
	interval time.Duration,
	log *slog.Logger,
) domain.ExpirySweeper {
	return &sweepService{
		eventRepo:   eventRepo,
		entrantRepo: entrantRepo,
		requestRepo: requestRepo,
		queue:       queue,
		interval:    interval,
		log:         log,
	}
}

func (s *sweepService) Run(ctx context.Context, now time.Time) error {
	from := now.Add(s.interval).UnixMilli()
	to := now.Add(2 * s.interval).UnixMilli()

	events, err := s.eventRepo.ListStartingBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("list events starting between %d and %d: %w", from, to, err)
	}
	for _, ev := range events {
		if err := s.sweepEvent(ctx, now, ev); err != nil {
			s.log.Error("sweep failed for event", "event_id", ev.ID, "error", err)
		}
	}
	return nil
}

func (s *sweepService) sweepEvent(ctx context.Context, now time.Time, ev *domain.Event) error {
	log := s.log.With("event_id", ev.ID)
	if ev.SorryNotificationSent {
		return nil
	}

	moved, err := s.entrantRepo.MoveAllByState(ctx, ev.ID, domain.StateNonSelected, domain.StateCancelled)
	if err != nil {
		return fmt.Errorf("cancel non-selected entrants: %w", err)
	}
	if len(moved) == 0 {
		// Nothing to notify; flip the flag so the event is never re-checked.
		log.Info("no non-selected entrants to sweep, marking sent")
		return s.eventRepo.MarkSorryNotificationSent(ctx, ev.ID)
	}

	title := ev.Title
	if title == "" {
		title = "Event"
	}
	req := &domain.NotificationRequest{
		ID:         uuid.NewString(),
		EventID:    ev.ID,
		EventTitle: title,
		UserIDs:    moved,
		GroupType:  domain.GroupTypeSorry,
		Title:      fmt.Sprintf("Selection Complete: %s", title),
		Message: fmt.Sprintf(
			"Thank you for your interest in %q. The selection process has been completed automatically. We appreciate your participation and hope to see you at future events!",
			title),
		Status:    "PENDING",
		CreatedAt: now.UnixMilli(),
	}
	if err := s.requestRepo.Create(ctx, req); err != nil {
		return fmt.Errorf("create sorry notification request: %w", err)
	}
	if err := s.queue.Publish(ctx, req.ID); err != nil {
		s.log.Error("failed to enqueue notification request", "request_id", req.ID, "error", err)
	}

	if err := s.eventRepo.MarkSorryNotificationSent(ctx, ev.ID); err != nil {
		return fmt.Errorf("mark sorry notification sent: %w", err)
	}
	log.Info("sweep finished", "cancelled", len(moved))
	return nil
}
