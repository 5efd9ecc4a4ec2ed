package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"eventlottery/internal/domain"
)

const organizerFallback = "system"

type selectionService struct {
	eventRepo      domain.EventRepository
	entrantRepo    domain.EntrantRepository
	invitationRepo domain.InvitationRepository
	requestRepo    domain.NotificationRequestRepository
	queue          domain.DispatchQueue
	invitationTTL  time.Duration
	log            *slog.Logger
}

// NewSelectionService returns the SelectionEngine that moves waitlisted
// entrants into Selected/NonSelected once an event's registration closes.
func NewSelectionService(
	eventRepo domain.EventRepository,
	entrantRepo domain.EntrantRepository,
	invitationRepo domain.InvitationRepository,
	requestRepo domain.NotificationRequestRepository,
	queue domain.DispatchQueue,
	invitationTTL time.Duration,
	log *slog.Logger,
) domain.SelectionEngine {
	return &selectionService{
		eventRepo:      eventRepo,
		entrantRepo:    entrantRepo,
		invitationRepo: invitationRepo,
		requestRepo:    requestRepo,
		queue:          queue,
		invitationTTL:  invitationTTL,
		log:            log,
	}
}

func (s *selectionService) Run(ctx context.Context, now time.Time) error {
	events, err := s.eventRepo.ListSelectionPending(ctx)
	if err != nil {
		return fmt.Errorf("list selection-pending events: %w", err)
	}
	for _, ev := range events {
		// One event's failure must not abort the rest of the tick; the
		// monotonic flags make the next tick pick up where this one stopped.
		if err := s.processEvent(ctx, now, ev); err != nil {
			s.log.Error("selection failed for event", "event_id", ev.ID, "error", err)
		}
	}
	return nil
}

func (s *selectionService) processEvent(ctx context.Context, now time.Time, ev *domain.Event) error {
	nowMs := now.UnixMilli()
	log := s.log.With("event_id", ev.ID)

	if ev.SelectionProcessed || ev.SelectionNotificationSent {
		return nil
	}
	if ev.RegistrationEnd <= 0 {
		log.Debug("skipping event with invalid registration end")
		return nil
	}
	if ev.RegistrationEnd > nowMs {
		return nil
	}
	if ev.StartsAt > 0 && nowMs >= ev.StartsAt {
		log.Debug("skipping event that already started")
		return nil
	}

	// An existing NonSelected pool means a prior round already ran and the
	// organizer-driven replacement flow is now authoritative. Leave the
	// processed flag alone so nothing here competes with it.
	nonSelected, err := s.entrantRepo.CountByState(ctx, ev.ID, domain.StateNonSelected)
	if err != nil {
		return fmt.Errorf("count non-selected: %w", err)
	}
	if nonSelected > 0 {
		log.Info("skipping automatic selection, replacement flow is authoritative", "non_selected", nonSelected)
		return nil
	}

	if ev.SampleSize <= 0 {
		log.Info("event has no capacity, marking selection processed", "sample_size", ev.SampleSize)
		return s.eventRepo.MarkSelectionProcessed(ctx, ev.ID)
	}

	selectedCount, err := s.entrantRepo.CountByState(ctx, ev.ID, domain.StateSelected)
	if err != nil {
		return fmt.Errorf("count selected: %w", err)
	}
	availableSpots := ev.SampleSize - selectedCount
	if availableSpots <= 0 {
		log.Info("event already at capacity, marking selection processed", "selected", selectedCount)
		return s.eventRepo.MarkSelectionProcessed(ctx, ev.ID)
	}

	waitlisted, err := s.entrantRepo.ListByState(ctx, ev.ID, domain.StateWaitlisted)
	if err != nil {
		return fmt.Errorf("list waitlisted: %w", err)
	}
	if len(waitlisted) == 0 {
		log.Info("no waitlisted entrants, marking selection processed")
		return s.eventRepo.MarkSelectionProcessed(ctx, ev.ID)
	}

	picked := pickRandom(waitlisted, min(availableSpots, len(waitlisted)))

	// CommitSelection re-checks the flag and re-counts Selected under the
	// event row lock, so an overlapping tick can neither double-select nor
	// push the pool past sample size.
	promoted, err := s.entrantRepo.CommitSelection(ctx, ev.ID, picked)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			log.Info("selection already committed by a concurrent run")
			return nil
		}
		return fmt.Errorf("commit selection: %w", err)
	}
	log.Info("selection committed", "picked", len(picked), "promoted", len(promoted), "waitlisted", len(waitlisted))

	if len(promoted) == 0 {
		// A concurrent run filled the capacity between our count and the
		// commit. The flag is set; leave the waitlist to the replacement flow.
		return nil
	}

	// Re-read the Selected pool for the authoritative membership and only
	// invite users confirmed present in it.
	confirmed, err := s.confirmSelected(ctx, ev.ID, promoted)
	if err != nil {
		return fmt.Errorf("confirm selected: %w", err)
	}

	expiresAt := ev.DeadlineAt
	if expiresAt <= 0 {
		expiresAt = nowMs + s.invitationTTL.Milliseconds()
	}
	organizerID := ev.OrganizerID
	if organizerID == "" {
		organizerID = organizerFallback
	}
	invitations := make([]*domain.Invitation, 0, len(confirmed))
	for _, userID := range confirmed {
		invitations = append(invitations, domain.NewInvitation(
			uuid.NewString(), ev.ID, userID, organizerID, nowMs, expiresAt))
	}
	if err := s.invitationRepo.CreateBatch(ctx, invitations); err != nil {
		return fmt.Errorf("create invitations: %w", err)
	}

	// The flag is set even when request creation fails: a crashing loop of
	// re-sends would be worse than one lost notification, so the error is
	// recorded on the event instead.
	var selectionErr string
	if err := s.createSelectionRequest(ctx, ev, confirmed, nowMs, expiresAt); err != nil {
		log.Error("failed to create selection notification request", "error", err)
		selectionErr = err.Error()
	}
	if err := s.eventRepo.MarkSelectionNotificationSent(ctx, ev.ID, selectionErr); err != nil {
		return fmt.Errorf("mark selection notification sent: %w", err)
	}

	demoted, err := s.entrantRepo.DemoteRemainingWaitlisted(ctx, ev.ID, promoted)
	if err != nil {
		return fmt.Errorf("demote remaining waitlisted: %w", err)
	}
	log.Info("selection finished", "invited", len(confirmed), "demoted", len(demoted))
	return nil
}

func (s *selectionService) confirmSelected(ctx context.Context, eventID string, promoted []string) ([]string, error) {
	selected, err := s.entrantRepo.ListByState(ctx, eventID, domain.StateSelected)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(selected))
	for _, e := range selected {
		present[e.UserID] = true
	}
	confirmed := make([]string, 0, len(promoted))
	for _, id := range promoted {
		if present[id] {
			confirmed = append(confirmed, id)
		}
	}
	return confirmed, nil
}

func (s *selectionService) createSelectionRequest(ctx context.Context, ev *domain.Event, userIDs []string, nowMs, deadlineMs int64) error {
	title := ev.Title
	if title == "" {
		title = "Event"
	}
	deadline := time.UnixMilli(deadlineMs).Format("Jan 2, 2006 3:04 PM MST")
	req := &domain.NotificationRequest{
		ID:         uuid.NewString(),
		EventID:    ev.ID,
		EventTitle: title,
		UserIDs:    userIDs,
		GroupType:  domain.GroupTypeSelection,
		Title:      "You've been selected! 🎉",
		Message: fmt.Sprintf(
			"Congratulations! You've been selected for %s. Please check your invitations to accept or decline. Deadline to respond: %s",
			title, deadline),
		Status:    "PENDING",
		CreatedAt: nowMs,
	}
	if err := s.requestRepo.Create(ctx, req); err != nil {
		return err
	}
	if err := s.queue.Publish(ctx, req.ID); err != nil {
		// The request row exists; an operator can re-enqueue it.
		s.log.Error("failed to enqueue notification request", "request_id", req.ID, "error", err)
	}
	return nil
}

// pickRandom takes n entrants uniformly at random, by user ID. A full
// Fisher-Yates shuffle of a copy keeps the pick unbiased with respect to
// store document order.
func pickRandom(entrants []*domain.Entrant, n int) []string {
	ids := make([]string, len(entrants))
	for i, e := range entrants {
		ids[i] = e.UserID
	}
	rand.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
	return ids[:n]
}
