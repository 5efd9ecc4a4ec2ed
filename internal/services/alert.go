package services

import (
	"context"
	"log/slog"

	"eventlottery/internal/domain"
)

type alertService struct {
	mailer   domain.Mailer
	renderer domain.EmailTemplateRenderer
	to       string
	log      *slog.Logger
}

// NewAlertService returns the AlertService that emails operators when a
// notification request fails terminally. With an empty recipient address it
// only logs.
func NewAlertService(mailer domain.Mailer, renderer domain.EmailTemplateRenderer, to string, log *slog.Logger) domain.AlertService {
	return &alertService{
		mailer:   mailer,
		renderer: renderer,
		to:       to,
		log:      log,
	}
}

func (s *alertService) NotifyDeliveryFailure(ctx context.Context, alert *domain.DeliveryFailureAlert) {
	log := s.log.With("request_id", alert.RequestID, "event_id", alert.EventID)
	log.Warn("notification request failed terminally",
		"group_type", alert.GroupType,
		"retry_count", alert.RetryCount,
		"failed_users", len(alert.FailedUsers))

	if s.to == "" {
		return
	}
	subject, html, text, err := s.renderer.Render("delivery_failure", alert)
	if err != nil {
		log.Error("failed to render delivery failure alert", "error", err)
		return
	}
	// Alert failures never propagate; the log line above is the floor.
	if err := s.mailer.Send(ctx, s.to, subject, html, text); err != nil {
		log.Error("failed to send delivery failure alert", "error", err)
	}
}
