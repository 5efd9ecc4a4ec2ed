package services

import (
	"context"
	"fmt"
	"log/slog"

	"eventlottery/internal/domain"
)

// Platform hints fixed by the contract with the mobile clients.
const (
	androidPriorityHigh = "high"
	androidChannelID    = "event_invitations"
	soundDefault        = "default"
	clickAction         = "FLUTTER_NOTIFICATION_CLICK"

	// transportErrorCode marks messages whose whole batch failed before
	// per-message results existed. Always treated as retryable.
	transportErrorCode = "transport-error"
)

// deliveryOutcome is what one delivery attempt produced.
type deliveryOutcome struct {
	Sent            int
	Failed          int
	WithoutTokens   int
	Retryable       []domain.FailedUser
	InvalidTokens   []string // user IDs whose tokens the gateway rejected
	SkippedDisabled int
}

// deliveryEngine is the delivery core shared by the dispatcher and the retry
// coordinator: resolve profiles, filter by preference, personalize, send in
// gateway-bounded batches and classify failures.
type deliveryEngine struct {
	userRepo domain.UserRepository
	sender   domain.PushSender
	log      *slog.Logger
}

func newDeliveryEngine(userRepo domain.UserRepository, sender domain.PushSender, log *slog.Logger) *deliveryEngine {
	return &deliveryEngine{
		userRepo: userRepo,
		sender:   sender,
		log:      log,
	}
}

// deliver sends the request's message to the given recipients. The returned
// error covers only failures before any send was attempted (profile
// resolution); send failures are classified into the outcome instead.
func (e *deliveryEngine) deliver(ctx context.Context, req *domain.NotificationRequest, userIDs []string) (*deliveryOutcome, error) {
	users, err := e.userRepo.GetByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}

	title := req.Title
	if title == "" {
		title = defaultTitle
	}

	outcome := &deliveryOutcome{}
	var messages []domain.PushMessage
	var recipients []string // user ID per message, index-aligned
	for _, id := range userIDs {
		u, ok := users[id]
		if !ok || u.PushToken == "" {
			outcome.WithoutTokens++
			continue
		}
		if !u.NotificationsEnabled.Bool() || !groupPreferenceAllows(req.GroupType, u) {
			outcome.SkippedDisabled++
			continue
		}

		body := personalizeMessage(req.Message, firstNameOf(u))
		messages = append(messages, domain.PushMessage{
			Token: u.PushToken,
			Title: title,
			Body:  body,
			Data: map[string]string{
				"type":         groupTypeOrGeneral(req.GroupType),
				"eventId":      req.EventID,
				"eventTitle":   eventTitleOrDefault(req.EventTitle),
				"title":        title,
				"message":      body,
				"click_action": clickAction,
			},
			AndroidPriority:  androidPriorityHigh,
			AndroidChannelID: androidChannelID,
			Sound:            soundDefault,
			Badge:            1,
		})
		recipients = append(recipients, id)
	}

	batchSize := e.sender.MaxBatchSize()
	for start := 0; start < len(messages); start += batchSize {
		end := start + batchSize
		if end > len(messages) {
			end = len(messages)
		}
		batch := messages[start:end]

		result, err := e.sender.SendBatch(ctx, batch)
		if err != nil {
			// The whole batch failed in transport; every message in it is
			// failed and queued for retry.
			e.log.Error("push batch send failed", "request_id", req.ID, "batch_size", len(batch), "error", err)
			outcome.Failed += len(batch)
			for _, userID := range recipients[start:end] {
				outcome.Retryable = append(outcome.Retryable, domain.FailedUser{
					UserID:    userID,
					ErrorCode: transportErrorCode,
				})
			}
			continue
		}

		outcome.Sent += result.SuccessCount
		outcome.Failed += result.FailureCount
		for i, r := range result.Results {
			if r.Success {
				continue
			}
			userID := recipients[start+i]
			switch domain.ClassifyPushError(r.ErrorCode) {
			case domain.PushErrorRetryable:
				outcome.Retryable = append(outcome.Retryable, domain.FailedUser{
					UserID:    userID,
					ErrorCode: r.ErrorCode,
				})
			case domain.PushErrorInvalidToken:
				outcome.InvalidTokens = append(outcome.InvalidTokens, userID)
			default:
				e.log.Warn("terminal push failure", "request_id", req.ID, "user_id", userID, "code", r.ErrorCode)
			}
		}
	}

	return outcome, nil
}

// groupPreferenceAllows applies the group-type-specific preference. Unset
// preferences default to enabled; group types outside the invited/not-invited
// pairs skip the check entirely.
func groupPreferenceAllows(groupType string, u *domain.UserProfile) bool {
	switch groupType {
	case domain.GroupTypeSelection, domain.GroupTypeSelected:
		return u.PrefInvited.Bool()
	case domain.GroupTypeSorry, domain.GroupTypeNonSelected:
		return u.PrefNotInvited.Bool()
	default:
		return true
	}
}

func groupTypeOrGeneral(groupType string) string {
	if groupType == "" {
		return domain.GroupTypeGeneral
	}
	return groupType
}

func eventTitleOrDefault(title string) string {
	if title == "" {
		return "Event"
	}
	return title
}
