package domain

import "context"

// Mailer sends operator-facing email (infrastructure port). End users never
// receive email from this pipeline; pushes are their only surface.
type Mailer interface {
	Send(ctx context.Context, to, subject, html, text string) error
}

// EmailTemplateRenderer renders email content from a named template with the
// given data.
type EmailTemplateRenderer interface {
	Render(templateName string, data any) (subject, htmlBody, textBody string, err error)
}

// DeliveryFailureAlert holds the data for the digest sent to operators when
// a notification request exhausts its retries.
type DeliveryFailureAlert struct {
	RequestID   string
	EventID     string
	EventTitle  string
	GroupType   string
	RetryCount  int
	FailedUsers []FailedUser
}

// AlertService notifies operators about terminal delivery failures.
type AlertService interface {
	NotifyDeliveryFailure(ctx context.Context, alert *DeliveryFailureAlert)
}
