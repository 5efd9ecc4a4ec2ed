package domain

import (
	"context"
)

// PushMessage is one personalized push notification bound for one device.
// The platform hint fields are a contract with the gateway and the mobile
// clients; their values are fixed, not configurable.
type PushMessage struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`

	AndroidPriority  string `json:"android_priority"` // "high"
	AndroidChannelID string `json:"android_channel_id"`
	Sound            string `json:"sound"`
	Badge            int    `json:"badge"`
}

// PushSendResult is the gateway's per-message outcome.
type PushSendResult struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code,omitempty"`
}

// PushBatchResult aggregates one gateway call.
type PushBatchResult struct {
	SuccessCount int
	FailureCount int
	Results      []PushSendResult // index-aligned with the submitted batch
}

// PushSender is the bulk push-notification gateway (infrastructure port).
// SendBatch must be called with at most MaxBatchSize messages; a returned
// error means the whole batch failed in transport.
type PushSender interface {
	SendBatch(ctx context.Context, messages []PushMessage) (*PushBatchResult, error)
	MaxBatchSize() int
}

// PushErrorClass classifies a per-message gateway error code.
type PushErrorClass int

const (
	PushErrorTerminal PushErrorClass = iota
	PushErrorRetryable
	PushErrorInvalidToken
)

// pushErrorClasses is the classification table this pipeline owns. The
// vocabulary is gateway-defined; unknown codes are terminal.
var pushErrorClasses = map[string]PushErrorClass{
	"unavailable":                               PushErrorRetryable,
	"internal":                                  PushErrorRetryable,
	"deadline-exceeded":                         PushErrorRetryable,
	"messaging/server-unavailable":              PushErrorRetryable,
	"messaging/internal-error":                  PushErrorRetryable,
	"unregistered":                              PushErrorInvalidToken,
	"invalid-registration-token":                PushErrorInvalidToken,
	"messaging/registration-token-not-registered": PushErrorInvalidToken,
	"messaging/invalid-registration-token":      PushErrorInvalidToken,
}

// ClassifyPushError maps a gateway error code to its handling class.
func ClassifyPushError(code string) PushErrorClass {
	if class, ok := pushErrorClasses[code]; ok {
		return class
	}
	return PushErrorTerminal
}
