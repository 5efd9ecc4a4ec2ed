package push

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"eventlottery/internal/domain"
)

const defaultBatchSize = 500

// Config holds configuration for creating a push sender.
type Config struct {
	Provider       string // "http" or "noop"
	GatewayURL     string
	TokenURL       string
	ServiceAccount string
	PrivateKeyPEM  string
	BatchSize      int
}

// NewSender creates a push sender from config. Provider "http" talks to the
// bulk gateway over HTTPS with service-account auth; "noop" or unknown logs
// and reports every message as sent.
func NewSender(cfg Config, log *slog.Logger) (domain.PushSender, error) {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	switch cfg.Provider {
	case "http":
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse push gateway private key: %w", err)
		}
		return &httpSender{
			gatewayURL:     cfg.GatewayURL,
			tokenURL:       cfg.TokenURL,
			serviceAccount: cfg.ServiceAccount,
			key:            key,
			batchSize:      batchSize,
			client:         &http.Client{Timeout: 30 * time.Second},
			log:            log,
		}, nil
	case "noop":
		return &noopSender{batchSize: batchSize, log: log}, nil
	default:
		log.Warn("unknown push provider, using noop", "provider", cfg.Provider)
		return &noopSender{batchSize: batchSize, log: log}, nil
	}
}

type httpSender struct {
	gatewayURL     string
	tokenURL       string
	serviceAccount string
	key            *rsa.PrivateKey
	batchSize      int
	client         *http.Client
	log            *slog.Logger

	mu          sync.Mutex
	bearer      string
	bearerUntil time.Time
}

func (s *httpSender) MaxBatchSize() int {
	return s.batchSize
}

// wireMessage is the gateway's message envelope. The platform hint blocks
// are part of the contract with the mobile clients.
type wireMessage struct {
	Token        string            `json:"token"`
	Notification wireNotification  `json:"notification"`
	Data         map[string]string `json:"data"`
	Android      wireAndroid       `json:"android"`
	APNS         wireAPNS          `json:"apns"`
}

type wireNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type wireAndroid struct {
	Priority     string           `json:"priority"`
	Notification wireAndroidNotif `json:"notification"`
}

type wireAndroidNotif struct {
	ChannelID string `json:"channelId"`
	Sound     string `json:"sound"`
	Priority  string `json:"priority"`
}

type wireAPNS struct {
	Payload wireAPNSPayload `json:"payload"`
}

type wireAPNSPayload struct {
	APS wireAPS `json:"aps"`
}

type wireAPS struct {
	Sound string `json:"sound"`
	Badge int    `json:"badge"`
}

type wireResponse struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
	Responses    []struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

func (s *httpSender) SendBatch(ctx context.Context, messages []domain.PushMessage) (*domain.PushBatchResult, error) {
	if len(messages) == 0 {
		return &domain.PushBatchResult{}, nil
	}
	if len(messages) > s.batchSize {
		return nil, fmt.Errorf("batch of %d exceeds gateway limit %d", len(messages), s.batchSize)
	}

	bearer, err := s.bearerToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("push gateway auth: %w", err)
	}

	wire := make([]wireMessage, len(messages))
	for i, m := range messages {
		wire[i] = wireMessage{
			Token:        m.Token,
			Notification: wireNotification{Title: m.Title, Body: m.Body},
			Data:         m.Data,
			Android: wireAndroid{
				Priority: m.AndroidPriority,
				Notification: wireAndroidNotif{
					ChannelID: m.AndroidChannelID,
					Sound:     m.Sound,
					Priority:  m.AndroidPriority,
				},
			},
			APNS: wireAPNS{Payload: wireAPNSPayload{APS: wireAPS{Sound: m.Sound, Badge: m.Badge}}},
		}
	}
	body, err := json.Marshal(map[string]any{"messages": wire})
	if err != nil {
		return nil, fmt.Errorf("encode push batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("decode push gateway response: %w", err)
	}
	if len(wr.Responses) != len(messages) {
		return nil, fmt.Errorf("push gateway returned %d results for %d messages", len(wr.Responses), len(messages))
	}

	result := &domain.PushBatchResult{
		SuccessCount: wr.SuccessCount,
		FailureCount: wr.FailureCount,
		Results:      make([]domain.PushSendResult, len(wr.Responses)),
	}
	for i, r := range wr.Responses {
		result.Results[i] = domain.PushSendResult{Success: r.Success, ErrorCode: r.Error.Code}
	}
	return result, nil
}

// bearerToken returns a cached access token, minting a fresh RS256
// service-account assertion and exchanging it when the cache is stale.
func (s *httpSender) bearerToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bearer != "" && time.Now().Before(s.bearerUntil) {
		return s.bearer, nil
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.serviceAccount,
		Subject:   s.serviceAccount,
		Audience:  jwt.ClaimStrings{s.tokenURL},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty access token")
	}
	s.bearer = tok.AccessToken
	// Refresh a minute early so in-flight batches never carry a dying token.
	s.bearerUntil = now.Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return s.bearer, nil
}

type noopSender struct {
	batchSize int
	log       *slog.Logger
}

func (n *noopSender) MaxBatchSize() int {
	return n.batchSize
}

func (n *noopSender) SendBatch(ctx context.Context, messages []domain.PushMessage) (*domain.PushBatchResult, error) {
	n.log.Info("push batch would be sent (noop)", "count", len(messages))
	result := &domain.PushBatchResult{
		SuccessCount: len(messages),
		Results:      make([]domain.PushSendResult, len(messages)),
	}
	for i := range result.Results {
		result.Results[i] = domain.PushSendResult{Success: true}
	}
	return result, nil
}
