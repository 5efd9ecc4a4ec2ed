package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"eventlottery/internal/domain"
)

const (
	dispatchKey   = "notification:dispatch"
	claimKeyspace = "notification:claim:"
)

// Storage is the redis-backed dispatch queue and claim lease. Creation of a
// notification request publishes its ID here; the dispatcher consumes IDs
// and takes a short lease before processing so concurrent deliveries of the
// same ID cannot both send.
type Storage struct {
	redis *redis.Client
}

func NewStorage(client *redis.Client) *Storage {
	return &Storage{
		redis: client,
	}
}

var _ domain.DispatchQueue = (*Storage)(nil)
var _ domain.RequestClaimer = (*Storage)(nil)

func (s *Storage) Publish(ctx context.Context, requestID string) error {
	if err := s.redis.LPush(ctx, dispatchKey, requestID).Err(); err != nil {
		return fmt.Errorf("publish request %s: %w", requestID, err)
	}
	return nil
}

func (s *Storage) Receive(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := s.redis.BRPop(ctx, timeout, dispatchKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return "", fmt.Errorf("unexpected BRPOP reply of length %d", len(res))
	}
	return res[1], nil
}

func (s *Storage) Claim(ctx context.Context, requestID string, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, claimKeyspace+requestID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim request %s: %w", requestID, err)
	}
	return ok, nil
}

func (s *Storage) Release(ctx context.Context, requestID string) error {
	if err := s.redis.Del(ctx, claimKeyspace+requestID).Err(); err != nil {
		return fmt.Errorf("release claim on request %s: %w", requestID, err)
	}
	return nil
}
