package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited means the session spent its budget for the current window.
	ErrRateLimited = errors.New("rate: limited")
	// ErrRedisUnavailable wraps counter backend failures. Callers fail closed.
	ErrRedisUnavailable = errors.New("rate: redis unavailable")
)

// DefaultKeyPrefix namespaces the counters when Config.KeyPrefix is empty.
const DefaultKeyPrefix = "tr"

// Config holds throttle tuning parameters. A non-positive maximum disables
// the corresponding throttle.
type Config struct {
	KeyPrefix         string
	MaxResends        int
	ResendWindow      time.Duration
	MaxVerifyAttempts int
	VerifyWindow      time.Duration
}

// Limiter enforces per-session challenge resend and verification budgets
// using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) resendKey(sessionID string) string {
	return l.config.KeyPrefix + ":r:" + sessionID
}

func (l *Limiter) verifyKey(sessionID string) string {
	return l.config.KeyPrefix + ":v:" + sessionID
}

// CheckResend counts a resend request and returns [ErrRateLimited] once the
// window budget is exceeded.
func (l *Limiter) CheckResend(ctx context.Context, sessionID string) error {
	if l.config.MaxResends <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.resendKey(sessionID), l.config.ResendWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxResends) {
		return ErrRateLimited
	}

	return nil
}

// CheckVerify reports whether the session still has verification attempts
// left. It does not consume an attempt.
func (l *Limiter) CheckVerify(ctx context.Context, sessionID string) error {
	if l.config.MaxVerifyAttempts <= 0 {
		return nil
	}
	return l.checkCounter(ctx, l.verifyKey(sessionID), l.config.MaxVerifyAttempts)
}

// RecordVerifyFailure counts a failed verification.
func (l *Limiter) RecordVerifyFailure(ctx context.Context, sessionID string) error {
	if l.config.MaxVerifyAttempts <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.verifyKey(sessionID), l.config.VerifyWindow)
	if err != nil {
		return err
	}
	if count >= int64(l.config.MaxVerifyAttempts) {
		return ErrRateLimited
	}

	return nil
}

// ResetVerify clears the failed-verification counter after a successful verification.
func (l *Limiter) ResetVerify(ctx context.Context, sessionID string) error {
	if err := l.redis.Del(ctx, l.verifyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Reset clears every counter of a session. Called on logout.
func (l *Limiter) Reset(ctx context.Context, sessionID string) error {
	if err := l.redis.Del(ctx, l.resendKey(sessionID), l.verifyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// VerifyAttempts returns the current failed-verification count of a session.
func (l *Limiter) VerifyAttempts(ctx context.Context, sessionID string) (int, error) {
	count, err := l.redis.Get(ctx, l.verifyKey(sessionID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
