package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/donara/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyResendIdentifier = "donation:resend:%s"
	keyResendLock       = "donation:resend:lock:%s"
)

var ErrResendInProgress = errors.New("resend_in_progress")

// ResendLimiter throttles receipt resends per donation identifier and keeps
// two resends of the same identifier from running at once.
type ResendLimiter struct {
	enabled bool

	client  *redis.Client
	bucket  *TokenBucket
	locker  *Locker
	rate    float64
	burst   int
	lockTTL time.Duration
}

func NewResendLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*ResendLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		log.Info("receipt resend rate limiting disabled")
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.ResendRate <= 0 || limitCfg.ResendBurst <= 0 {
		return nil, errors.New("resend rate limit must be positive")
	}
	if limitCfg.ResendLockTTLSec <= 0 {
		return nil, errors.New("resend lock ttl must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					log.Warn("rate limit redis unreachable", zap.String("addr", addr), zap.Error(err))
				}
				return nil
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}

	return &ResendLimiter{
		enabled: true,
		client:  client,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    limitCfg.ResendRate,
		burst:   limitCfg.ResendBurst,
		lockTTL: time.Duration(limitCfg.ResendLockTTLSec) * time.Second,
	}, nil
}

func (l *ResendLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow takes one token from the bucket of identifier. A disabled limiter
// always allows.
func (l *ResendLimiter) Allow(ctx context.Context, identifier string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, resendKey(identifier), l.rate, l.burst)
}

// Acquire locks identifier for the duration of one resend. The returned
// release func is safe to call when the lock was never taken.
func (l *ResendLimiter) Acquire(ctx context.Context, identifier string) (func(context.Context), error) {
	noop := func(context.Context) {}
	if !l.Enabled() {
		return noop, nil
	}

	key := lockKey(identifier)
	token, ok, err := l.locker.TryLock(ctx, key, l.lockTTL)
	if err != nil {
		return noop, err
	}
	if !ok {
		return noop, ErrResendInProgress
	}
	return func(ctx context.Context) {
		_ = l.locker.Release(ctx, key, token)
	}, nil
}

func resendKey(identifier string) string {
	return fmt.Sprintf(keyResendIdentifier, strings.TrimSpace(identifier))
}

func lockKey(identifier string) string {
	return fmt.Sprintf(keyResendLock, strings.TrimSpace(identifier))
}
