package server

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/donara/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/donara/internal/observability/metrics"
	"github.com/smallbiznis/donara/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	rateLimitReasonResendRate  = "resend-rate"
	rateLimitReasonResendInUse = "resend-in-progress"
)

// ResendRateLimit throttles receipt resends per identifier and holds a lock on
// the identifier until the handler returns.
func (s *Server) ResendRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.resendLimiter.Enabled() {
			c.Next()
			return
		}

		identifier := strings.TrimSpace(c.Param("id"))
		if identifier == "" {
			AbortWithError(c, invalidRequestError())
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		result, err := s.resendLimiter.Allow(ctx, identifier)
		if err != nil {
			logger.FromContext(ctx).Warn("resend rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			denyResendRateLimit(c, endpoint, rateLimitReasonResendRate, result, s.obsMetrics)
			return
		}

		release, err := s.resendLimiter.Acquire(ctx, identifier)
		if err != nil {
			if errors.Is(err, ratelimit.ErrResendInProgress) {
				recordRateLimitDenied(ctx, endpoint, s.obsMetrics)
				c.Header("X-Rate-Limited-Reason", rateLimitReasonResendInUse)
				AbortWithError(c, err)
				return
			}
			logger.FromContext(ctx).Warn("resend lock failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		defer release(context.WithoutCancel(ctx))

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Next()
	}
}

func denyResendRateLimit(c *gin.Context, endpoint, reason string, result *ratelimit.RateLimitResult, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("resend rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	recordRateLimitDenied(ctx, endpoint, metrics)

	c.Header("Retry-After", retryAfterSeconds(result))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func retryAfterSeconds(result *ratelimit.RateLimitResult) string {
	if result == nil || result.RetryAfter <= 0 {
		return "1"
	}
	seconds := int(result.RetryAfter.Seconds())
	if result.RetryAfter.Seconds() > float64(seconds) {
		seconds++
	}
	return strconv.Itoa(seconds)
}

func recordRateLimitDenied(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, endpoint)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
