package server

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/digiurban/billing/internal/auditcontext"
	"github.com/digiurban/billing/internal/auth"
	auditdomain "github.com/digiurban/billing/internal/audit/domain"
	obscontext "github.com/digiurban/billing/internal/observability/context"
	"github.com/digiurban/billing/internal/observability/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	contextPrincipalKey = "principal"
	bearerPrefix        = "bearer "
)

// RequestTimeout bounds the request context handed to services.
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AuthRequired verifies the bearer token and stamps the operator onto the
// request context for audit and logging.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.tokens.Verify(raw)
		if err != nil {
			logger.FromContext(c.Request.Context()).Debug("bearer token rejected", zap.Error(err))
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeUser), principal.UserID)
		ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeUser), principal.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextPrincipalKey, principal)
		c.Next()
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

func principalFromContext(c *gin.Context) (auth.Principal, bool) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return auth.Principal{}, false
	}
	principal, ok := value.(auth.Principal)
	return principal, ok
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), principal.Subject(), principal.Role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// MutationRateLimit applies the per-operator token bucket to invoice writes.
// Redis failures fail open.
func (s *Server) MutationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.mutationLimiter == nil || !s.mutationLimiter.Enabled() {
			c.Next()
			return
		}

		actor := "anonymous"
		if principal, ok := principalFromContext(c); ok {
			actor = principal.Subject()
		}

		ctx := c.Request.Context()
		result, err := s.mutationLimiter.Allow(ctx, actor)
		if err != nil {
			logger.FromContext(ctx).Warn("mutation rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if !result.Allowed {
			route := c.FullPath()
			logger.FromContext(ctx).Warn("mutation rate limit exceeded",
				zap.String("route", route),
				zap.String("actor", actor),
			)
			s.billingMetrics.RecordRateLimitDenied(route)

			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
