package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/digiurban/billing/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyMutationActor = "billing:mutation:%s"

// MutationLimiter caps how fast one operator can change invoices. The rate
// and burst are read on every call so billing.yml reloads apply immediately.
type MutationLimiter struct {
	bucket  *TokenBucket
	billing *config.BillingConfigHolder
}

func NewMutationLimiter(client *redis.Client, billing *config.BillingConfigHolder) *MutationLimiter {
	if client == nil {
		return nil
	}
	return &MutationLimiter{
		bucket:  NewTokenBucket(client),
		billing: billing,
	}
}

func (l *MutationLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *MutationLimiter) Allow(ctx context.Context, actor string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	limit := l.billing.Get().MutationRateLimit
	if limit.Rate <= 0 || limit.Burst <= 0 {
		return &RateLimitResult{Allowed: true}, nil
	}

	actor = strings.ToLower(strings.TrimSpace(actor))
	if actor == "" {
		actor = "anonymous"
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyMutationActor, actor), limit.Rate, limit.Burst)
}
