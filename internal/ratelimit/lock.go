package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLockerDisabled = errors.New("locker_disabled")
	ErrInvalidLockKey = errors.New("invalid_lock_key")
	ErrInvalidLockTTL = errors.New("invalid_lock_ttl")
)

// compareAndDelete removes KEYS[1] only while it still holds the caller's
// token, so an expired-then-retaken lock is never released by the old owner.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`)

// Locker hands out expiring ownership of a key. Reminder cooldowns lean on
// the expiry: a reminder lock is kept for the whole cooldown and never
// released once the reminder is committed.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// TryLock returns the owner token and whether key was free.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	switch {
	case l == nil || l.client == nil:
		return "", false, ErrLockerDisabled
	case key == "":
		return "", false, ErrInvalidLockKey
	case ttl <= 0:
		return "", false, ErrInvalidLockTTL
	}

	owner := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !acquired {
		return "", false, nil
	}
	return owner, true, nil
}

// Release is a no-op for a disabled locker or an empty owner token.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return compareAndDelete.Run(ctx, l.client, []string{key}, token).Err()
}

// Remaining reports how long key stays held; zero when it is free.
func (l *Locker) Remaining(ctx context.Context, key string) (time.Duration, error) {
	if l == nil || l.client == nil {
		return 0, ErrLockerDisabled
	}
	ttl, err := l.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
