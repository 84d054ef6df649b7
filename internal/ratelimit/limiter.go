package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/dqtran/medauth/params"
)

// Spec is one named bucket policy: at most Limit requests per Window,
// counted in fixed windows aligned to the epoch.
type Spec struct {
	Limit  int
	Window time.Duration
}

type Decision struct {
	Bucket    string
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter reports how long the caller should wait before the window
// resets, rounded up to whole seconds for the Retry-After header.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait.Round(time.Second) + time.Second
}

// CounterStore holds the per-window counters. Consume must be atomic per
// key: it increments only while the counter is below limit, so two
// simultaneous requests can never both slip past the boundary.
type CounterStore interface {
	Consume(ctx context.Context, key string, limit int64, ttl time.Duration) (count int64, incremented bool, err error)
}

// Limiter performs fixed-window counting keyed by (bucket, key, window
// index). An unregistered bucket is treated as unlimited.
type Limiter struct {
	buckets  map[string]Spec
	counters CounterStore
}

func (l *Limiter) counterKey(bucket, key string, windowIndex int64) string {
	return fmt.Sprintf("%s%s:%s:%d", params.RateLimitKeyPrefix, bucket, key, windowIndex)
}

func (l *Limiter) TryConsume(ctx context.Context, bucket string, key string) (Decision, error) {
	spec, ok := l.buckets[bucket]
	if !ok || spec.Limit <= 0 || spec.Window <= 0 {
		return Decision{Bucket: bucket, Allowed: true, Remaining: -1}, nil
	}

	now := time.Now()
	windowIndex := now.UnixNano() / int64(spec.Window)
	resetAt := time.Unix(0, (windowIndex+1)*int64(spec.Window))
	counterKey := l.counterKey(bucket, key, windowIndex)

	// counters outlive their window slightly so a late read still sees them
	ttl := spec.Window + params.RateLimitRetentionSlack
	count, incremented, err := l.counters.Consume(ctx, counterKey, int64(spec.Limit), ttl)
	if err != nil {
		return Decision{}, err
	}

	remaining := int64(spec.Limit) - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Bucket:    bucket,
		Allowed:   incremented,
		Remaining: int(remaining),
		ResetAt:   resetAt,
	}, nil
}

// Buckets returns the registered bucket names.
func (l *Limiter) Buckets() []string {
	names := make([]string, 0, len(l.buckets))
	for name := range l.buckets {
		names = append(names, name)
	}
	return names
}

func NewLimiter(buckets map[string]Spec, counters CounterStore) *Limiter {
	registered := make(map[string]Spec, len(buckets))
	for name, spec := range buckets {
		registered[name] = spec
	}
	return &Limiter{
		buckets:  registered,
		counters: counters,
	}
}
