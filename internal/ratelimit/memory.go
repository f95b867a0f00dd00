package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

type rateKey struct {
	window time.Duration
	max    int
}

// MemoryLimiter is a fixed-window, in-process limiter for single-replica runs
// without Redis.
type MemoryLimiter struct {
	store    limiter.Store
	mu       sync.Mutex
	limiters map[rateKey]*limiter.Limiter
}

// NewMemoryLimiter returns a limiter backed by the ulule in-memory store.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		store:    memory.NewStore(),
		limiters: make(map[rateKey]*limiter.Limiter),
	}
}

func (m *MemoryLimiter) limiterFor(window time.Duration, max int) *limiter.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := rateKey{window: window, max: max}
	if l, ok := m.limiters[k]; ok {
		return l
	}
	l := limiter.New(m.store, limiter.Rate{Period: window, Limit: int64(max)})
	m.limiters[k] = l
	return l
}

// Allow implements Limiter.
func (m *MemoryLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if m == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	lctx, err := m.limiterFor(window, max).Get(ctx, storeKey(window, max, key))
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !lctx.Reached, int(lctx.Remaining), time.Unix(lctx.Reset, 0), nil
}

// storeKey scopes counters to a single rate.
func storeKey(window time.Duration, max int, key string) string {
	return window.String() + ":" + strconv.Itoa(max) + ":" + key
}
