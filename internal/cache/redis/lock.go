package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua deletes the lease only if it still carries our token, so one
// instance can never release another's lease.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// extendLua refreshes the TTL only while we still own the lease.
const extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// DefaultLeaseTTL is how long a lease survives without being extended.
const DefaultLeaseTTL = 15 * time.Second

// Lease guarantees that at most one process trades a given bot id. It is a
// SETNX key with a TTL, extended periodically while the process is healthy.
type Lease struct {
	rdb      *redis.Client
	key      string
	ttl      time.Duration
	token    string
	unlockSc *redis.Script
	extendSc *redis.Script
	logger   *slog.Logger

	once sync.Once
}

// NewLease creates a lease for botID. A non-positive ttl uses DefaultLeaseTTL.
func NewLease(c *Client, botID string, ttl time.Duration, logger *slog.Logger) *Lease {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &Lease{
		rdb:      c.Underlying(),
		key:      leaseKey(botID),
		ttl:      ttl,
		token:    uuid.New().String(),
		unlockSc: redis.NewScript(unlockLua),
		extendSc: redis.NewScript(extendLua),
		logger:   logger.With(slog.String("component", "lease"), slog.String("bot_id", botID)),
	}
}

// Acquire takes the lease. It returns domain.ErrLockHeld if another
// instance holds it.
func (l *Lease) Acquire(ctx context.Context) error {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: acquire lease %s: %w", l.key, err)
	}
	if !ok {
		return fmt.Errorf("redis: lease %s: %w", l.key, domain.ErrLockHeld)
	}
	l.logger.Info("lease acquired", slog.Duration("ttl", l.ttl))
	return nil
}

// Run extends the lease every ttl/3 until ctx is cancelled, then releases
// it. It returns an error when the lease was lost to someone else.
func (l *Lease) Run(ctx context.Context) error {
	defer l.Release()

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := l.extendSc.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				// Transient; the next tick retries before the TTL runs out.
				l.logger.Warn("lease extend failed", slog.String("error", err.Error()))
				continue
			}
			if n == 0 {
				return fmt.Errorf("redis: lease %s lost: %w", l.key, domain.ErrLockHeld)
			}
		}
	}
}

// Release deletes the lease if we still own it. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.unlockSc.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
			l.logger.Warn("lease release failed", slog.String("error", err.Error()))
			return
		}
		l.logger.Info("lease released")
	})
}
