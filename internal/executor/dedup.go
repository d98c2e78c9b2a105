package executor

import (
	"sync"
	"time"
)

// Dedup rejects keys seen within a TTL window. The dispatcher keys it by
// client order id so a retried call never reaches the venue twice. It is
// safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // key -> first seen
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup with the given ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsDuplicate returns true if key was recorded within the TTL window.
// Otherwise it records key and returns false.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if lastSeen, ok := d.seen[key]; ok && now.Sub(lastSeen) < d.ttl {
		return true
	}
	d.seen[key] = now
	return false
}

// Cleanup removes expired entries. Call it periodically to bound memory.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}
