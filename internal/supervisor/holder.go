// Package supervisor keeps the strategy config current and guards the
// process: it hot-reloads the config from the store, flips the kill switch
// and aggregates the liveness of every venue connection.
package supervisor

import (
	"sync/atomic"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// Holder is the atomically swappable current strategy config. Readers never
// block and always see a complete config.
type Holder struct {
	cur atomic.Pointer[domain.StrategyConfig]
}

// NewHolder creates a Holder seeded with cfg.
func NewHolder(cfg domain.StrategyConfig) *Holder {
	h := &Holder{}
	h.Store(cfg)
	return h
}

// Current returns a copy of the current config.
func (h *Holder) Current() domain.StrategyConfig {
	p := h.cur.Load()
	if p == nil {
		return domain.StrategyConfig{}
	}
	return *p
}

// Store replaces the current config.
func (h *Holder) Store(cfg domain.StrategyConfig) {
	h.cur.Store(&cfg)
}
