package supervisor

import (
	"errors"
	"fmt"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// ConfigSource yields the current strategy config.
type ConfigSource interface {
	Current() domain.StrategyConfig
}

// Health aggregates the liveness of the collectors and traders of the
// configured venue pair. Connections of other configured venues are not
// subscribed to anything and are ignored.
type Health struct {
	config     ConfigSource
	collectors []domain.MarketDataCollector
	traders    []domain.Trader
}

// NewHealth creates a Health over the given connections.
func NewHealth(config ConfigSource, collectors []domain.MarketDataCollector, traders []domain.Trader) *Health {
	return &Health{config: config, collectors: collectors, traders: traders}
}

// Check returns nil when the pair is alive, otherwise one joined error
// naming each dead connection. Before a config is loaded there is no pair
// and Check reports ErrNotAlive.
func (h *Health) Check() error {
	cfg := h.config.Current()
	if cfg.ExchangeA == "" || cfg.ExchangeB == "" {
		return fmt.Errorf("venue pair not configured: %w", domain.ErrNotAlive)
	}
	var errs []error
	for _, c := range h.collectors {
		if inPair(cfg, c.Venue()) && !c.IsAlive() {
			errs = append(errs, fmt.Errorf("market data %s: %w", c.Venue(), domain.ErrNotAlive))
		}
	}
	for _, t := range h.traders {
		if inPair(cfg, t.Venue()) && !t.IsAlive() {
			errs = append(errs, fmt.Errorf("trader %s: %w", t.Venue(), domain.ErrNotAlive))
		}
	}
	return errors.Join(errs...)
}

// Report lists the pair's connections with their liveness, keyed
// "feed:<venue>" and "trader:<venue>".
func (h *Health) Report() map[string]bool {
	cfg := h.config.Current()
	out := make(map[string]bool, 4)
	for _, c := range h.collectors {
		if inPair(cfg, c.Venue()) {
			out["feed:"+c.Venue()] = c.IsAlive()
		}
	}
	for _, t := range h.traders {
		if inPair(cfg, t.Venue()) {
			out["trader:"+t.Venue()] = t.IsAlive()
		}
	}
	return out
}

func inPair(cfg domain.StrategyConfig, venue string) bool {
	return venue == cfg.ExchangeA || venue == cfg.ExchangeB
}
