package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/alanyoungcy/swaparb/internal/metrics"
)

const (
	// DefaultReloadInterval is how often the watcher polls the store.
	DefaultReloadInterval = 10 * time.Second

	// EventConfigChange is the notifier event for an applied config change.
	EventConfigChange = "config_change"
	// EventTradingDisabled is the notifier event for the kill switch.
	EventTradingDisabled = "trading_disabled"
)

// UpdateSource is implemented by stores that announce writes, letting the
// watcher reload without waiting for its timer.
type UpdateSource interface {
	Updates(ctx context.Context, botID string) (<-chan []byte, error)
}

// ChangeFunc is called after a changed config has been applied.
type ChangeFunc func(ctx context.Context, prev, cur domain.StrategyConfig) error

// Watcher reloads the bot's strategy config from the store and owns the
// kill switch. Reload and DisableTrading are serialised.
type Watcher struct {
	botID    string
	store    domain.ConfigStore
	holder   *Holder
	notifier domain.Notifier
	onChange ChangeFunc
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	loaded bool
}

// WatcherOption customises a Watcher.
type WatcherOption func(*Watcher)

// WithInterval overrides DefaultReloadInterval.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithOnChange registers the callback run after every applied change.
func WithOnChange(f ChangeFunc) WatcherOption {
	return func(w *Watcher) { w.onChange = f }
}

// NewWatcher creates a Watcher for botID. notifier may be nil.
func NewWatcher(botID string, store domain.ConfigStore, holder *Holder, notifier domain.Notifier, logger *slog.Logger, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		botID:    botID,
		store:    store,
		holder:   holder,
		notifier: notifier,
		interval: DefaultReloadInterval,
		logger:   logger.With(slog.String("component", "config_watcher"), slog.String("bot_id", botID)),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Reload fetches, decodes and validates the stored config. When it differs
// from the current one it is applied, the change callback runs and the
// difference is announced. An invalid config is rejected and the current
// one kept, as is a change of exchange_a/exchange_b after the first load:
// the venue pair is fixed for the life of the process. changed is false when
// the stored config is identical.
func (w *Watcher) Reload(ctx context.Context) (changed bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	blob, err := w.store.Get(ctx, w.botID)
	if err != nil {
		return false, fmt.Errorf("supervisor: fetch config: %w", err)
	}
	cfg, err := domain.DecodeStrategyConfig(blob)
	if err != nil {
		return false, fmt.Errorf("supervisor: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return false, fmt.Errorf("supervisor: %w", err)
	}

	prev := w.holder.Current()
	if w.loaded && (cfg.ExchangeA != prev.ExchangeA || cfg.ExchangeB != prev.ExchangeB) {
		return false, fmt.Errorf("supervisor: venue pair %s/%s -> %s/%s: %w",
			prev.ExchangeA, prev.ExchangeB, cfg.ExchangeA, cfg.ExchangeB, domain.ErrRestartRequired)
	}
	diff := cfg.Diff(prev)
	if w.loaded && len(diff) == 0 {
		return false, nil
	}
	first := !w.loaded

	w.holder.Store(cfg)
	w.loaded = true
	setTradingGauge(cfg.IsTrading)

	if w.onChange != nil {
		if err := w.onChange(ctx, prev, cfg); err != nil {
			w.logger.Warn("config change callback failed", slog.String("error", err.Error()))
		}
	}

	if first {
		w.logger.Info("config loaded",
			slog.Int("pairs", len(cfg.Pairs())),
			slog.Bool("is_trading", cfg.IsTrading),
		)
		return true, nil
	}

	msg := domain.FormatChanges(diff)
	w.logger.Info("config changed", slog.Int("fields", len(diff)), slog.String("changes", msg))
	w.notify(ctx, EventConfigChange, "Config updated: "+w.botID, msg)
	return true, nil
}

// DisableTrading persists is_trading=false and notifies operators. The
// holder is updated even when the store write fails so the loop stops
// trading regardless.
func (w *Watcher) DisableTrading(ctx context.Context, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	cfg := w.holder.Current()
	cfg.IsTrading = false
	w.holder.Store(cfg)
	setTradingGauge(false)

	w.logger.Warn("trading disabled", slog.String("reason", reason))
	w.notify(ctx, EventTradingDisabled, "Trading disabled: "+w.botID, reason)

	blob, err := cfg.Encode()
	if err != nil {
		return fmt.Errorf("supervisor: encode config: %w", err)
	}
	if err := w.store.Set(ctx, w.botID, blob); err != nil {
		return fmt.Errorf("supervisor: persist kill switch: %w", err)
	}
	return nil
}

// Run reloads on its own timer and, when the store supports it, on every
// announced write. Reload errors are logged and retried on the next tick.
func (w *Watcher) Run(ctx context.Context) error {
	var updates <-chan []byte
	if src, ok := w.store.(UpdateSource); ok {
		ch, err := src.Updates(ctx, w.botID)
		if err != nil {
			w.logger.Warn("config updates unavailable, polling only", slog.String("error", err.Error()))
		} else {
			updates = ch
		}
	}

	w.logger.Info("config watcher started", slog.Duration("interval", w.interval))
	defer w.logger.Info("config watcher stopped")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case _, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
		}
		if _, err := w.Reload(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("config reload failed", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) notify(ctx context.Context, event, title, msg string) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Notify(ctx, event, title, msg); err != nil {
		w.logger.Warn("notify failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

func setTradingGauge(on bool) {
	if on {
		metrics.TradingEnabled.Set(1)
		return
	}
	metrics.TradingEnabled.Set(0)
}
