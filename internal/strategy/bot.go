// Package strategy runs the swap-arbitrage control loop: it watches the
// cross-venue spread of every configured instrument, opens a swap when the
// spread breaches the entry band and unwinds it when the spread reverts.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/alanyoungcy/swaparb/internal/feed"
	"github.com/alanyoungcy/swaparb/internal/metrics"
	"github.com/alanyoungcy/swaparb/internal/orderbook"
	"github.com/alanyoungcy/swaparb/internal/position"
)

const (
	// DefaultLoopInterval is the pause between control loop iterations.
	DefaultLoopInterval = 5 * time.Millisecond

	// DefaultLogDebounce bounds opportunity logs per symbol.
	DefaultLogDebounce = time.Second

	// DefaultStartupTimeout bounds the wait for a healthy venue pair before
	// the first iteration.
	DefaultStartupTimeout = time.Minute

	readyPollInterval = 100 * time.Millisecond

	// maxNotionalOvershoot rejects entries whose rounded size exceeds the
	// configured notional by more than this factor (min-qty floors on
	// high-priced contracts).
	maxNotionalOvershoot = 2.0
)

// ConfigSource yields the current strategy config.
type ConfigSource interface {
	Current() domain.StrategyConfig
}

// OrderDispatcher sends an order without waiting for the venue.
type OrderDispatcher interface {
	Dispatch(ctx context.Context, order domain.Order) error
}

// KillSwitch persists is_trading=false.
type KillSwitch interface {
	DisableTrading(ctx context.Context, reason string) error
}

// HealthChecker reports the first unhealthy collaborator.
type HealthChecker interface {
	Check() error
}

// Deps are the shared containers and collaborators the bot reads from and
// writes to. Books, Positions and Traders are keyed by venue name.
type Deps struct {
	Config     ConfigSource
	Tickers    *feed.TickerBook
	Books      map[string]*orderbook.Collection
	Positions  map[string]*position.Book
	Swaps      *position.SwapBook
	Spreads    *SpreadBook
	Traders    map[string]domain.Trader
	Dispatcher OrderDispatcher
	Health     HealthChecker
	Kill       KillSwitch
}

// Bot is the control loop. Run is its only long-lived goroutine; Evaluate
// may be called concurrently and stays idempotent per symbol.
type Bot struct {
	deps           Deps
	guard          *guard
	interval       time.Duration
	logDebounce    time.Duration
	startupTimeout time.Duration
	now            func() time.Time
	newID          func() string
	logger         *slog.Logger
}

// Option customises a Bot.
type Option func(*Bot)

// WithLoopInterval overrides DefaultLoopInterval.
func WithLoopInterval(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.interval = d
		}
	}
}

// WithStartupTimeout overrides DefaultStartupTimeout.
func WithStartupTimeout(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.startupTimeout = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bot) { b.now = now }
}

// WithIDGenerator overrides the order id source.
func WithIDGenerator(f func() string) Option {
	return func(b *Bot) { b.newID = f }
}

// NewBot creates a bot.
func NewBot(deps Deps, logger *slog.Logger, opts ...Option) *Bot {
	if deps.Spreads == nil {
		deps.Spreads = NewSpreadBook()
	}
	b := &Bot{
		deps:           deps,
		guard:          newGuard(),
		interval:       DefaultLoopInterval,
		logDebounce:    DefaultLogDebounce,
		startupTimeout: DefaultStartupTimeout,
		now:            time.Now,
		newID:          newUUID,
		logger:         logger.With(slog.String("component", "swaparb_bot")),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Spreads exposes the spread book.
func (b *Bot) Spreads() *SpreadBook { return b.deps.Spreads }

// Run waits for the venue pair to become healthy, then iterates until ctx
// is cancelled or the kill-switch trips, in which case it returns an error
// wrapping domain.ErrTradingHalted. A pair that never becomes healthy within
// the startup timeout fails Run without touching the kill switch.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.waitReady(ctx); err != nil {
		return err
	}
	b.logger.Info("control loop started", slog.Duration("interval", b.interval))
	defer b.logger.Info("control loop stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if err := b.Step(ctx); err != nil {
			return err
		}
		timer.Reset(b.interval)
	}
}

func (b *Bot) waitReady(ctx context.Context) error {
	if b.deps.Health == nil {
		return nil
	}
	deadline := time.NewTimer(b.startupTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(readyPollInterval)
	defer poll.Stop()

	for {
		err := b.deps.Health.Check()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("strategy: venue pair not ready after %s: %w", b.startupTimeout, err)
		case <-poll.C:
		}
	}
}

// Step runs one iteration: health check first, then every instrument.
func (b *Bot) Step(ctx context.Context) error {
	metrics.LoopIterations.Inc()

	if b.deps.Health != nil {
		if err := b.deps.Health.Check(); err != nil {
			return b.halt(ctx, err)
		}
	}

	cfg := b.deps.Config.Current()
	for _, pair := range cfg.Pairs() {
		b.Evaluate(ctx, cfg, pair)
	}
	return nil
}

func (b *Bot) halt(ctx context.Context, cause error) error {
	reason := cause.Error()
	b.logger.Error("health check failed, disabling trading", slog.String("error", reason))
	if b.deps.Kill != nil {
		if err := b.deps.Kill.DisableTrading(ctx, reason); err != nil {
			b.logger.Error("kill-switch persist failed", slog.String("error", err.Error()))
		}
	}
	return fmt.Errorf("strategy: %w: %w", domain.ErrTradingHalted, cause)
}

// Evaluate makes the entry or unwind decision for one instrument.
func (b *Bot) Evaluate(ctx context.Context, cfg domain.StrategyConfig, pair domain.InstrumentPair) {
	topA, okA := b.deps.Tickers.Get(cfg.ExchangeA, pair.Symbol)
	topB, okB := b.deps.Tickers.Get(cfg.ExchangeB, pair.Symbol)
	if !okA || !okB {
		return
	}
	spread, ok := CrossSpreadBp(topA, topB)
	if !ok {
		return
	}
	b.deps.Spreads.Set(pair.Symbol, spread)
	metrics.SpreadBp.WithLabelValues(pair.Symbol).Set(spread)

	now := b.now()
	if sp, ok := b.deps.Swaps.Get(pair.Symbol); ok {
		b.guard.clearEntering(pair.Symbol)
		b.maybeUnwind(ctx, cfg, pair, sp, now)
		return
	}
	if b.guard.expireEntering(pair.Symbol, now, cfg.EntryTimeout()) {
		b.logger.Warn("entry timed out without a swap position",
			slog.String("symbol", pair.Symbol),
			slog.Duration("timeout", cfg.EntryTimeout()),
		)
	}
	b.maybeEnter(ctx, cfg, pair, topA, topB, spread, now)
}

// State reports the control-loop state of symbol.
func (b *Bot) State(symbol string) domain.SymbolState {
	switch {
	case b.guard.isUnwinding(symbol):
		return domain.StateUnwinding
	case b.deps.Swaps.Has(symbol):
		return domain.StateInSwap
	case b.guard.isEntering(symbol):
		return domain.StateEntering
	default:
		return domain.StateFlat
	}
}

// States reports the state of every configured instrument.
func (b *Bot) States() map[string]domain.SymbolState {
	pairs := b.deps.Config.Current().Pairs()
	out := make(map[string]domain.SymbolState, len(pairs))
	for _, p := range pairs {
		out[p.Symbol] = b.State(p.Symbol)
	}
	return out
}

// Snapshot collects the published state: every venue's positions, the
// spread book, the swap book and the per-symbol states.
func (b *Bot) Snapshot(now time.Time) domain.StateSnapshot {
	positions := make(map[string]map[string]domain.Position, len(b.deps.Positions))
	pnl := make(map[string]float64, len(b.deps.Positions))
	for venue, book := range b.deps.Positions {
		positions[venue] = book.Snapshot()
		pnl[venue] = book.TotalPnL()
	}
	return domain.StateSnapshot{
		Timestamp: now,
		Positions: positions,
		PnL:       pnl,
		Spreads:   b.deps.Spreads.Snapshot(),
		Swaps:     b.deps.Swaps.Snapshot(),
		States:    b.States(),
	}
}

// OnConfigChange applies the side effects of a config reload: new
// instruments are subscribed on the collectors, dropped ones are
// unsubscribed and their books and spreads destroyed, and leverage changes
// are pushed to traders that support it.
func (b *Bot) OnConfigChange(ctx context.Context, prev, cur domain.StrategyConfig, collectors map[string]domain.MarketDataCollector) error {
	var errs []error
	legs := []struct {
		venue     string
		prev, cur []string
	}{
		{cur.ExchangeA, prev.ExchangeAMarkets, cur.ExchangeAMarkets},
		{cur.ExchangeB, prev.ExchangeBMarkets, cur.ExchangeBMarkets},
	}
	for _, leg := range legs {
		c, ok := collectors[leg.venue]
		if !ok {
			continue
		}
		if err := c.Subscribe(ctx, leg.cur); err != nil {
			errs = append(errs, err)
		}
		if dropped := missing(leg.prev, leg.cur); len(dropped) > 0 {
			if err := c.Unsubscribe(ctx, dropped); err != nil {
				errs = append(errs, err)
			}
		}
	}
	b.dropUnconfigured(cur)

	if cur.Leverage > 0 && cur.Leverage != prev.Leverage {
		errs = append(errs, b.applyLeverage(ctx, cur))
	}
	return errors.Join(errs...)
}

// dropUnconfigured destroys the books and spreads of instruments no longer
// in cfg. Frames already in flight may recreate a book; the next change
// sweeps it again.
func (b *Bot) dropUnconfigured(cfg domain.StrategyConfig) {
	keep := make(map[string]bool)
	for _, p := range cfg.Pairs() {
		keep[p.Symbol] = true
	}
	for _, venue := range []string{cfg.ExchangeA, cfg.ExchangeB} {
		coll, ok := b.deps.Books[venue]
		if !ok {
			continue
		}
		for _, sym := range coll.Symbols() {
			if !keep[sym] {
				coll.Remove(sym)
			}
		}
	}
	for sym := range b.deps.Spreads.Snapshot() {
		if !keep[sym] {
			b.deps.Spreads.Delete(sym)
			metrics.SpreadBp.DeleteLabelValues(sym)
		}
	}
}

// missing returns the entries of prev absent from cur.
func missing(prev, cur []string) []string {
	var out []string
	for _, s := range prev {
		if !slices.Contains(cur, s) {
			out = append(out, s)
		}
	}
	return out
}

func (b *Bot) applyLeverage(ctx context.Context, cfg domain.StrategyConfig) error {
	var errs []error
	for _, pair := range cfg.Pairs() {
		for venue, symbol := range map[string]string{cfg.ExchangeA: pair.VenueA, cfg.ExchangeB: pair.VenueB} {
			setter, ok := b.deps.Traders[venue].(domain.LeverageSetter)
			if !ok {
				continue
			}
			if err := setter.SetLeverage(ctx, symbol, cfg.Leverage); err != nil {
				errs = append(errs, fmt.Errorf("strategy: set leverage %s %s: %w", venue, symbol, err))
			}
		}
	}
	if len(errs) == 0 {
		b.logger.Info("leverage applied", slog.Int("leverage", cfg.Leverage))
	}
	return errors.Join(errs...)
}

// venueSymbol maps a leg's venue onto the pair's venue-native spelling.
func venueSymbol(cfg domain.StrategyConfig, pair domain.InstrumentPair, venue string) string {
	if venue == cfg.ExchangeA {
		return pair.VenueA
	}
	return pair.VenueB
}

func (b *Bot) venueBook(venue, symbol string) (*orderbook.OrderBook, bool) {
	coll, ok := b.deps.Books[venue]
	if !ok {
		return nil, false
	}
	return coll.Get(symbol)
}
