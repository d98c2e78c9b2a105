package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/alanyoungcy/swaparb/internal/metrics"
)

// entryPlan is the direction and size of one entry.
type entryPlan struct {
	sellVenue, buyVenue   string
	sellSymbol, buySymbol string
	sellTop, buyTop       domain.TopOfBook
	sellQty, buyQty       float64
}

func (b *Bot) maybeEnter(ctx context.Context, cfg domain.StrategyConfig, pair domain.InstrumentPair, topA, topB domain.TopOfBook, spread float64, now time.Time) {
	if !(spread > cfg.UpperBoundEntryBp || spread < cfg.EntryLowerBp()) {
		return
	}
	if !cfg.IsTrading {
		return
	}
	if b.deps.Swaps.Has(pair.Symbol) || b.guard.isEntering(pair.Symbol) {
		return
	}
	if cfg.MaxPosition > 0 && b.deps.Swaps.Len()+b.guard.enteringCount() >= cfg.MaxPosition {
		if b.guard.shouldLog(pair.Symbol, now, b.logDebounce) {
			b.logger.Info("entry skipped, max positions reached",
				slog.String("symbol", pair.Symbol),
				slog.Int("max_position", cfg.MaxPosition),
			)
		}
		return
	}

	plan := entryPlan{
		sellVenue: cfg.ExchangeA, buyVenue: cfg.ExchangeB,
		sellSymbol: pair.VenueA, buySymbol: pair.VenueB,
		sellTop: topA, buyTop: topB,
	}
	if spread < 0 {
		plan = entryPlan{
			sellVenue: cfg.ExchangeB, buyVenue: cfg.ExchangeA,
			sellSymbol: pair.VenueB, buySymbol: pair.VenueA,
			sellTop: topB, buyTop: topA,
		}
	}

	if !b.bookSpreadOK(cfg, pair.Symbol, topA, topB) {
		return
	}
	if !b.size(cfg, pair.Symbol, &plan) {
		return
	}
	if cfg.IsDepthCheck && !b.depthOK(cfg, pair.Symbol, plan) {
		return
	}

	if !b.guard.tryEnter(pair.Symbol, now) {
		return
	}

	if b.guard.shouldLog(pair.Symbol, now, b.logDebounce) {
		b.logger.Info("entry opportunity",
			slog.String("symbol", pair.Symbol),
			slog.Float64("spread_bp", spread),
			slog.String("sell_venue", plan.sellVenue),
			slog.Float64("sell_bid", plan.sellTop.BidPrice),
			slog.String("buy_venue", plan.buyVenue),
			slog.Float64("buy_ask", plan.buyTop.AskPrice),
		)
	}

	group := b.newID()
	sell := b.entryOrder(cfg, group, plan.sellVenue, plan.sellSymbol, domain.OrderSideSell, plan.sellQty, plan.sellTop.BidPrice, now)
	buy := b.entryOrder(cfg, group, plan.buyVenue, plan.buySymbol, domain.OrderSideBuy, plan.buyQty, plan.buyTop.AskPrice, now)

	dispatched := 0
	for _, o := range []domain.Order{sell, buy} {
		if err := b.deps.Dispatcher.Dispatch(ctx, o); err != nil {
			b.logger.Error("entry dispatch failed",
				slog.String("symbol", pair.Symbol),
				slog.String("venue", o.Venue),
				slog.String("error", err.Error()),
			)
			continue
		}
		dispatched++
	}
	if dispatched == 0 {
		b.guard.clearEntering(pair.Symbol)
		return
	}
	metrics.Entries.WithLabelValues(pair.Symbol).Inc()
}

// bookSpreadOK rejects entries into a wide or one-sided venue book.
func (b *Bot) bookSpreadOK(cfg domain.StrategyConfig, symbol string, topA, topB domain.TopOfBook) bool {
	if cfg.DepthThresholdBp <= 0 {
		return true
	}
	for venue, top := range map[string]domain.TopOfBook{cfg.ExchangeA: topA, cfg.ExchangeB: topB} {
		bp := top.SpreadBp()
		if book, ok := b.venueBook(venue, symbol); ok {
			if s, ok := book.SpreadBp(); ok {
				bp = s
			}
		}
		if bp > cfg.DepthThresholdBp {
			b.logger.Debug("entry skipped, venue book too wide",
				slog.String("symbol", symbol),
				slog.String("venue", venue),
				slog.Float64("book_spread_bp", bp),
			)
			return false
		}
	}
	return true
}

// size converts the configured notional into each leg's venue quantity.
// Legs are sized independently, so their notionals may differ.
func (b *Bot) size(cfg domain.StrategyConfig, symbol string, plan *entryPlan) bool {
	sellTrader, okS := b.deps.Traders[plan.sellVenue]
	buyTrader, okB := b.deps.Traders[plan.buyVenue]
	if !okS || !okB {
		return false
	}
	var err error
	plan.sellQty, err = sellTrader.OrderSize(plan.sellSymbol, cfg.MaxTradeSizeUSD, plan.sellTop.BidPrice)
	if err == nil {
		plan.buyQty, err = buyTrader.OrderSize(plan.buySymbol, cfg.MaxTradeSizeUSD, plan.buyTop.AskPrice)
	}
	if err != nil || plan.sellQty <= 0 || plan.buyQty <= 0 {
		attrs := []any{slog.String("symbol", symbol)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		b.logger.Warn("entry skipped, sizing failed", attrs...)
		return false
	}

	limit := cfg.MaxTradeSizeUSD * maxNotionalOvershoot
	if plan.sellQty*plan.sellTop.BidPrice > limit || plan.buyQty*plan.buyTop.AskPrice > limit {
		b.logger.Warn("entry skipped, rounded size exceeds notional",
			slog.String("symbol", symbol),
			slog.Float64("sell_qty", plan.sellQty),
			slog.Float64("buy_qty", plan.buyQty),
		)
		return false
	}
	return true
}

// depthOK requires enough resting quantity within DepthPct of mid on the
// side each leg takes.
func (b *Bot) depthOK(cfg domain.StrategyConfig, symbol string, plan entryPlan) bool {
	sellBook, okS := b.venueBook(plan.sellVenue, symbol)
	buyBook, okB := b.venueBook(plan.buyVenue, symbol)
	if !okS || !okB {
		return false
	}
	bidDepth, _ := sellBook.DepthWithinPercent(cfg.DepthPct)
	_, askDepth := buyBook.DepthWithinPercent(cfg.DepthPct)
	if bidDepth < plan.sellQty || askDepth < plan.buyQty {
		b.logger.Debug("entry skipped, insufficient depth",
			slog.String("symbol", symbol),
			slog.Float64("bid_depth", bidDepth),
			slog.Float64("ask_depth", askDepth),
		)
		return false
	}
	return true
}

func (b *Bot) entryOrder(cfg domain.StrategyConfig, group, venue, symbol string, side domain.OrderSide, qty, touch float64, now time.Time) domain.Order {
	o := domain.Order{
		ClientID:  b.newID(),
		GroupID:   group,
		Intent:    domain.IntentEntry,
		Venue:     venue,
		Symbol:    symbol,
		Side:      side,
		Kind:      cfg.ExecutionMode(side),
		Quantity:  qty,
		CreatedAt: now,
	}
	if o.Kind == domain.OrderKindLimit {
		// Marketable limit at the opposing touch, on the venue's tick grid.
		o.Price = touch
		if r, ok := b.deps.Traders[venue].(domain.PriceRounder); ok {
			o.Price = r.RoundPrice(symbol, touch)
		}
	}
	return o
}
