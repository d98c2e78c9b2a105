package strategy

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/alanyoungcy/swaparb/internal/metrics"
)

// maybeUnwind closes sp when the closing basis has moved more than exitBp
// from the entry basis. It runs regardless of is_trading so a halted bot
// can still flatten.
func (b *Bot) maybeUnwind(ctx context.Context, cfg domain.StrategyConfig, pair domain.InstrumentPair, sp domain.SwapPosition, now time.Time) {
	longTop, okL := b.deps.Tickers.Get(sp.LongLeg.Venue, pair.Symbol)
	shortTop, okS := b.deps.Tickers.Get(sp.ShortLeg.Venue, pair.Symbol)
	if !okL || !okS {
		return
	}
	current, ok := CloseSpreadBp(longTop, shortTop)
	if !ok {
		return
	}
	entry := sp.BasisBp()

	if math.Abs(current-entry) <= cfg.ExitBp {
		return
	}
	if cfg.MaxAbsSpreadBp > 0 && math.Abs(current) >= cfg.MaxAbsSpreadBp {
		if b.guard.shouldLog(pair.Symbol, now, b.logDebounce) {
			b.logger.Warn("unwind skipped, spread beyond sanity ceiling",
				slog.String("symbol", pair.Symbol),
				slog.Float64("current_bp", current),
				slog.Float64("max_abs_spread_bp", cfg.MaxAbsSpreadBp),
			)
		}
		return
	}
	if !b.guard.tryUnwind(pair.Symbol, now, cfg.UnwindCooldown()) {
		return
	}

	// Remove first so the next iteration cannot unwind the same swap again.
	if _, ok := b.deps.Swaps.Remove(pair.Symbol); !ok {
		b.guard.abortUnwind(pair.Symbol)
		return
	}

	b.logger.Info("unwinding swap",
		slog.String("symbol", pair.Symbol),
		slog.Float64("entry_bp", entry),
		slog.Float64("current_bp", current),
		slog.Float64("exit_bp", cfg.ExitBp),
	)

	group := b.newID()
	for _, leg := range []domain.Position{sp.LongLeg, sp.ShortLeg} {
		o := domain.Order{
			ClientID:   b.newID(),
			GroupID:    group,
			Intent:     domain.IntentUnwind,
			Venue:      leg.Venue,
			Symbol:     venueSymbol(cfg, pair, leg.Venue),
			Side:       leg.CloseSide(),
			Kind:       domain.OrderKindMarket,
			Quantity:   leg.Size(),
			ReduceOnly: true,
			CloseOnly:  true,
			CreatedAt:  now,
		}
		if err := b.deps.Dispatcher.Dispatch(ctx, o); err != nil {
			b.logger.Error("unwind dispatch failed",
				slog.String("symbol", pair.Symbol),
				slog.String("venue", o.Venue),
				slog.String("error", err.Error()),
			)
		}
		if book, ok := b.deps.Positions[leg.Venue]; ok {
			book.Remove(pair.Symbol)
		}
	}
	b.guard.finishUnwind(pair.Symbol, now)
	metrics.Unwinds.WithLabelValues(pair.Symbol).Inc()
}
