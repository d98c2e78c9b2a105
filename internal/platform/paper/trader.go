// Package paper is a simulated venue trading client. Orders fill
// immediately against the live top of book from the market data feed, and
// positions are kept in memory, so the whole bot can run end to end
// without exchange credentials.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/alanyoungcy/swaparb/internal/sizing"
)

// Quotes yields the latest top of book per venue and canonical symbol.
type Quotes interface {
	Get(venue, symbol string) (domain.TopOfBook, bool)
}

// Trader implements domain.Trader, domain.LeverageSetter and
// domain.PriceRounder.
type Trader struct {
	venue   string
	quotes  Quotes
	lots    *sizing.Table
	latency time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu        sync.Mutex
	positions map[string]domain.Position
	leverage  map[string]int
	seq       int64

	alive atomic.Bool
}

// Option customises a Trader.
type Option func(*Trader)

// WithLatency delays every acknowledgement by d.
func WithLatency(d time.Duration) Option {
	return func(t *Trader) { t.latency = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Trader) { t.now = now }
}

// NewTrader creates a paper trader for venue.
func NewTrader(venue string, quotes Quotes, lots *sizing.Table, logger *slog.Logger, opts ...Option) *Trader {
	t := &Trader{
		venue:     venue,
		quotes:    quotes,
		lots:      lots,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "paper_trader"), slog.String("venue", venue)),
		positions: make(map[string]domain.Position),
		leverage:  make(map[string]int),
	}
	t.alive.Store(true)
	for _, o := range opts {
		o(t)
	}
	return t
}

// Venue returns the venue name.
func (t *Trader) Venue() string { return t.venue }

// IsAlive reports whether the simulated connection is up.
func (t *Trader) IsAlive() bool { return t.alive.Load() }

// SetAlive toggles the simulated connection.
func (t *Trader) SetAlive(v bool) { t.alive.Store(v) }

// OrderSize sizes through the venue's lot table.
func (t *Trader) OrderSize(symbol string, notionalUSD, price float64) (float64, error) {
	return t.lots.OrderSize(symbol, notionalUSD, price)
}

// RoundPrice snaps price to the venue tick of symbol.
func (t *Trader) RoundPrice(symbol string, price float64) float64 {
	return t.lots.RoundPrice(symbol, price)
}

// SetLeverage records the leverage of symbol.
func (t *Trader) SetLeverage(_ context.Context, symbol string, leverage int) error {
	if leverage < 1 {
		return fmt.Errorf("paper: leverage %d: %w", leverage, domain.ErrInvalidOrder)
	}
	t.mu.Lock()
	t.leverage[domain.CanonicalSymbol(symbol)] = leverage
	t.mu.Unlock()
	return nil
}

// Leverage returns the recorded leverage of symbol, zero if never set.
func (t *Trader) Leverage(symbol string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leverage[domain.CanonicalSymbol(symbol)]
}

// PlaceOrder fills o in full at the opposing touch. Limit orders must be
// marketable; reduce-only orders are clamped to the open position.
func (t *Trader) PlaceOrder(ctx context.Context, o domain.Order) (domain.OrderAck, error) {
	if err := o.Validate(); err != nil {
		return domain.OrderAck{}, fmt.Errorf("paper: %w", err)
	}
	if !t.IsAlive() {
		return domain.OrderAck{}, fmt.Errorf("paper: %s: %w", t.venue, domain.ErrNotAlive)
	}
	if t.latency > 0 {
		timer := time.NewTimer(t.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.OrderAck{}, fmt.Errorf("paper: place order: %w", ctx.Err())
		case <-timer.C:
		}
	}

	symbol := domain.CanonicalSymbol(o.Symbol)
	top, ok := t.quotes.Get(t.venue, symbol)
	if !ok || !top.Valid() {
		return domain.OrderAck{}, fmt.Errorf("paper: %s %s: %w", t.venue, symbol, domain.ErrStaleData)
	}

	price := top.AskPrice
	if o.Side == domain.OrderSideSell {
		price = top.BidPrice
	}
	if o.Kind == domain.OrderKindLimit {
		marketable := (o.Side == domain.OrderSideBuy && o.Price >= price) ||
			(o.Side == domain.OrderSideSell && o.Price <= price)
		if !marketable {
			return domain.OrderAck{}, fmt.Errorf("paper: limit %v against touch %v: %w", o.Price, price, domain.ErrInvalidPrice)
		}
	}

	signed := o.Quantity
	if o.Side == domain.OrderSideSell {
		signed = -signed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	pos, held := t.positions[symbol]
	if o.ReduceOnly || o.CloseOnly {
		if !held || pos.Quantity*signed >= 0 {
			return domain.OrderAck{}, fmt.Errorf("paper: reduce-only %s %s with no opposing position: %w", o.Side, symbol, domain.ErrInvalidOrder)
		}
		if math.Abs(signed) > math.Abs(pos.Quantity) {
			signed = -pos.Quantity
		}
	}

	t.apply(symbol, signed, price)
	t.seq++
	ack := domain.OrderAck{
		Ref:         t.venue + "-" + strconv.FormatInt(t.seq, 10),
		FilledQty:   math.Abs(signed),
		FilledPrice: price,
		At:          t.now(),
	}
	t.logger.Debug("paper fill",
		slog.String("client_id", o.ClientID),
		slog.String("symbol", symbol),
		slog.String("side", string(o.Side)),
		slog.Float64("qty", ack.FilledQty),
		slog.Float64("price", price),
	)
	return ack, nil
}

// apply folds a signed fill into the position. Caller holds t.mu.
func (t *Trader) apply(symbol string, signed, price float64) {
	pos := t.positions[symbol]
	old := pos.Quantity
	next := old + signed

	switch {
	case next == 0 || math.Abs(next) < 1e-12:
		delete(t.positions, symbol)
		return
	case old == 0 || old*next < 0:
		// Opened, or flipped through zero.
		pos.EntryPrice = price
	case math.Abs(next) > math.Abs(old):
		pos.EntryPrice = (pos.EntryPrice*math.Abs(old) + price*math.Abs(signed)) / math.Abs(next)
	}

	mult := 1.0
	if rule, ok := t.lots.Rule(symbol); ok && rule.ContractMultiplier.IsPositive() {
		mult = rule.ContractMultiplier.InexactFloat64()
	}
	pos.Venue = t.venue
	pos.Symbol = symbol
	pos.Quantity = next
	pos.Direction = domain.DirectionOf(next)
	pos.ContractMultiplier = mult
	pos.MarkPrice = price
	pos.Notional = math.Abs(next) * price * mult
	pos.UpdatedAt = t.now()
	t.positions[symbol] = pos
}

// Positions returns every open position marked to the current mid.
func (t *Trader) Positions(_ context.Context) ([]domain.Position, error) {
	if !t.IsAlive() {
		return nil, fmt.Errorf("paper: %s: %w", t.venue, domain.ErrNotAlive)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Position, 0, len(t.positions))
	for symbol, pos := range t.positions {
		if top, ok := t.quotes.Get(t.venue, symbol); ok && top.Mid() > 0 {
			pos.MarkPrice = top.Mid()
			pos.Notional = math.Abs(pos.Quantity) * pos.MarkPrice * pos.ContractMultiplier
		}
		out = append(out, pos)
	}
	return out, nil
}

var (
	_ domain.Trader         = (*Trader)(nil)
	_ domain.LeverageSetter = (*Trader)(nil)
)
