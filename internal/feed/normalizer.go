package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/alanyoungcy/swaparb/internal/orderbook"
)

// DefaultSampleInterval bounds how often one symbol's ticks reach the sink.
const DefaultSampleInterval = 10 * time.Millisecond

// TickerTopic is the time-series topic of sampled top-of-book ticks.
const TickerTopic = "ticker"

// Normalizer consumes one venue's market events in order, applies depth to
// the venue's order books and writes the resulting top of book into the
// shared ticker book. It is the only writer of its venue's books.
type Normalizer struct {
	venue    string
	books    *orderbook.Collection
	tickers  *TickerBook
	sink     domain.StateSink
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	lastSample map[string]time.Time
}

// NormalizerOption customises a Normalizer.
type NormalizerOption func(*Normalizer)

// WithSampleInterval overrides DefaultSampleInterval.
func WithSampleInterval(d time.Duration) NormalizerOption {
	return func(n *Normalizer) {
		if d > 0 {
			n.interval = d
		}
	}
}

// WithClock overrides the receipt clock.
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) { n.now = now }
}

// NewNormalizer creates a normalizer. sink may be nil to disable sampling.
func NewNormalizer(books *orderbook.Collection, tickers *TickerBook, sink domain.StateSink, logger *slog.Logger, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		venue:      books.Venue(),
		books:      books,
		tickers:    tickers,
		sink:       sink,
		interval:   DefaultSampleInterval,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "normalizer"), slog.String("venue", books.Venue())),
		lastSample: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Run drains events until ctx is cancelled or the channel closes.
func (n *Normalizer) Run(ctx context.Context, events <-chan domain.MarketEvent) error {
	n.logger.Info("normalizer started")
	defer n.logger.Info("normalizer stopped")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			n.Handle(ctx, ev)
		}
	}
}

// Handle applies one event.
func (n *Normalizer) Handle(ctx context.Context, ev domain.MarketEvent) {
	if ev.Symbol == "" {
		return
	}
	received := n.now()

	var top domain.TopOfBook
	switch ev.Kind {
	case domain.EventTopOfBook:
		top = ev.Top
	case domain.EventBookSnapshot, domain.EventBookDelta:
		book := n.books.Add(ev.Symbol)
		bid, ask, ok := book.ApplyFrame(ev.Kind == domain.EventBookSnapshot, ev.Bids, ev.Asks)
		if !ok {
			return
		}
		top = domain.TopOfBook{BidPrice: bid.Price, BidQty: bid.Quantity, AskPrice: ask.Price, AskQty: ask.Quantity}
	default:
		return
	}

	top.Venue = n.venue
	top.Symbol = ev.Symbol
	top.Timestamp = received
	n.tickers.Set(top)
	n.sample(ctx, top)
}

func (n *Normalizer) sample(ctx context.Context, top domain.TopOfBook) {
	if n.sink == nil {
		return
	}
	if last, ok := n.lastSample[top.Symbol]; ok && top.Timestamp.Sub(last) < n.interval {
		return
	}
	n.lastSample[top.Symbol] = top.Timestamp

	tags := map[string]string{"venue": top.Venue, "symbol": top.Symbol}
	fields := map[string]float64{
		"bid_price": top.BidPrice,
		"bid_qty":   top.BidQty,
		"ask_price": top.AskPrice,
		"ask_qty":   top.AskQty,
	}
	if err := n.sink.Publish(ctx, TickerTopic, tags, fields, top.Timestamp); err != nil {
		n.logger.Debug("ticker sample publish failed",
			slog.String("symbol", top.Symbol),
			slog.String("error", err.Error()),
		)
	}
}
