package feed

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/alanyoungcy/swaparb/internal/orderbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkPoint struct {
	topic  string
	tags   map[string]string
	fields map[string]float64
	ts     time.Time
}

type fakeSink struct {
	mu     sync.Mutex
	points []sinkPoint
}

func (s *fakeSink) Publish(_ context.Context, topic string, tags map[string]string, fields map[string]float64, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, sinkPoint{topic, tags, fields, ts})
	return nil
}

func (s *fakeSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time { return c.t }

func newTestNormalizer(sink domain.StateSink, clock *stepClock) (*Normalizer, *orderbook.Collection, *TickerBook) {
	books := orderbook.NewCollection("bybit")
	tickers := NewTickerBook()
	n := NewNormalizer(books, tickers, sink, discardLogger(), WithClock(clock.now))
	return n, books, tickers
}

func TestNormalizer_SnapshotThenDelta(t *testing.T) {
	clock := &stepClock{t: recvAt}
	n, books, tickers := newTestNormalizer(nil, clock)
	ctx := context.Background()

	n.Handle(ctx, domain.MarketEvent{
		Kind:   domain.EventBookSnapshot,
		Venue:  "bybit",
		Symbol: "BTCUSDT",
		Bids:   []domain.PriceLevel{{Price: 100, Quantity: 1}, {Price: 99, Quantity: 2}},
		Asks:   []domain.PriceLevel{{Price: 101, Quantity: 3}},
	})

	top, ok := tickers.Get("bybit", "BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 100.0, top.BidPrice)
	assert.Equal(t, 101.0, top.AskPrice)
	assert.Equal(t, recvAt, top.Timestamp)

	clock.t = recvAt.Add(time.Second)
	n.Handle(ctx, domain.MarketEvent{
		Kind:   domain.EventBookDelta,
		Symbol: "BTCUSDT",
		Bids:   []domain.PriceLevel{{Price: 100, Quantity: 0}},
		Asks:   []domain.PriceLevel{{Price: 100.5, Quantity: 1}},
	})

	top, _ = tickers.Get("bybit", "BTCUSDT")
	assert.Equal(t, 99.0, top.BidPrice)
	assert.Equal(t, 100.5, top.AskPrice)

	book, ok := books.Get("BTCUSDT")
	require.True(t, ok)
	bids, asks := book.Len()
	assert.Equal(t, 1, bids)
	assert.Equal(t, 2, asks)
}

func TestNormalizer_SnapshotReplacesBook(t *testing.T) {
	n, books, _ := newTestNormalizer(nil, &stepClock{t: recvAt})
	ctx := context.Background()

	n.Handle(ctx, domain.MarketEvent{Kind: domain.EventBookSnapshot, Symbol: "ETHUSDT",
		Bids: []domain.PriceLevel{{Price: 10, Quantity: 1}, {Price: 9, Quantity: 1}},
		Asks: []domain.PriceLevel{{Price: 11, Quantity: 1}}})
	n.Handle(ctx, domain.MarketEvent{Kind: domain.EventBookSnapshot, Symbol: "ETHUSDT",
		Bids: []domain.PriceLevel{{Price: 8, Quantity: 1}},
		Asks: []domain.PriceLevel{{Price: 12, Quantity: 1}}})

	book, _ := books.Get("ETHUSDT")
	bids, asks := book.Len()
	assert.Equal(t, 1, bids)
	assert.Equal(t, 1, asks)
}

func TestNormalizer_TopOfBookEvent(t *testing.T) {
	n, _, tickers := newTestNormalizer(nil, &stepClock{t: recvAt})
	n.Handle(context.Background(), domain.MarketEvent{
		Kind:   domain.EventTopOfBook,
		Symbol: "BTCUSDT",
		Top:    domain.TopOfBook{BidPrice: 1, AskPrice: 2},
	})
	top, ok := tickers.Get("bybit", "BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "bybit", top.Venue)
	assert.Equal(t, "BTCUSDT", top.Symbol)
}

func TestNormalizer_SamplesPerSymbol(t *testing.T) {
	sink := &fakeSink{}
	clock := &stepClock{t: recvAt}
	n, _, _ := newTestNormalizer(sink, clock)
	ctx := context.Background()

	tick := func(sym string) {
		n.Handle(ctx, domain.MarketEvent{Kind: domain.EventTopOfBook, Symbol: sym,
			Top: domain.TopOfBook{BidPrice: 1, AskPrice: 2}})
	}

	tick("BTCUSDT")
	clock.t = recvAt.Add(5 * time.Millisecond)
	tick("BTCUSDT") // inside the interval, dropped
	tick("ETHUSDT") // other symbol, kept
	clock.t = recvAt.Add(10 * time.Millisecond)
	tick("BTCUSDT")

	require.Equal(t, 3, sink.len())
	assert.Equal(t, TickerTopic, sink.points[0].topic)
	assert.Equal(t, map[string]string{"venue": "bybit", "symbol": "BTCUSDT"}, sink.points[0].tags)
	assert.Equal(t, 2.0, sink.points[0].fields["ask_price"])
}

func TestNormalizer_RunStopsOnClose(t *testing.T) {
	n, _, tickers := newTestNormalizer(nil, &stepClock{t: recvAt})
	ch := make(chan domain.MarketEvent, 1)
	ch <- domain.MarketEvent{Kind: domain.EventTopOfBook, Symbol: "BTCUSDT", Top: domain.TopOfBook{BidPrice: 1, AskPrice: 2}}
	close(ch)

	require.NoError(t, n.Run(context.Background(), ch))
	_, ok := tickers.Get("bybit", "BTCUSDT")
	assert.True(t, ok)
}
