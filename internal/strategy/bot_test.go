package strategy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/alanyoungcy/swaparb/internal/feed"
	"github.com/alanyoungcy/swaparb/internal/orderbook"
	"github.com/alanyoungcy/swaparb/internal/position"
	"github.com/alanyoungcy/swaparb/internal/supervisor"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	venueA = "binance"
	venueB = "bybit"
)

type staticConfig struct {
	mu  sync.Mutex
	cfg domain.StrategyConfig
}

func (s *staticConfig) Current() domain.StrategyConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

type fakeTrader struct {
	venue   string
	qty     float64
	sizeErr error
	alive   bool
	tick    float64

	leverage map[string]int
}

func (f *fakeTrader) RoundPrice(_ string, price float64) float64 {
	if f.tick <= 0 {
		return price
	}
	return math.Round(price/f.tick) * f.tick
}

func (f *fakeTrader) Venue() string { return f.venue }
func (f *fakeTrader) PlaceOrder(context.Context, domain.Order) (domain.OrderAck, error) {
	return domain.OrderAck{}, nil
}
func (f *fakeTrader) OrderSize(string, float64, float64) (float64, error)  { return f.qty, f.sizeErr }
func (f *fakeTrader) Positions(context.Context) ([]domain.Position, error) { return nil, nil }
func (f *fakeTrader) IsAlive() bool                                        { return f.alive }
func (f *fakeTrader) SetLeverage(_ context.Context, symbol string, lev int) error {
	if f.leverage == nil {
		f.leverage = map[string]int{}
	}
	f.leverage[symbol] = lev
	return nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	orders []domain.Order
}

func (d *recordingDispatcher) Dispatch(_ context.Context, o domain.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orders = append(d.orders, o)
	return nil
}

func (d *recordingDispatcher) all() []domain.Order {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Order(nil), d.orders...)
}

type fakeHealth struct{ err atomic.Value }

func (h *fakeHealth) Check() error {
	if v := h.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

type fakeKill struct {
	mu      sync.Mutex
	reasons []string
}

func (k *fakeKill) DisableTrading(_ context.Context, reason string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.reasons = append(k.reasons, reason)
	return nil
}

type harness struct {
	bot      *Bot
	cfg      *staticConfig
	tickers  *feed.TickerBook
	books    map[string]*orderbook.Collection
	pos      map[string]*position.Book
	swaps    *position.SwapBook
	disp     *recordingDispatcher
	health   *fakeHealth
	kill     *fakeKill
	traders  map[string]*fakeTrader
	clock    time.Time
	clockMu  sync.Mutex
	idSerial atomic.Int64
}

func baseConfig() domain.StrategyConfig {
	return domain.StrategyConfig{
		ExchangeA:         venueA,
		ExchangeB:         venueB,
		ExchangeAMarkets:  []string{"BTCUSDT"},
		ExchangeBMarkets:  []string{"BTCUSDT"},
		UpperBoundEntryBp: 8,
		ExitBp:            5,
		MaxTradeSizeUSD:   1000,
		MaxPosition:       3,
		DepthThresholdBp:  20,
		MaxAbsSpreadBp:    500,
		IsTrading:         true,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cfg:     &staticConfig{cfg: baseConfig()},
		tickers: feed.NewTickerBook(),
		books: map[string]*orderbook.Collection{
			venueA: orderbook.NewCollection(venueA),
			venueB: orderbook.NewCollection(venueB),
		},
		pos: map[string]*position.Book{
			venueA: position.NewBook(venueA),
			venueB: position.NewBook(venueB),
		},
		swaps:  position.NewSwapBook(),
		disp:   &recordingDispatcher{},
		health: &fakeHealth{},
		kill:   &fakeKill{},
		traders: map[string]*fakeTrader{
			venueA: {venue: venueA, qty: 0.01, alive: true},
			venueB: {venue: venueB, qty: 0.01, alive: true},
		},
		clock: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	traders := map[string]domain.Trader{venueA: h.traders[venueA], venueB: h.traders[venueB]}
	h.bot = NewBot(Deps{
		Config:     h.cfg,
		Tickers:    h.tickers,
		Books:      h.books,
		Positions:  h.pos,
		Swaps:      h.swaps,
		Traders:    traders,
		Dispatcher: h.disp,
		Health:     h.health,
		Kill:       h.kill,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(h.now),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", h.idSerial.Add(1)) }),
		WithLoopInterval(time.Millisecond),
	)
	return h
}

// rebuild replaces the harness bot with one using health.
func (h *harness) rebuild(health HealthChecker, opts ...Option) {
	traders := map[string]domain.Trader{venueA: h.traders[venueA], venueB: h.traders[venueB]}
	opts = append([]Option{WithClock(h.now), WithLoopInterval(time.Millisecond)}, opts...)
	h.bot = NewBot(Deps{
		Config:     h.cfg,
		Tickers:    h.tickers,
		Books:      h.books,
		Positions:  h.pos,
		Swaps:      h.swaps,
		Traders:    traders,
		Dispatcher: h.disp,
		Health:     health,
		Kill:       h.kill,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func (h *harness) now() time.Time {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	return h.clock
}

func (h *harness) advance(d time.Duration) {
	h.clockMu.Lock()
	h.clock = h.clock.Add(d)
	h.clockMu.Unlock()
}

func (h *harness) tick(venue string, bid, ask float64) {
	h.tickers.Set(domain.TopOfBook{Venue: venue, Symbol: "BTCUSDT", BidPrice: bid, BidQty: 5, AskPrice: ask, AskQty: 5})
}

func (h *harness) openSwap(longVenue, shortVenue string, longEntry, shortEntry float64) {
	h.pos[longVenue].Upsert(domain.Position{Symbol: "BTCUSDT", Quantity: 0.01, EntryPrice: longEntry, MarkPrice: longEntry})
	h.pos[shortVenue].Upsert(domain.Position{Symbol: "BTCUSDT", Quantity: -0.01, EntryPrice: shortEntry, MarkPrice: shortEntry})
	h.swaps.Reconcile(h.pos[venueA], h.pos[venueB])
}

func TestCrossSpreadBp(t *testing.T) {
	a := domain.TopOfBook{BidPrice: 100.10, AskPrice: 100.12}
	b := domain.TopOfBook{BidPrice: 99.98, AskPrice: 100.00}
	bp, ok := CrossSpreadBp(a, b)
	require.True(t, ok)
	assert.InDelta(t, 10.0, bp, 1e-9)

	bp, ok = CrossSpreadBp(b, a)
	require.True(t, ok)
	assert.InDelta(t, -10.0, bp, 1e-9)

	bp, ok = CrossSpreadBp(domain.TopOfBook{BidPrice: 100, AskPrice: 101}, domain.TopOfBook{BidPrice: 100.5, AskPrice: 101.5})
	require.True(t, ok)
	assert.Zero(t, bp)

	_, ok = CrossSpreadBp(domain.TopOfBook{BidPrice: 0, AskPrice: 1}, b)
	assert.False(t, ok)
}

func TestEntry_SellsRichVenueBuysCheapVenue(t *testing.T) {
	h := newHarness(t)
	h.tick(venueA, 100.10, 100.11)
	h.tick(venueB, 99.99, 100.00)

	require.NoError(t, h.bot.Step(context.Background()))

	orders := h.disp.all()
	require.Len(t, orders, 2)
	sell, buy := orders[0], orders[1]
	assert.Equal(t, venueA, sell.Venue)
	assert.Equal(t, domain.OrderSideSell, sell.Side)
	assert.Equal(t, venueB, buy.Venue)
	assert.Equal(t, domain.OrderSideBuy, buy.Side)
	assert.Equal(t, sell.GroupID, buy.GroupID)
	assert.Equal(t, domain.OrderKindMarket, sell.Kind)
	assert.Equal(t, domain.IntentEntry, sell.Intent)
	assert.NotEqual(t, sell.ClientID, buy.ClientID)

	spread, ok := h.bot.Spreads().Get("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 10.0, spread, 1e-9)
	assert.Equal(t, domain.StateEntering, h.bot.State("BTCUSDT"))

	// Still ENTERING on the next iteration: no second pair.
	require.NoError(t, h.bot.Step(context.Background()))
	assert.Len(t, h.disp.all(), 2)
}

func TestEntry_NegativeSpreadBuysA(t *testing.T) {
	h := newHarness(t)
	h.tick(venueA, 99.99, 100.00)
	h.tick(venueB, 100.10, 100.11)

	require.NoError(t, h.bot.Step(context.Background()))
	orders := h.disp.all()
	require.Len(t, orders, 2)
	assert.Equal(t, venueB, orders[0].Venue)
	assert.Equal(t, domain.OrderSideSell, orders[0].Side)
	assert.Equal(t, venueA, orders[1].Venue)
	assert.Equal(t, domain.OrderSideBuy, orders[1].Side)
}

func TestEntry_LimitModeUsesOpposingTouch(t *testing.T) {
	h := newHarness(t)
	cfg := baseConfig()
	cfg.LongLegExecutionMode = domain.OrderKindLimit
	h.cfg.cfg = cfg
	h.tick(venueA, 100.10, 100.11)
	h.tick(venueB, 99.99, 100.00)

	require.NoError(t, h.bot.Step(context.Background()))
	orders := h.disp.all()
	require.Len(t, orders, 2)
	assert.Equal(t, domain.OrderKindMarket, orders[0].Kind)
	assert.Zero(t, orders[0].Price)
	assert.Equal(t, domain.OrderKindLimit, orders[1].Kind)
	assert.Equal(t, 100.00, orders[1].Price)
}

func TestEntry_LimitPriceOnTickGrid(t *testing.T) {
	h := newHarness(t)
	cfg := baseConfig()
	cfg.LongLegExecutionMode = domain.OrderKindLimit
	h.cfg.cfg = cfg
	h.traders[venueB].tick = 0.05
	h.tick(venueA, 100.10, 100.11)
	h.tick(venueB, 99.99, 100.01)

	require.NoError(t, h.bot.Step(context.Background()))
	orders := h.disp.all()
	require.Len(t, orders, 2)
	assert.Equal(t, venueB, orders[1].Venue)
	assert.InDelta(t, 100.00, orders[1].Price, 1e-9)
}

func TestEntry_Skips(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"below threshold", func(h *harness) {
			h.tick(venueA, 100.05, 100.06)
			h.tick(venueB, 99.99, 100.00)
		}},
		{"trading disabled", func(h *harness) {
			h.cfg.cfg.IsTrading = false
			h.tick(venueA, 100.10, 100.11)
			h.tick(venueB, 99.99, 100.00)
		}},
		{"wide venue book", func(h *harness) {
			h.tick(venueA, 100.10, 100.50)
			h.tick(venueB, 99.99, 100.00)
		}},
		{"unknown symbol on one venue", func(h *harness) {
			h.traders[venueB].sizeErr = domain.ErrUnknownSymbol
			h.tick(venueA, 100.10, 100.11)
			h.tick(venueB, 99.99, 100.00)
		}},
		{"rounded size overshoots notional", func(h *harness) {
			h.traders[venueA].qty = 25
			h.tick(venueA, 100.10, 100.11)
			h.tick(venueB, 99.99, 100.00)
		}},
		{"max positions reached", func(h *harness) {
			h.cfg.cfg.MaxPosition = 1
			h.cfg.cfg.ExchangeAMarkets = []string{"BTCUSDT", "ETHUSDT"}
			h.cfg.cfg.ExchangeBMarkets = []string{"BTCUSDT", "ETHUSDT"}
			h.pos[venueA].Upsert(domain.Position{Symbol: "ETHUSDT", Quantity: 1, EntryPrice: 10})
			h.pos[venueB].Upsert(domain.Position{Symbol: "ETHUSDT", Quantity: -1, EntryPrice: 10})
			h.swaps.Reconcile(h.pos[venueA], h.pos[venueB])
			h.tick(venueA, 100.10, 100.11)
			h.tick(venueB, 99.99, 100.00)
		}},
		{"missing ticker", func(h *harness) {
			h.tick(venueA, 100.10, 100.11)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tc.setup(h)
			require.NoError(t, h.bot.Step(context.Background()))
			assert.Empty(t, h.disp.all())
		})
	}
}

func TestEntry_DepthCheck(t *testing.T) {
	h := newHarness(t)
	h.cfg.cfg.IsDepthCheck = true
	h.cfg.cfg.DepthPct = 0.5
	h.tick(venueA, 100.10, 100.11)
	h.tick(venueB, 99.99, 100.00)

	// No depth books yet: skipped.
	require.NoError(t, h.bot.Step(context.Background()))
	assert.Empty(t, h.disp.all())

	bookA := h.books[venueA].Add("BTCUSDT")
	bookA.ApplyLevel(domain.SideBid, 100.10, 1)
	bookA.ApplyLevel(domain.SideAsk, 100.11, 1)
	bookB := h.books[venueB].Add("BTCUSDT")
	bookB.ApplyLevel(domain.SideBid, 99.99, 1)
	bookB.ApplyLevel(domain.SideAsk, 100.00, 1)

	require.NoError(t, h.bot.Step(context.Background()))
	assert.Len(t, h.disp.all(), 2)
}

func TestEntry_IdempotentUnderConcurrency(t *testing.T) {
	h := newHarness(t)
	h.tick(venueA, 100.10, 100.11)
	h.tick(venueB, 99.99, 100.00)
	cfg := h.cfg.Current()
	pair := cfg.Pairs()[0]

	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.bot.Evaluate(context.Background(), cfg, pair)
		}()
	}
	wg.Wait()
	assert.Len(t, h.disp.all(), 2)
}

func TestEntry_TimeoutReleasesSymbol(t *testing.T) {
	h := newHarness(t)
	h.tick(venueA, 100.10, 100.11)
	h.tick(venueB, 99.99, 100.00)

	require.NoError(t, h.bot.Step(context.Background()))
	require.Len(t, h.disp.all(), 2)

	h.advance(31 * time.Second)
	require.NoError(t, h.bot.Step(context.Background()))
	assert.Len(t, h.disp.all(), 4)
}

func TestEntry_SwapClearsEntering(t *testing.T) {
	h := newHarness(t)
	h.tick(venueA, 100.10, 100.11)
	h.tick(venueB, 99.99, 100.00)
	require.NoError(t, h.bot.Step(context.Background()))

	h.openSwap(venueB, venueA, 100.00, 100.10)
	require.NoError(t, h.bot.Step(context.Background()))
	assert.Equal(t, domain.StateInSwap, h.bot.State("BTCUSDT"))
	assert.False(t, h.bot.guard.isEntering("BTCUSDT"))
}

func TestUnwind_TriggersWhenSpreadReverts(t *testing.T) {
	h := newHarness(t)
	h.openSwap(venueB, venueA, 100.00, 100.10) // entry basis 10bp
	h.tick(venueB, 100.00, 100.01)             // long venue bid
	h.tick(venueA, 100.00, 100.01)             // short venue ask: current 1bp

	require.NoError(t, h.bot.Step(context.Background()))

	orders := h.disp.all()
	require.Len(t, orders, 2)
	byVenue := map[string]domain.Order{orders[0].Venue: orders[0], orders[1].Venue: orders[1]}
	assert.Equal(t, domain.OrderSideSell, byVenue[venueB].Side)
	assert.Equal(t, domain.OrderSideBuy, byVenue[venueA].Side)
	for _, o := range orders {
		assert.True(t, o.ReduceOnly)
		assert.True(t, o.CloseOnly)
		assert.Equal(t, domain.OrderKindMarket, o.Kind)
		assert.Equal(t, domain.IntentUnwind, o.Intent)
		assert.Equal(t, 0.01, o.Quantity)
	}

	assert.False(t, h.swaps.Has("BTCUSDT"))
	_, ok := h.pos[venueA].Get("BTCUSDT")
	assert.False(t, ok)
	assert.Equal(t, domain.StateFlat, h.bot.State("BTCUSDT"))
}

func TestUnwind_RunsWhileTradingDisabled(t *testing.T) {
	h := newHarness(t)
	h.cfg.cfg.IsTrading = false
	h.openSwap(venueB, venueA, 100.00, 100.10)
	h.tick(venueB, 100.00, 100.01)
	h.tick(venueA, 100.00, 100.01)

	require.NoError(t, h.bot.Step(context.Background()))
	assert.Len(t, h.disp.all(), 2)
}

func TestUnwind_HoldsInsideExitBand(t *testing.T) {
	h := newHarness(t)
	h.openSwap(venueB, venueA, 100.00, 100.10)
	h.tick(venueB, 100.00, 100.01)
	h.tick(venueA, 100.07, 100.08) // current 8bp, |8-10| <= 5

	require.NoError(t, h.bot.Step(context.Background()))
	assert.Empty(t, h.disp.all())
	assert.Equal(t, domain.StateInSwap, h.bot.State("BTCUSDT"))
}

func TestUnwind_SanityCeiling(t *testing.T) {
	h := newHarness(t)
	h.openSwap(venueB, venueA, 100.00, 100.10)
	h.tick(venueB, 100.00, 100.01)
	h.tick(venueA, 110.00, 110.01) // current ~1000bp

	require.NoError(t, h.bot.Step(context.Background()))
	assert.Empty(t, h.disp.all())
}

func TestUnwind_Cooldown(t *testing.T) {
	h := newHarness(t)
	h.openSwap(venueB, venueA, 100.00, 100.10)
	h.tick(venueB, 100.00, 100.01)
	h.tick(venueA, 100.00, 100.01)

	require.NoError(t, h.bot.Step(context.Background()))
	require.Len(t, h.disp.all(), 2)

	// Venue still reports the positions (unwind not yet filled).
	h.advance(10 * time.Second)
	h.openSwap(venueB, venueA, 100.00, 100.10)
	require.NoError(t, h.bot.Step(context.Background()))
	assert.Len(t, h.disp.all(), 2)

	h.advance(91 * time.Second)
	require.NoError(t, h.bot.Step(context.Background()))
	assert.Len(t, h.disp.all(), 4)
}

func TestHealthFailureHalts(t *testing.T) {
	h := newHarness(t)
	h.health.err.Store(errors.New("bybit market data not alive"))

	err := h.bot.Step(context.Background())
	require.ErrorIs(t, err, domain.ErrTradingHalted)
	require.Len(t, h.kill.reasons, 1)
	assert.Contains(t, h.kill.reasons[0], "bybit")
}

func TestRunHaltsWhenHealthFailsAfterStartup(t *testing.T) {
	h := newHarness(t)
	done := make(chan error, 1)
	go func() { done <- h.bot.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	h.health.err.Store(errors.New("bybit market data not alive"))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrTradingHalted)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not halt")
	}
	h.kill.mu.Lock()
	defer h.kill.mu.Unlock()
	assert.Len(t, h.kill.reasons, 1)
}

func TestRunStartupTimeoutLeavesTradingEnabled(t *testing.T) {
	h := newHarness(t)
	h.health.err.Store(errors.New("binance market data not alive"))
	h.rebuild(h.health, WithStartupTimeout(30*time.Millisecond))

	err := h.bot.Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrTradingHalted)
	assert.Contains(t, err.Error(), "not ready")
	assert.Empty(t, h.kill.reasons)
}

// bookTickerServer accepts a subscribe frame and then streams bookTicker
// frames until the client goes away.
func bookTickerServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		frame := []byte(`{"e":"bookTicker","s":"BTCUSDT","b":"100.0","B":"1","a":"100.1","A":"1","T":1}`)
		for {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRunWaitsForFeedsBeforeCheckingHealth(t *testing.T) {
	h := newHarness(t)
	url := bookTickerServer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	collectors := []domain.MarketDataCollector{
		feed.NewWSCollector(venueA, url, feed.NewBinanceDecoder(venueA, 20), time.Minute, logger),
		feed.NewWSCollector(venueB, url, feed.NewBinanceDecoder(venueB, 20), time.Minute, logger),
	}
	for _, c := range collectors {
		require.NoError(t, c.Subscribe(context.Background(), []string{"BTCUSDT"}))
	}
	traders := []domain.Trader{h.traders[venueA], h.traders[venueB]}
	h.rebuild(supervisor.NewHealth(h.cfg, collectors, traders))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	for _, c := range collectors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Run(ctx)
		}()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-c.Events():
				}
			}
		}()
	}
	done := make(chan error, 1)
	go func() { done <- h.bot.Run(ctx) }()

	time.Sleep(300 * time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	default:
	}
	for _, c := range collectors {
		assert.True(t, c.IsAlive(), c.Venue())
	}
	h.kill.mu.Lock()
	assert.Empty(t, h.kill.reasons)
	h.kill.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	wg.Wait()
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.bot.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

type fakeCollector struct {
	venue  string
	subs   []string
	unsubs []string
}

func (c *fakeCollector) Venue() string { return c.venue }
func (c *fakeCollector) Subscribe(_ context.Context, s []string) error {
	c.subs = append(c.subs, s...)
	return nil
}
func (c *fakeCollector) Unsubscribe(_ context.Context, s []string) error {
	c.unsubs = append(c.unsubs, s...)
	return nil
}
func (c *fakeCollector) Events() <-chan domain.MarketEvent { return nil }
func (c *fakeCollector) Run(context.Context) error         { return nil }
func (c *fakeCollector) IsAlive() bool                     { return true }

func TestOnConfigChange(t *testing.T) {
	h := newHarness(t)
	prev := baseConfig()
	cur := baseConfig()
	cur.Leverage = 5
	cur.ExchangeAMarkets = []string{"BTCUSDT", "ETHUSDT"}
	cur.ExchangeBMarkets = []string{"BTCUSDT", "ETH-USDT"}

	ca, cb := &fakeCollector{venue: venueA}, &fakeCollector{venue: venueB}
	err := h.bot.OnConfigChange(context.Background(), prev, cur, map[string]domain.MarketDataCollector{venueA: ca, venueB: cb})
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, ca.subs)
	assert.Equal(t, []string{"BTCUSDT", "ETH-USDT"}, cb.subs)
	assert.Equal(t, 5, h.traders[venueA].leverage["ETHUSDT"])
	assert.Equal(t, 5, h.traders[venueB].leverage["ETH-USDT"])

	states := h.bot.States()
	assert.Equal(t, domain.StateFlat, states["BTCUSDT"])
}

func TestOnConfigChange_DropsRemovedInstruments(t *testing.T) {
	h := newHarness(t)
	prev := baseConfig()
	prev.ExchangeAMarkets = []string{"BTCUSDT", "ETHUSDT"}
	prev.ExchangeBMarkets = []string{"BTCUSDT", "ETHUSDT"}
	cur := baseConfig()

	for _, venue := range []string{venueA, venueB} {
		h.books[venue].Add("BTCUSDT")
		h.books[venue].Add("ETHUSDT")
	}
	h.bot.Spreads().Set("ETHUSDT", 3)
	h.bot.Spreads().Set("BTCUSDT", 4)

	ca, cb := &fakeCollector{venue: venueA}, &fakeCollector{venue: venueB}
	require.NoError(t, h.bot.OnConfigChange(context.Background(), prev, cur,
		map[string]domain.MarketDataCollector{venueA: ca, venueB: cb}))

	assert.Equal(t, []string{"ETHUSDT"}, ca.unsubs)
	assert.Equal(t, []string{"ETHUSDT"}, cb.unsubs)
	for _, venue := range []string{venueA, venueB} {
		assert.Equal(t, []string{"BTCUSDT"}, h.books[venue].Symbols())
	}
	_, ok := h.bot.Spreads().Get("ETHUSDT")
	assert.False(t, ok)
	_, ok = h.bot.Spreads().Get("BTCUSDT")
	assert.True(t, ok)
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t)
	h.openSwap(venueA, venueB, 100, 100.1)
	h.pos[venueA].Upsert(domain.Position{Symbol: "ETHUSDT", Quantity: 2, EntryPrice: 10, MarkPrice: 11})
	h.bot.Spreads().Set("BTCUSDT", 4)

	snap := h.bot.Snapshot(h.now())
	assert.Equal(t, h.now(), snap.Timestamp)
	assert.Len(t, snap.Positions[venueA], 2)
	assert.InDelta(t, 2.0, snap.PnL[venueA], 1e-9)
	assert.InDelta(t, 0.0, snap.PnL[venueB], 1e-9)
	assert.Contains(t, snap.Swaps, "BTCUSDT")
	assert.Contains(t, snap.Spreads, "BTCUSDT")
	assert.Equal(t, domain.StateInSwap, snap.States["BTCUSDT"])
}
