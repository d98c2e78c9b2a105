// Package executor places orders on venues without waiting for them and
// pairs the results of the two legs of each swap.
package executor

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
	resultBuffer    = 256
	dedupTTL        = 10 * time.Minute
	cleanupInterval = time.Minute
)

// Dispatcher submits each order on its own goroutine and reports every
// outcome on Results. It never retries: a failed order is reported once and
// forgotten.
type Dispatcher struct {
	traders map[string]domain.Trader
	dedup   *Dedup
	results chan domain.DispatchResult
	timeout time.Duration
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given venue clients. timeout
// bounds each PlaceOrder call; zero means no bound beyond the caller's ctx.
func NewDispatcher(traders []domain.Trader, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	byVenue := make(map[string]domain.Trader, len(traders))
	for _, t := range traders {
		byVenue[t.Venue()] = t
	}
	return &Dispatcher{
		traders: byVenue,
		dedup:   NewDedup(dedupTTL),
		results: make(chan domain.DispatchResult, resultBuffer),
		timeout: timeout,
		logger:  logger.With(slog.String("component", "dispatcher")),
	}
}

// Results is consumed by the reconciler.
func (d *Dispatcher) Results() <-chan domain.DispatchResult { return d.results }

// Dispatch validates order and places it asynchronously. It returns an error
// only when the order cannot be sent at all; venue failures arrive on
// Results.
func (d *Dispatcher) Dispatch(ctx context.Context, order domain.Order) error {
	if err := order.Validate(); err != nil {
		return fmt.Errorf("executor: dispatch: %w", err)
	}
	trader, ok := d.traders[order.Venue]
	if !ok {
		return fmt.Errorf("executor: dispatch: no trader for venue %q", order.Venue)
	}
	if d.dedup.IsDuplicate(order.ClientID) {
		return fmt.Errorf("executor: dispatch: duplicate client id %s: %w", order.ClientID, domain.ErrInvalidOrder)
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	d.logger.Info("dispatching order",
		slog.String("client_id", order.ClientID),
		slog.String("group_id", order.GroupID),
		slog.String("intent", string(order.Intent)),
		slog.String("venue", order.Venue),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("kind", string(order.Kind)),
		slog.Float64("qty", order.Quantity),
		slog.Float64("price", order.Price),
	)

	d.wg.Add(1)
	go d.place(ctx, trader, order)
	return nil
}

func (d *Dispatcher) place(ctx context.Context, trader domain.Trader, order domain.Order) {
	defer d.wg.Done()

	placeCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		placeCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	ack, err := trader.PlaceOrder(placeCtx, order)
	metrics.OrderLatency.WithLabelValues(order.Venue).Observe(time.Since(start).Seconds())

	res := domain.DispatchResult{Order: order, Ack: ack, Err: err}
	if err != nil {
		metrics.OrdersDispatched.WithLabelValues(order.Venue, "failed").Inc()
		d.logger.Error("order failed",
			slog.String("client_id", order.ClientID),
			slog.String("venue", order.Venue),
			slog.String("symbol", order.Symbol),
			slog.String("error", err.Error()),
		)
	} else {
		metrics.OrdersDispatched.WithLabelValues(order.Venue, "accepted").Inc()
		res.Order.Completed = true
		res.Order.Ref = ack.Ref
	}

	select {
	case d.results <- res:
	case <-ctx.Done():
		d.logger.Warn("dispatch result dropped on shutdown", slog.String("client_id", order.ClientID))
	}
}

// RunCleanup prunes the idempotency window until ctx is cancelled.
func (d *Dispatcher) RunCleanup(ctx context.Context) error {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.dedup.Cleanup()
		}
	}
}

// Wait blocks until every in-flight order has reported.
func (d *Dispatcher) Wait() { d.wg.Wait() }
