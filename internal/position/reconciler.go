package position

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/alanyoungcy/swaparb/internal/metrics"
)

// DefaultReconcileInterval is the reconciliation cadence.
const DefaultReconcileInterval = time.Second

// ResultObserver receives every dispatch result.
type ResultObserver interface {
	Observe(ctx context.Context, res domain.DispatchResult) bool
}

// Observers fans each result out to every observer in order.
type Observers []ResultObserver

// Observe implements ResultObserver. It reports whether any observer did.
func (o Observers) Observe(ctx context.Context, res domain.DispatchResult) bool {
	handled := false
	for _, ob := range o {
		if ob.Observe(ctx, res) {
			handled = true
		}
	}
	return handled
}

// Reconciler keeps the SwapBook in step with the two venue books and
// consumes the dispatcher's results. An accepted order triggers an early
// position refresh on its venue so the swap appears without waiting for the
// next poll.
type Reconciler struct {
	bookA, bookB *Book
	swaps        *SwapBook
	results      <-chan domain.DispatchResult
	observer     ResultObserver
	pollers      map[string]*Poller
	interval     time.Duration
	logger       *slog.Logger
}

// NewReconciler creates a reconciler. observer and pollers may be nil.
func NewReconciler(bookA, bookB *Book, swaps *SwapBook, results <-chan domain.DispatchResult, observer ResultObserver, pollers []*Poller, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	byVenue := make(map[string]*Poller, len(pollers))
	for _, p := range pollers {
		byVenue[p.book.Venue()] = p
	}
	return &Reconciler{
		bookA:    bookA,
		bookB:    bookB,
		swaps:    swaps,
		results:  results,
		observer: observer,
		pollers:  byVenue,
		interval: interval,
		logger:   logger.With(slog.String("component", "reconciler")),
	}
}

// ReconcileOnce runs one reconciliation pass.
func (r *Reconciler) ReconcileOnce() {
	added, dropped := r.swaps.Reconcile(r.bookA, r.bookB)
	for _, sym := range added {
		sp, _ := r.swaps.Get(sym)
		r.logger.Info("swap position opened",
			slog.String("symbol", sym),
			slog.String("long_venue", sp.LongLeg.Venue),
			slog.String("short_venue", sp.ShortLeg.Venue),
			slog.Float64("basis_bp", sp.BasisBp()),
		)
	}
	for _, sym := range dropped {
		r.logger.Info("swap position closed", slog.String("symbol", sym))
	}
	metrics.SwapPositions.Set(float64(r.swaps.Len()))
}

// Run reconciles on every tick and drains dispatch results until ctx is
// cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.ReconcileOnce()
		case res, ok := <-r.results:
			if !ok {
				r.results = nil
				continue
			}
			r.handleResult(ctx, res)
		}
	}
}

func (r *Reconciler) handleResult(ctx context.Context, res domain.DispatchResult) {
	if r.observer != nil {
		r.observer.Observe(ctx, res)
	}
	if !res.OK() {
		return
	}
	if p, ok := r.pollers[res.Order.Venue]; ok {
		p.Trigger()
	}
}
