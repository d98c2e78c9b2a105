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

// EventUnhedgedLeg is the notifier event raised when only one leg of a
// group was accepted.
const EventUnhedgedLeg = "unhedged_leg"

const legsPerGroup = 2

type pendingGroup struct {
	results   []domain.DispatchResult
	firstSeen time.Time
	timer     *time.Timer
}

// LegTracker pairs the dispatch results of the two legs sharing a GroupID.
// When exactly one leg was accepted it alerts; it never places a
// compensating order.
type LegTracker struct {
	mu       sync.Mutex
	groups   map[string]*pendingGroup
	maxGap   time.Duration
	notifier domain.Notifier
	logger   *slog.Logger
}

// NewLegTracker creates a tracker. Groups still missing a leg after maxGap
// are logged and discarded.
func NewLegTracker(maxGap time.Duration, notifier domain.Notifier, logger *slog.Logger) *LegTracker {
	return &LegTracker{
		groups:   make(map[string]*pendingGroup),
		maxGap:   maxGap,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "leg_tracker")),
	}
}

// Observe records one result. It returns true once the result completed
// its group.
func (t *LegTracker) Observe(ctx context.Context, res domain.DispatchResult) bool {
	groupID := res.Order.GroupID
	if groupID == "" {
		return false
	}

	t.mu.Lock()
	g, ok := t.groups[groupID]
	if !ok {
		g = &pendingGroup{firstSeen: time.Now()}
		g.timer = time.AfterFunc(t.maxGap, func() { t.expire(groupID) })
		t.groups[groupID] = g
	}
	g.results = append(g.results, res)
	if len(g.results) < legsPerGroup {
		t.mu.Unlock()
		return false
	}
	g.timer.Stop()
	delete(t.groups, groupID)
	results := g.results
	t.mu.Unlock()

	t.complete(ctx, groupID, results)
	return true
}

// Pending returns the number of groups waiting for a leg.
func (t *LegTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.groups)
}

func (t *LegTracker) expire(groupID string) {
	t.mu.Lock()
	g, ok := t.groups[groupID]
	if ok {
		delete(t.groups, groupID)
	}
	t.mu.Unlock()
	if ok {
		t.logger.Warn("leg group timed out",
			slog.String("group_id", groupID),
			slog.Int("received", len(g.results)),
			slog.Int("expected", legsPerGroup),
		)
	}
}

func (t *LegTracker) complete(ctx context.Context, groupID string, results []domain.DispatchResult) {
	var ok, failed []domain.DispatchResult
	for _, r := range results {
		if r.OK() {
			ok = append(ok, r)
		} else {
			failed = append(failed, r)
		}
	}

	switch {
	case len(failed) == 0:
		t.logger.Info("leg group filled", slog.String("group_id", groupID))
	case len(ok) == 0:
		t.logger.Warn("leg group failed on both venues",
			slog.String("group_id", groupID),
			slog.String("symbol", results[0].Order.Symbol),
		)
	default:
		metrics.UnhedgedLegs.Inc()
		good, bad := ok[0].Order, failed[0]
		msg := fmt.Sprintf("%s %s: %s %s %.8g on %s accepted, %s %s on %s failed: %v",
			good.Intent, good.Symbol,
			good.Side, good.Symbol, good.Quantity, good.Venue,
			bad.Order.Side, bad.Order.Symbol, bad.Order.Venue, bad.Err)
		t.logger.Error("unhedged leg",
			slog.String("group_id", groupID),
			slog.String("detail", msg),
		)
		if t.notifier != nil {
			if err := t.notifier.Notify(ctx, EventUnhedgedLeg, "Unhedged leg", msg); err != nil {
				t.logger.Warn("unhedged leg notify failed", slog.String("error", err.Error()))
			}
		}
	}
}
