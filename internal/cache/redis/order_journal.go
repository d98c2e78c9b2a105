package redis

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// OrderJournal appends every dispatch result to the bot's orders stream so
// operators can audit what was sent and what the venue answered.
type OrderJournal struct {
	bus    *SignalBus
	botID  string
	logger *slog.Logger
}

// NewOrderJournal creates a journal for botID.
func NewOrderJournal(c *Client, botID string, logger *slog.Logger) *OrderJournal {
	return &OrderJournal{
		bus:    NewSignalBus(c),
		botID:  botID,
		logger: logger.With(slog.String("component", "order_journal")),
	}
}

// Observe appends res and reports whether the write succeeded.
func (j *OrderJournal) Observe(ctx context.Context, res domain.DispatchResult) bool {
	o := res.Order
	fields := map[string]any{
		"client_id":   o.ClientID,
		"group_id":    o.GroupID,
		"intent":      string(o.Intent),
		"venue":       o.Venue,
		"symbol":      o.Symbol,
		"side":        string(o.Side),
		"kind":        string(o.Kind),
		"qty":         strconv.FormatFloat(o.Quantity, 'f', -1, 64),
		"price":       strconv.FormatFloat(o.Price, 'f', -1, 64),
		"reduce_only": strconv.FormatBool(o.ReduceOnly),
		"created_at":  o.CreatedAt.UTC().Format(time.RFC3339Nano),
		"ref":         res.Ack.Ref,
		"filled_qty":  strconv.FormatFloat(res.Ack.FilledQty, 'f', -1, 64),
		"filled_px":   strconv.FormatFloat(res.Ack.FilledPrice, 'f', -1, 64),
		"ok":          strconv.FormatBool(res.OK()),
	}
	if res.Err != nil {
		fields["error"] = res.Err.Error()
	}
	if err := j.bus.StreamAppend(ctx, ordersStream(j.botID), fields); err != nil {
		j.logger.Warn("order journal append failed", slog.String("error", err.Error()))
		return false
	}
	return true
}
