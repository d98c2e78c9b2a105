package domain

import (
	"context"
	"io"
	"time"
)

// MarketDataCollector streams canonical market events for one venue.
type MarketDataCollector interface {
	Venue() string
	// Subscribe registers venue-native symbols. It may be called before Run.
	Subscribe(ctx context.Context, symbols []string) error
	Unsubscribe(ctx context.Context, symbols []string) error
	// Events is consumed by exactly one normalizer.
	Events() <-chan MarketEvent
	Run(ctx context.Context) error
	IsAlive() bool
}

// Trader is a venue trading client.
type Trader interface {
	Venue() string
	PlaceOrder(ctx context.Context, order Order) (OrderAck, error)
	// OrderSize converts a USD notional into the venue's native quantity
	// after lot/step rounding. It returns ErrUnknownSymbol when the venue
	// has no lot rules for symbol.
	OrderSize(symbol string, notionalUSD, price float64) (float64, error)
	// Positions returns every open position with canonical symbols.
	Positions(ctx context.Context) ([]Position, error)
	IsAlive() bool
}

// LeverageSetter is implemented by traders that can change leverage.
type LeverageSetter interface {
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

// PriceRounder is implemented by traders that know the venue's tick size.
type PriceRounder interface {
	RoundPrice(symbol string, price float64) float64
}

// ConfigStore holds serialized strategy configs keyed by bot id.
type ConfigStore interface {
	Get(ctx context.Context, botID string) ([]byte, error)
	Set(ctx context.Context, botID string, blob []byte) error
}

// StateSink is a best-effort time-series writer.
type StateSink interface {
	Publish(ctx context.Context, topic string, tags map[string]string, fields map[string]float64, ts time.Time) error
}

// StateStore persists the bot's published state snapshot.
type StateStore interface {
	SaveState(ctx context.Context, botID string, snap StateSnapshot) error
}

// Notifier delivers human-readable alerts. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
