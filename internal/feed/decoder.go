package feed

import (
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// Decoder translates one venue's WebSocket wire format into canonical
// market events.
type Decoder interface {
	// SubscribeMessages builds the frames that subscribe to symbols, given in
	// venue-native spelling.
	SubscribeMessages(symbols []string) ([][]byte, error)
	UnsubscribeMessages(symbols []string) ([][]byte, error)
	// Decode parses one frame. Control frames (acks, pongs) yield no events.
	Decode(raw []byte, receivedAt time.Time) ([]domain.MarketEvent, error)
	// Heartbeat is the application-level keep-alive frame, or nil when the
	// venue relies on protocol pings.
	Heartbeat() []byte
}

// NewDecoder returns the decoder for a venue kind.
func NewDecoder(kind, venue string, depth int) (Decoder, error) {
	switch kind {
	case "binance":
		return NewBinanceDecoder(venue, depth), nil
	case "bybit":
		return NewBybitDecoder(venue, depth), nil
	default:
		return nil, fmt.Errorf("feed: unknown venue kind %q", kind)
	}
}

// parseLevels converts [["price","qty"], ...] pairs.
func parseLevels(raw [][2]string) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, lv := range raw {
		p, err := strconv.ParseFloat(lv[0], 64)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", lv[0], err)
		}
		q, err := strconv.ParseFloat(lv[1], 64)
		if err != nil {
			return nil, fmt.Errorf("qty %q: %w", lv[1], err)
		}
		out = append(out, domain.PriceLevel{Price: p, Quantity: q})
	}
	return out, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func millis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
