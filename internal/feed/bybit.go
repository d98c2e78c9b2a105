package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// BybitDecoder handles the v5 public linear orderbook.N topic, which sends a
// snapshot on subscribe and deltas afterwards.
type BybitDecoder struct {
	venue string
	depth int
}

// NewBybitDecoder creates a decoder. depth must be 1, 50, 200 or 500; other
// values fall back to 50.
func NewBybitDecoder(venue string, depth int) *BybitDecoder {
	switch depth {
	case 1, 50, 200, 500:
	default:
		depth = 50
	}
	return &BybitDecoder{venue: venue, depth: depth}
}

type bybitOp struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

// Bybit caps one subscribe request at 10 args.
const bybitMaxArgs = 10

// SubscribeMessages implements Decoder.
func (d *BybitDecoder) SubscribeMessages(symbols []string) ([][]byte, error) {
	return d.opRequests("subscribe", symbols)
}

// UnsubscribeMessages implements Decoder.
func (d *BybitDecoder) UnsubscribeMessages(symbols []string) ([][]byte, error) {
	return d.opRequests("unsubscribe", symbols)
}

func (d *BybitDecoder) opRequests(op string, symbols []string) ([][]byte, error) {
	var out [][]byte
	for start := 0; start < len(symbols); start += bybitMaxArgs {
		end := min(start+bybitMaxArgs, len(symbols))
		args := make([]string, 0, end-start)
		for _, s := range symbols[start:end] {
			args = append(args, fmt.Sprintf("orderbook.%d.%s", d.depth, strings.ToUpper(s)))
		}
		msg, err := json.Marshal(bybitOp{Op: op, Args: args})
		if err != nil {
			return nil, fmt.Errorf("bybit: marshal %s: %w", op, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// Heartbeat implements Decoder. Bybit drops connections that do not send an
// op ping within 20 seconds.
func (d *BybitDecoder) Heartbeat() []byte {
	return []byte(`{"op":"ping"}`)
}

type bybitMessage struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	TS    int64           `json:"ts"`
	Op    string          `json:"op"`
	Data  json.RawMessage `json:"data"`
}

type bybitBook struct {
	Symbol string      `json:"s"`
	Bids   [][2]string `json:"b"`
	Asks   [][2]string `json:"a"`
	Update int64       `json:"u"`
}

// Decode implements Decoder.
func (d *BybitDecoder) Decode(raw []byte, receivedAt time.Time) ([]domain.MarketEvent, error) {
	var msg bybitMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("bybit: decode: %w", err)
	}
	if msg.Op != "" || !strings.HasPrefix(msg.Topic, "orderbook.") {
		return nil, nil
	}

	var book bybitBook
	if err := json.Unmarshal(msg.Data, &book); err != nil {
		return nil, fmt.Errorf("bybit: decode %s: %w", msg.Topic, err)
	}

	kind := domain.EventBookDelta
	// Update id 1 means the service restarted and the delta is a snapshot.
	if msg.Type == "snapshot" || book.Update == 1 {
		kind = domain.EventBookSnapshot
	}
	bids, err := parseLevels(book.Bids)
	if err != nil {
		return nil, fmt.Errorf("bybit: bids: %w", err)
	}
	asks, err := parseLevels(book.Asks)
	if err != nil {
		return nil, fmt.Errorf("bybit: asks: %w", err)
	}
	return []domain.MarketEvent{{
		Kind:       kind,
		Venue:      d.venue,
		Symbol:     domain.CanonicalSymbol(book.Symbol),
		Bids:       bids,
		Asks:       asks,
		EventTime:  millis(msg.TS),
		ReceivedAt: receivedAt,
	}}, nil
}
