package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// BinanceDecoder handles the USD-M futures public streams: bookTicker for
// top of book and partial depth (depthN@100ms), which carries the top N
// levels in full on every push.
type BinanceDecoder struct {
	venue string
	depth int
}

// NewBinanceDecoder creates a decoder. depth must be 5, 10 or 20; other
// values fall back to 20.
func NewBinanceDecoder(venue string, depth int) *BinanceDecoder {
	switch depth {
	case 5, 10, 20:
	default:
		depth = 20
	}
	return &BinanceDecoder{venue: venue, depth: depth}
}

type binanceSubscribe struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// SubscribeMessages implements Decoder.
func (d *BinanceDecoder) SubscribeMessages(symbols []string) ([][]byte, error) {
	return d.streamRequest("SUBSCRIBE", symbols)
}

// UnsubscribeMessages implements Decoder.
func (d *BinanceDecoder) UnsubscribeMessages(symbols []string) ([][]byte, error) {
	return d.streamRequest("UNSUBSCRIBE", symbols)
}

func (d *BinanceDecoder) streamRequest(method string, symbols []string) ([][]byte, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	params := make([]string, 0, len(symbols)*2)
	for _, s := range symbols {
		s = strings.ToLower(s)
		params = append(params, s+"@bookTicker", fmt.Sprintf("%s@depth%d@100ms", s, d.depth))
	}
	msg, err := json.Marshal(binanceSubscribe{Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, fmt.Errorf("binance: marshal %s: %w", strings.ToLower(method), err)
	}
	return [][]byte{msg}, nil
}

// Heartbeat implements Decoder. Binance answers protocol pings.
func (d *BinanceDecoder) Heartbeat() []byte { return nil }

type binanceEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type binanceEvent struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	TradeTime int64  `json:"T"`
	Symbol    string `json:"s"`
	BidPrice  string `json:"b"`
	BidQty    string `json:"B"`
	AskPrice  string `json:"a"`
	AskQty    string `json:"A"`
}

// depthUpdate reuses "b"/"a" for level arrays, so it decodes separately.
type binanceDepth struct {
	Event     string      `json:"e"`
	EventTime int64       `json:"E"`
	TradeTime int64       `json:"T"`
	Symbol    string      `json:"s"`
	Bids      [][2]string `json:"b"`
	Asks      [][2]string `json:"a"`
}

// Decode implements Decoder.
func (d *BinanceDecoder) Decode(raw []byte, receivedAt time.Time) ([]domain.MarketEvent, error) {
	var env binanceEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		raw = env.Data
	}

	// "E" must be declared too or it case-folds onto "e".
	var head struct {
		Event     string `json:"e"`
		EventTime int64  `json:"E"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("binance: decode: %w", err)
	}

	switch head.Event {
	case "bookTicker":
		var ev binanceEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("binance: decode bookTicker: %w", err)
		}
		sym := domain.CanonicalSymbol(ev.Symbol)
		return []domain.MarketEvent{{
			Kind:   domain.EventTopOfBook,
			Venue:  d.venue,
			Symbol: sym,
			Top: domain.TopOfBook{
				Timestamp: receivedAt,
				Venue:     d.venue,
				Symbol:    sym,
				BidPrice:  parseFloat(ev.BidPrice),
				BidQty:    parseFloat(ev.BidQty),
				AskPrice:  parseFloat(ev.AskPrice),
				AskQty:    parseFloat(ev.AskQty),
			},
			EventTime:  millis(ev.TradeTime),
			ReceivedAt: receivedAt,
		}}, nil

	case "depthUpdate":
		var ev binanceDepth
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("binance: decode depth: %w", err)
		}
		bids, err := parseLevels(ev.Bids)
		if err != nil {
			return nil, fmt.Errorf("binance: depth bids: %w", err)
		}
		asks, err := parseLevels(ev.Asks)
		if err != nil {
			return nil, fmt.Errorf("binance: depth asks: %w", err)
		}
		return []domain.MarketEvent{{
			Kind:       domain.EventBookSnapshot,
			Venue:      d.venue,
			Symbol:     domain.CanonicalSymbol(ev.Symbol),
			Bids:       bids,
			Asks:       asks,
			EventTime:  millis(ev.TradeTime),
			ReceivedAt: receivedAt,
		}}, nil

	default:
		// Subscription acks ({"result":null,"id":1}) and unknown streams.
		return nil, nil
	}
}
