package domain

import (
	"strings"
	"time"
)

// BookSide selects one side of an order book.
type BookSide string

const (
	SideBid BookSide = "bid"
	SideAsk BookSide = "ask"
)

// PriceLevel is a single price+quantity entry in an order book.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"qty"`
}

// TopOfBook is the best bid and ask of one instrument on one venue. It is
// overwritten in place on every tick.
type TopOfBook struct {
	Timestamp time.Time `json:"ts"`
	Venue     string    `json:"venue"`
	Symbol    string    `json:"symbol"`
	BidPrice  float64   `json:"bid_price"`
	BidQty    float64   `json:"bid_qty"`
	AskPrice  float64   `json:"ask_price"`
	AskQty    float64   `json:"ask_qty"`
}

// Valid reports whether both sides carry a positive, uncrossed price.
func (t TopOfBook) Valid() bool {
	return t.BidPrice > 0 && t.AskPrice > 0 && t.BidPrice <= t.AskPrice
}

// Mid returns the mid price, or 0 when either side is missing.
func (t TopOfBook) Mid() float64 {
	if t.BidPrice <= 0 || t.AskPrice <= 0 {
		return 0
	}
	return (t.BidPrice + t.AskPrice) / 2
}

// SpreadBp returns the bid/ask spread in basis points of mid.
func (t TopOfBook) SpreadBp() float64 {
	mid := t.Mid()
	if mid == 0 {
		return 0
	}
	return (t.AskPrice - t.BidPrice) / mid * 10_000
}

// MarketEventKind distinguishes the canonical feed event shapes.
type MarketEventKind string

const (
	EventTopOfBook    MarketEventKind = "top_of_book"
	EventBookDelta    MarketEventKind = "book_delta"
	EventBookSnapshot MarketEventKind = "book_snapshot"
)

// MarketEvent is a venue tick translated into canonical form. Symbol is the
// canonical symbol; zero-quantity levels in Bids/Asks remove the level.
type MarketEvent struct {
	Kind       MarketEventKind
	Venue      string
	Symbol     string
	Top        TopOfBook
	Bids       []PriceLevel
	Asks       []PriceLevel
	EventTime  time.Time
	ReceivedAt time.Time
}

// CanonicalSymbol maps venue spellings such as "btc-usdt" or "BTC_USDT" onto
// the venue-independent key "BTCUSDT".
func CanonicalSymbol(s string) string {
	r := strings.NewReplacer("-", "", "_", "", "/", "", " ", "")
	return strings.ToUpper(r.Replace(s))
}
