// Package orderbook maintains sorted price ladders for one venue's
// instruments.
package orderbook

import (
	"sync"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/tidwall/btree"
)

const degree = 32

// OrderBook holds both sides of one (venue, instrument) book. Bids iterate
// descending and asks ascending. It has a single writer, the venue's
// normalizer, and any number of readers; every method takes the book's lock,
// so a reader sees a whole frame or none of it.
type OrderBook struct {
	venue  string
	symbol string

	mu   sync.RWMutex
	bids *btree.Map[float64, float64]
	asks *btree.Map[float64, float64]
}

// New creates an empty book.
func New(venue, symbol string) *OrderBook {
	return &OrderBook{
		venue:  venue,
		symbol: symbol,
		bids:   btree.NewMap[float64, float64](degree),
		asks:   btree.NewMap[float64, float64](degree),
	}
}

func (b *OrderBook) Venue() string  { return b.venue }
func (b *OrderBook) Symbol() string { return b.symbol }

// ApplyLevel sets the quantity at price. A zero quantity removes the level.
func (b *OrderBook) ApplyLevel(side domain.BookSide, price, qty float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLocked(side, price, qty)
}

// ApplyFrame applies one wire frame under a single lock. A snapshot frame
// replaces the book; a delta frame upserts its levels. It returns the top of
// the book after the frame.
func (b *OrderBook) ApplyFrame(snapshot bool, bids, asks []domain.PriceLevel) (bid, ask domain.PriceLevel, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if snapshot {
		b.clearLocked()
	}
	for _, lv := range bids {
		b.setLocked(domain.SideBid, lv.Price, lv.Quantity)
	}
	for _, lv := range asks {
		b.setLocked(domain.SideAsk, lv.Price, lv.Quantity)
	}
	bid, okB := b.bestBidLocked()
	ask, okA := b.bestAskLocked()
	return bid, ask, okB && okA
}

// BestBid returns the highest bid. ok is false when the side is empty.
func (b *OrderBook) BestBid() (domain.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestBidLocked()
}

// BestAsk returns the lowest ask. ok is false when the side is empty.
func (b *OrderBook) BestAsk() (domain.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestAskLocked()
}

// Mid returns the midpoint of the best levels, or 0 if either side is empty.
func (b *OrderBook) Mid() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.midLocked()
}

// SpreadBp returns the best bid/offer spread in basis points of mid. ok is
// false when either side is empty.
func (b *OrderBook) SpreadBp() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bid, okB := b.bestBidLocked()
	ask, okA := b.bestAskLocked()
	if !okB || !okA {
		return 0, false
	}
	mid := (bid.Price + ask.Price) / 2
	if mid <= 0 {
		return 0, false
	}
	return (ask.Price - bid.Price) / mid * 10_000, true
}

// DepthWithinPercent sums the quantity resting within pct percent of mid on
// each side. Both are zero when either side is empty.
func (b *OrderBook) DepthWithinPercent(pct float64) (bidDepth, askDepth float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	mid := b.midLocked()
	if mid == 0 {
		return 0, 0
	}
	threshold := mid * pct / 100
	bidCutoff, askCutoff := mid-threshold, mid+threshold

	b.bids.Reverse(func(price, qty float64) bool {
		if price < bidCutoff {
			return false
		}
		bidDepth += qty
		return true
	})
	b.asks.Scan(func(price, qty float64) bool {
		if price > askCutoff {
			return false
		}
		askDepth += qty
		return true
	})
	return bidDepth, askDepth
}

// Len returns the number of bid and ask levels.
func (b *OrderBook) Len() (bids, asks int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.Len(), b.asks.Len()
}

func (b *OrderBook) setLocked(side domain.BookSide, price, qty float64) {
	if price <= 0 {
		return
	}
	m := b.asks
	if side == domain.SideBid {
		m = b.bids
	}
	if qty <= 0 {
		m.Delete(price)
		return
	}
	m.Set(price, qty)
}

func (b *OrderBook) clearLocked() {
	b.bids.Clear()
	b.asks.Clear()
}

func (b *OrderBook) bestBidLocked() (domain.PriceLevel, bool) {
	p, q, ok := b.bids.Max()
	if !ok {
		return domain.PriceLevel{}, false
	}
	return domain.PriceLevel{Price: p, Quantity: q}, true
}

func (b *OrderBook) bestAskLocked() (domain.PriceLevel, bool) {
	p, q, ok := b.asks.Min()
	if !ok {
		return domain.PriceLevel{}, false
	}
	return domain.PriceLevel{Price: p, Quantity: q}, true
}

func (b *OrderBook) midLocked() float64 {
	bid, okB := b.bestBidLocked()
	ask, okA := b.bestAskLocked()
	if !okB || !okA {
		return 0
	}
	return (bid.Price + ask.Price) / 2
}
