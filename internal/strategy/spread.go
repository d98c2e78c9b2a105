package strategy

import (
	"sync"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// CrossSpreadBp compares venue A against venue B. A positive result means
// A's bid is above B's ask (sell A, buy B); a negative result means B's bid
// is above A's ask (buy A, sell B). Uncrossed books yield 0. ok is false
// when either side of either book is missing or crossed on itself.
func CrossSpreadBp(a, b domain.TopOfBook) (spreadBp float64, ok bool) {
	if !a.Valid() || !b.Valid() {
		return 0, false
	}
	switch {
	case a.BidPrice > b.AskPrice:
		return (a.BidPrice - b.AskPrice) / b.AskPrice * 10_000, true
	case b.BidPrice > a.AskPrice:
		return -(b.BidPrice - a.AskPrice) / a.AskPrice * 10_000, true
	default:
		return 0, true
	}
}

// CloseSpreadBp is the basis at which a swap can be closed now: buy back
// the short leg at its venue's ask and sell the long leg at its venue's
// bid. It is directly comparable with SwapPosition.BasisBp.
func CloseSpreadBp(long, short domain.TopOfBook) (float64, bool) {
	if long.BidPrice <= 0 || short.AskPrice <= 0 {
		return 0, false
	}
	return (short.AskPrice - long.BidPrice) / long.BidPrice * 10_000, true
}

// SpreadBook is the latest cross-venue spread per canonical symbol.
type SpreadBook struct {
	mu      sync.RWMutex
	spreads map[string]float64
}

// NewSpreadBook creates an empty book.
func NewSpreadBook() *SpreadBook {
	return &SpreadBook{spreads: make(map[string]float64)}
}

func (s *SpreadBook) Set(symbol string, bp float64) {
	s.mu.Lock()
	s.spreads[symbol] = bp
	s.mu.Unlock()
}

func (s *SpreadBook) Get(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bp, ok := s.spreads[symbol]
	return bp, ok
}

func (s *SpreadBook) Delete(symbol string) {
	s.mu.Lock()
	delete(s.spreads, symbol)
	s.mu.Unlock()
}

// Snapshot copies the book.
func (s *SpreadBook) Snapshot() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.spreads))
	for k, v := range s.spreads {
		out[k] = v
	}
	return out
}
