package position

import (
	"encoding/json"
	"sync"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// SwapBook holds at most one SwapPosition per symbol. Reconcile is the only
// way a swap enters the book.
type SwapBook struct {
	mu    sync.RWMutex
	swaps map[string]domain.SwapPosition
}

// NewSwapBook creates an empty swap book.
func NewSwapBook() *SwapBook {
	return &SwapBook{swaps: make(map[string]domain.SwapPosition)}
}

// Reconcile pairs the open positions of a and b. A symbol with opposite,
// non-zero legs on both venues gets a swap carrying the latest legs; a swap
// whose legs no longer pair up is dropped. Calling it twice on the same
// books changes nothing.
func (s *SwapBook) Reconcile(a, b *Book) (added, dropped []string) {
	pa, pb := a.Snapshot(), b.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	for sym, legA := range pa {
		legB, ok := pb[sym]
		if !ok {
			continue
		}
		sp, ok := domain.NewSwapPosition(legA, legB)
		if !ok {
			continue
		}
		if _, exists := s.swaps[sym]; !exists {
			added = append(added, sym)
		}
		s.swaps[sym] = sp
	}

	for sym := range s.swaps {
		legA, okA := pa[sym]
		legB, okB := pb[sym]
		if okA && okB {
			if _, ok := domain.NewSwapPosition(legA, legB); ok {
				continue
			}
		}
		delete(s.swaps, sym)
		dropped = append(dropped, sym)
	}
	return added, dropped
}

// Get returns the swap for symbol.
func (s *SwapBook) Get(symbol string) (domain.SwapPosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.swaps[symbol]
	return sp, ok
}

// Has reports whether symbol has a swap.
func (s *SwapBook) Has(symbol string) bool {
	_, ok := s.Get(symbol)
	return ok
}

// Remove drops the swap for symbol and returns it.
func (s *SwapBook) Remove(symbol string) (domain.SwapPosition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.swaps[symbol]
	delete(s.swaps, symbol)
	return sp, ok
}

// Len returns the number of open swaps.
func (s *SwapBook) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.swaps)
}

// Snapshot copies the book.
func (s *SwapBook) Snapshot() map[string]domain.SwapPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.SwapPosition, len(s.swaps))
	for sym, sp := range s.swaps {
		out[sym] = sp
	}
	return out
}

// MarshalJSON renders {"positions":{symbol:{long_leg, short_leg}}}.
func (s *SwapBook) MarshalJSON() ([]byte, error) {
	return domain.StateSnapshot{Swaps: s.Snapshot()}.SwapsJSON()
}

var _ json.Marshaler = (*SwapBook)(nil)
