package feed

import (
	"sync"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// TickerBook is the shared latest top of book per venue and symbol. Writes
// overwrite in place; the last write wins.
type TickerBook struct {
	mu   sync.RWMutex
	tops map[string]map[string]domain.TopOfBook
}

// NewTickerBook creates an empty ticker book.
func NewTickerBook() *TickerBook {
	return &TickerBook{tops: make(map[string]map[string]domain.TopOfBook)}
}

// Set stores top under its venue and symbol.
func (t *TickerBook) Set(top domain.TopOfBook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	venue, ok := t.tops[top.Venue]
	if !ok {
		venue = make(map[string]domain.TopOfBook)
		t.tops[top.Venue] = venue
	}
	venue[top.Symbol] = top
}

// Get returns the latest top of book for venue and symbol.
func (t *TickerBook) Get(venue, symbol string) (domain.TopOfBook, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	top, ok := t.tops[venue][symbol]
	return top, ok
}

// Snapshot copies the venue's tickers.
func (t *TickerBook) Snapshot(venue string) map[string]domain.TopOfBook {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]domain.TopOfBook, len(t.tops[venue]))
	for s, top := range t.tops[venue] {
		out[s] = top
	}
	return out
}
