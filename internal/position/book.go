// Package position tracks venue-reported positions and pairs them into swap
// positions.
package position

import (
	"sync"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// Book holds one venue's positions keyed by canonical symbol. Entries are
// replaced wholesale from venue snapshots, never merged from fills.
type Book struct {
	venue     string
	mu        sync.RWMutex
	positions map[string]domain.Position
}

// NewBook creates an empty book for venue.
func NewBook(venue string) *Book {
	return &Book{venue: venue, positions: make(map[string]domain.Position)}
}

func (b *Book) Venue() string { return b.venue }

// Upsert replaces the position for p.Symbol. A zero quantity removes it.
func (b *Book) Upsert(p domain.Position) {
	p.Venue = b.venue
	p.Symbol = domain.CanonicalSymbol(p.Symbol)
	p.Direction = domain.DirectionOf(p.Quantity)
	b.mu.Lock()
	defer b.mu.Unlock()
	if !p.IsOpen() {
		delete(b.positions, p.Symbol)
		return
	}
	b.positions[p.Symbol] = p
}

// Remove drops the position for symbol.
func (b *Book) Remove(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.positions, symbol)
}

// Get returns the position for symbol.
func (b *Book) Get(symbol string) (domain.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.positions[symbol]
	return p, ok
}

// ReplaceAll swaps the whole book for a fresh venue snapshot.
func (b *Book) ReplaceAll(positions []domain.Position) {
	next := make(map[string]domain.Position, len(positions))
	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}
		p.Venue = b.venue
		p.Symbol = domain.CanonicalSymbol(p.Symbol)
		p.Direction = domain.DirectionOf(p.Quantity)
		next[p.Symbol] = p
	}
	b.mu.Lock()
	b.positions = next
	b.mu.Unlock()
}

// PnL returns the unrealised PnL of symbol, or 0 when flat.
func (b *Book) PnL(symbol string) float64 {
	p, ok := b.Get(symbol)
	if !ok {
		return 0
	}
	return p.PnL()
}

// TotalPnL sums the unrealised PnL of every position.
func (b *Book) TotalPnL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total float64
	for _, p := range b.positions {
		total += p.PnL()
	}
	return total
}

// Snapshot copies the book.
func (b *Book) Snapshot() map[string]domain.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]domain.Position, len(b.positions))
	for s, p := range b.positions {
		out[s] = p
	}
	return out
}

// Len returns the number of open positions.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}
