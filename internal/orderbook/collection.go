package orderbook

import "sync"

// Collection holds the books of every instrument on one venue, keyed by
// canonical symbol.
type Collection struct {
	venue string
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// NewCollection creates an empty collection for venue.
func NewCollection(venue string) *Collection {
	return &Collection{venue: venue, books: make(map[string]*OrderBook)}
}

// Add returns the book for symbol, creating it when missing.
func (c *Collection) Add(symbol string) *OrderBook {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.books[symbol]; ok {
		return b
	}
	b := New(c.venue, symbol)
	c.books[symbol] = b
	return b
}

// Get returns the book for symbol.
func (c *Collection) Get(symbol string) (*OrderBook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.books[symbol]
	return b, ok
}

// Remove drops the book for symbol.
func (c *Collection) Remove(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.books, symbol)
}

// Symbols lists the instruments with a book.
func (c *Collection) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.books))
	for s := range c.books {
		out = append(out, s)
	}
	return out
}

func (c *Collection) Venue() string { return c.venue }
