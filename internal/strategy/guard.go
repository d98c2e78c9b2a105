package strategy

import (
	"sync"
	"time"
)

// guard holds the per-symbol in-flight markers. Every test-and-set is
// atomic so two evaluations of one symbol never both proceed.
type guard struct {
	mu         sync.Mutex
	entering   map[string]time.Time // symbol -> entry dispatch time
	unwinding  map[string]struct{}
	lastUnwind map[string]time.Time
	lastLog    map[string]time.Time
}

func newGuard() *guard {
	return &guard{
		entering:   make(map[string]time.Time),
		unwinding:  make(map[string]struct{}),
		lastUnwind: make(map[string]time.Time),
		lastLog:    make(map[string]time.Time),
	}
}

// tryEnter marks symbol ENTERING unless it already is.
func (g *guard) tryEnter(symbol string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.entering[symbol]; ok {
		return false
	}
	g.entering[symbol] = now
	return true
}

func (g *guard) clearEntering(symbol string) {
	g.mu.Lock()
	delete(g.entering, symbol)
	g.mu.Unlock()
}

// expireEntering clears symbol when it has been ENTERING longer than
// timeout and reports whether it did.
func (g *guard) expireEntering(symbol string, now time.Time, timeout time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	since, ok := g.entering[symbol]
	if !ok || now.Sub(since) < timeout {
		return false
	}
	delete(g.entering, symbol)
	return true
}

func (g *guard) isEntering(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.entering[symbol]
	return ok
}

func (g *guard) enteringCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entering)
}

// tryUnwind marks symbol UNWINDING unless it already is or it was unwound
// within cooldown.
func (g *guard) tryUnwind(symbol string, now time.Time, cooldown time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.unwinding[symbol]; ok {
		return false
	}
	if last, ok := g.lastUnwind[symbol]; ok && now.Sub(last) < cooldown {
		return false
	}
	g.unwinding[symbol] = struct{}{}
	return true
}

// finishUnwind clears UNWINDING and starts the cooldown.
func (g *guard) finishUnwind(symbol string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.unwinding, symbol)
	g.lastUnwind[symbol] = now
}

// abortUnwind clears UNWINDING without starting the cooldown.
func (g *guard) abortUnwind(symbol string) {
	g.mu.Lock()
	delete(g.unwinding, symbol)
	g.mu.Unlock()
}

func (g *guard) isUnwinding(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.unwinding[symbol]
	return ok
}

// inCooldown reports whether symbol was unwound within cooldown.
func (g *guard) inCooldown(symbol string, now time.Time, cooldown time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.lastUnwind[symbol]
	return ok && now.Sub(last) < cooldown
}

// shouldLog debounces opportunity logs per symbol.
func (g *guard) shouldLog(symbol string, now time.Time, every time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.lastLog[symbol]; ok && now.Sub(last) < every {
		return false
	}
	g.lastLog[symbol] = now
	return true
}
