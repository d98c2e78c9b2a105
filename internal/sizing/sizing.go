// Package sizing converts USD notionals into venue order quantities using
// each instrument's lot rules.
package sizing

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/shopspring/decimal"
)

// LotRule is the exchange lot filter of one instrument.
type LotRule struct {
	StepSize decimal.Decimal
	MinQty   decimal.Decimal
	TickSize decimal.Decimal
	// ContractMultiplier is the base quantity per contract. Zero means one.
	ContractMultiplier decimal.Decimal
}

// NewLotRule builds a rule from the float values found in venue metadata or
// config files.
func NewLotRule(step, minQty, tick, multiplier float64) LotRule {
	return LotRule{
		StepSize:           decimal.NewFromFloat(step),
		MinQty:             decimal.NewFromFloat(minQty),
		TickSize:           decimal.NewFromFloat(tick),
		ContractMultiplier: decimal.NewFromFloat(multiplier),
	}
}

// Table holds lot rules keyed by canonical symbol. It is safe for
// concurrent use.
type Table struct {
	mu    sync.RWMutex
	rules map[string]LotRule
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{rules: make(map[string]LotRule)}
}

// Set installs or replaces the rule for symbol.
func (t *Table) Set(symbol string, rule LotRule) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rules[domain.CanonicalSymbol(symbol)] = rule
}

// Rule returns the lot rule for symbol.
func (t *Table) Rule(symbol string) (LotRule, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rules[domain.CanonicalSymbol(symbol)]
	return r, ok
}

// OrderSize converts notionalUSD at price into a quantity rounded to the
// nearest lot step and floored at the minimum quantity. The result is in
// contracts when the rule carries a multiplier.
func (t *Table) OrderSize(symbol string, notionalUSD, price float64) (float64, error) {
	rule, ok := t.Rule(symbol)
	if !ok {
		return 0, fmt.Errorf("sizing: %s: %w", symbol, domain.ErrUnknownSymbol)
	}
	if price <= 0 {
		return 0, fmt.Errorf("sizing: %s price %v: %w", symbol, price, domain.ErrInvalidPrice)
	}
	if notionalUSD <= 0 {
		return 0, fmt.Errorf("sizing: %s notional %v: %w", symbol, notionalUSD, domain.ErrInvalidOrder)
	}

	qty := decimal.NewFromFloat(notionalUSD).Div(decimal.NewFromFloat(price))
	if rule.ContractMultiplier.IsPositive() {
		qty = qty.Div(rule.ContractMultiplier)
	}
	if rule.StepSize.IsPositive() {
		qty = qty.Div(rule.StepSize).Round(0).Mul(rule.StepSize)
	}
	qty = decimal.Max(qty, rule.MinQty)
	return qty.InexactFloat64(), nil
}

// RoundPrice snaps price to the nearest tick of symbol. Prices of unknown
// symbols or rules without a tick are returned unchanged.
func (t *Table) RoundPrice(symbol string, price float64) float64 {
	rule, ok := t.Rule(symbol)
	if !ok || !rule.TickSize.IsPositive() {
		return price
	}
	p := decimal.NewFromFloat(price)
	return p.Div(rule.TickSize).Round(0).Mul(rule.TickSize).InexactFloat64()
}
