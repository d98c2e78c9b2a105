package domain

import (
	"math"
	"time"
)

// Direction is the side of an open position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// DirectionOf derives the direction from a signed quantity.
func DirectionOf(qty float64) Direction {
	if qty < 0 {
		return DirectionShort
	}
	return DirectionLong
}

// Position is the venue-reported state of one symbol. It is replaced
// wholesale on every venue snapshot, never merged from fills.
type Position struct {
	Venue              string    `json:"venue"`
	Symbol             string    `json:"symbol"` // canonical
	Quantity           float64   `json:"quantity"`
	Notional           float64   `json:"notional"`
	EntryPrice         float64   `json:"entry_price"`
	MarkPrice          float64   `json:"mark_price"`
	UpdatedAt          time.Time `json:"updated_at"`
	ContractMultiplier float64   `json:"contract_multiplier"`
	Direction          Direction `json:"direction"`
}

// PnL returns the unrealised profit against the mark price.
func (p Position) PnL() float64 {
	mult := p.ContractMultiplier
	if mult == 0 {
		mult = 1
	}
	return (p.MarkPrice - p.EntryPrice) * p.Quantity * mult
}

// Size returns the absolute quantity.
func (p Position) Size() float64 { return math.Abs(p.Quantity) }

// IsOpen reports whether the position holds a non-zero quantity.
func (p Position) IsOpen() bool { return p.Quantity != 0 }

// CloseSide is the order side that reduces this position.
func (p Position) CloseSide() OrderSide {
	if p.Direction == DirectionShort {
		return OrderSideBuy
	}
	return OrderSideSell
}

// SwapPosition pairs a long leg and a short leg on different venues. The
// legs always hold non-zero quantities in strictly opposite directions.
type SwapPosition struct {
	Symbol   string   `json:"symbol"`
	LongLeg  Position `json:"long_leg"`
	ShortLeg Position `json:"short_leg"`
}

// NewSwapPosition pairs a and b when they form a valid swap. ok is false for
// zero-quantity legs, same-direction legs, or legs on the same venue.
func NewSwapPosition(a, b Position) (SwapPosition, bool) {
	if !a.IsOpen() || !b.IsOpen() || a.Venue == b.Venue {
		return SwapPosition{}, false
	}
	// The signed quantity is the venue's truth; Direction is derived from it.
	a.Direction, b.Direction = DirectionOf(a.Quantity), DirectionOf(b.Quantity)
	if a.Direction == b.Direction {
		return SwapPosition{}, false
	}
	long, short := a, b
	if a.Direction == DirectionShort {
		long, short = b, a
	}
	return SwapPosition{Symbol: a.Symbol, LongLeg: long, ShortLeg: short}, true
}

// BasisBp is the entry basis (short minus long) in basis points of the long
// leg's entry price.
func (s SwapPosition) BasisBp() float64 {
	if s.LongLeg.EntryPrice == 0 {
		return 0
	}
	return (s.ShortLeg.EntryPrice - s.LongLeg.EntryPrice) / s.LongLeg.EntryPrice * 10_000
}

// SymbolState is the control-loop state of one symbol.
type SymbolState string

const (
	StateFlat      SymbolState = "FLAT"
	StateEntering  SymbolState = "ENTERING"
	StateInSwap    SymbolState = "IN_SWAP"
	StateUnwinding SymbolState = "UNWINDING"
)
