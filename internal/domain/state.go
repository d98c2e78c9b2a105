package domain

import (
	"encoding/json"
	"time"
)

// StateSnapshot is the bot state published once per publisher tick.
type StateSnapshot struct {
	Timestamp time.Time
	// Positions is venue -> canonical symbol -> position.
	Positions map[string]map[string]Position
	// PnL is venue -> unrealised PnL across its positions.
	PnL     map[string]float64
	Spreads map[string]float64
	Swaps   map[string]SwapPosition
	States  map[string]SymbolState
}

// PositionsJSON renders {ts, <venue>:{symbol:position}}.
func (s StateSnapshot) PositionsJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Positions)+1)
	out["ts"] = s.Timestamp.UnixMilli()
	for venue, book := range s.Positions {
		out[venue] = book
	}
	return json.Marshal(out)
}

// SpreadsJSON renders {symbol: spreadBp}.
func (s StateSnapshot) SpreadsJSON() ([]byte, error) {
	return json.Marshal(s.Spreads)
}

// SwapsJSON renders {positions:{symbol:{long_leg, short_leg}}}.
func (s StateSnapshot) SwapsJSON() ([]byte, error) {
	type legs struct {
		LongLeg  Position `json:"long_leg"`
		ShortLeg Position `json:"short_leg"`
	}
	positions := make(map[string]legs, len(s.Swaps))
	for sym, sp := range s.Swaps {
		positions[sym] = legs{LongLeg: sp.LongLeg, ShortLeg: sp.ShortLeg}
	}
	return json.Marshal(map[string]any{"positions": positions})
}
