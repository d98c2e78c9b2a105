package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pos(venue string, qty, entry float64) Position {
	return Position{
		Venue:      venue,
		Symbol:     "BTCUSDT",
		Quantity:   qty,
		EntryPrice: entry,
		MarkPrice:  entry,
		Direction:  DirectionOf(qty),
	}
}

func TestNewSwapPosition_OppositeLegs(t *testing.T) {
	sp, ok := NewSwapPosition(pos("binance", -0.5, 100.10), pos("bybit", 0.5, 100.00))
	require.True(t, ok)

	assert.Equal(t, "bybit", sp.LongLeg.Venue)
	assert.Equal(t, "binance", sp.ShortLeg.Venue)
	assert.Equal(t, DirectionLong, sp.LongLeg.Direction)
	assert.Equal(t, DirectionShort, sp.ShortLeg.Direction)
	assert.InDelta(t, 10.0, sp.BasisBp(), 1e-9)
}

func TestNewSwapPosition_Rejects(t *testing.T) {
	cases := []struct {
		name string
		a, b Position
	}{
		{"same direction long", pos("binance", 1, 100), pos("bybit", 2, 100)},
		{"same direction short", pos("binance", -1, 100), pos("bybit", -2, 100)},
		{"zero quantity leg", pos("binance", 0, 100), pos("bybit", -1, 100)},
		{"same venue", pos("binance", 1, 100), pos("binance", -1, 100)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := NewSwapPosition(tc.a, tc.b)
			assert.False(t, ok)
		})
	}
}

func TestNewSwapPosition_DirectionFollowsQuantity(t *testing.T) {
	a := pos("binance", 1, 100)
	a.Direction = DirectionShort // stale label, quantity says long
	sp, ok := NewSwapPosition(a, pos("bybit", -1, 101))
	require.True(t, ok)
	assert.Equal(t, "binance", sp.LongLeg.Venue)
}

func TestPositionPnL(t *testing.T) {
	p := Position{Quantity: -2, EntryPrice: 100, MarkPrice: 90, ContractMultiplier: 0.5}
	assert.InDelta(t, 10.0, p.PnL(), 1e-9)

	p.ContractMultiplier = 0
	assert.InDelta(t, 20.0, p.PnL(), 1e-9)
	assert.Equal(t, OrderSideBuy, Position{Direction: DirectionShort}.CloseSide())
	assert.Equal(t, OrderSideSell, Position{Direction: DirectionLong}.CloseSide())
}

func TestCanonicalSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", CanonicalSymbol("btc-usdt"))
	assert.Equal(t, "BTCUSDT", CanonicalSymbol("BTC_USDT"))
	assert.Equal(t, "ETHUSDT", CanonicalSymbol("ETH/USDT"))
}
