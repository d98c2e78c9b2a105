package sizing

import (
	"testing"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderSize(t *testing.T) {
	tbl := NewTable()
	tbl.Set("BTCUSDT", NewLotRule(0.001, 0.001, 0.1, 0))
	tbl.Set("ETH-USDT", NewLotRule(0.01, 0.05, 0.01, 0))

	tests := []struct {
		name     string
		symbol   string
		notional float64
		price    float64
		want     float64
	}{
		{"rounds to step", "BTCUSDT", 1000, 60000, 0.017},
		{"rounds half up", "BTCUSDT", 75, 50000, 0.002},
		{"floors at min qty", "ETHUSDT", 10, 3000, 0.05},
		{"canonical lookup", "eth_usdt", 1000, 2500, 0.4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tbl.OrderSize(tc.symbol, tc.notional, tc.price)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-12)
		})
	}
}

func TestOrderSize_ContractMultiplier(t *testing.T) {
	tbl := NewTable()
	tbl.Set("BTCUSDT", NewLotRule(1, 1, 0.1, 0.001))

	got, err := tbl.OrderSize("BTCUSDT", 1000, 50000)
	require.NoError(t, err)
	assert.Equal(t, 20.0, got)
}

func TestOrderSize_Errors(t *testing.T) {
	tbl := NewTable()
	tbl.Set("BTCUSDT", NewLotRule(0.001, 0.001, 0.1, 0))

	_, err := tbl.OrderSize("DOGEUSDT", 100, 0.1)
	assert.ErrorIs(t, err, domain.ErrUnknownSymbol)

	_, err = tbl.OrderSize("BTCUSDT", 100, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = tbl.OrderSize("BTCUSDT", 0, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestRoundPrice(t *testing.T) {
	tbl := NewTable()
	tbl.Set("BTCUSDT", NewLotRule(0.001, 0.001, 0.5, 0))

	assert.Equal(t, 100.5, tbl.RoundPrice("BTCUSDT", 100.3))
	assert.Equal(t, 100.0, tbl.RoundPrice("BTCUSDT", 100.2))
	assert.Equal(t, 1.2345, tbl.RoundPrice("XRPUSDT", 1.2345))
}
