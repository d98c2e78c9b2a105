package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() StrategyConfig {
	return StrategyConfig{
		ExchangeA:         "binance",
		ExchangeB:         "bybit",
		ExchangeAMarkets:  []string{"BTCUSDT", "ETHUSDT"},
		ExchangeBMarkets:  []string{"BTC-USDT", "ETH-USDT"},
		UpperBoundEntryBp: 8,
		ExitBp:            5,
		MaxTradeSizeUSD:   1000,
		MaxPosition:       3,
		DepthThresholdBp:  20,
		MaxAbsSpreadBp:    500,
		IsTrading:         true,
	}
}

func TestStrategyConfigDiff(t *testing.T) {
	prev := baseConfig()
	cur := baseConfig()
	assert.Empty(t, cur.Diff(prev))

	cur.ExitBp = 7
	cur.IsTrading = false
	cur.ExchangeBMarkets = []string{"BTC-USDT"}

	changes := cur.Diff(prev)
	require.Len(t, changes, 3)
	assert.Equal(t, FieldChange{Field: "exchange_b_market_list", Old: "[BTC-USDT,ETH-USDT]", New: "[BTC-USDT]"}, changes[0])
	assert.Equal(t, "exit_bp: 5 -> 7", changes[1].String())
	assert.Equal(t, "is_trading: true -> false", changes[2].String())
	assert.Contains(t, FormatChanges(changes), "\n")
}

func TestStrategyConfigRoundTripThroughBlob(t *testing.T) {
	cfg := baseConfig()
	blob, err := cfg.Encode()
	require.NoError(t, err)

	decoded, err := DecodeStrategyConfig(blob)
	require.NoError(t, err)
	assert.Empty(t, decoded.Diff(cfg))

	_, err = DecodeStrategyConfig([]byte("{not json"))
	assert.Error(t, err)
}

func TestStrategyConfigDefaults(t *testing.T) {
	cfg := baseConfig()
	assert.Equal(t, -8.0, cfg.EntryLowerBp())
	assert.Equal(t, 100*time.Second, cfg.UnwindCooldown())
	assert.Equal(t, 30*time.Second, cfg.EntryTimeout())
	assert.Equal(t, OrderKindMarket, cfg.ExecutionMode(OrderSideBuy))

	cfg.LowerBoundEntryBp = -12
	cfg.ShortLegExecutionMode = OrderKindLimit
	assert.Equal(t, -12.0, cfg.EntryLowerBp())
	assert.Equal(t, OrderKindLimit, cfg.ExecutionMode(OrderSideSell))
}

func TestStrategyConfigPairs(t *testing.T) {
	pairs := baseConfig().Pairs()
	require.Len(t, pairs, 2)
	assert.Equal(t, InstrumentPair{Symbol: "BTCUSDT", VenueA: "BTCUSDT", VenueB: "BTC-USDT"}, pairs[0])
}

func TestStrategyConfigValidate(t *testing.T) {
	require.NoError(t, baseConfig().Validate())

	bad := baseConfig()
	bad.ExchangeB = "binance"
	bad.ExitBp = 0
	bad.ExchangeAMarkets = bad.ExchangeAMarkets[:1]
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
	assert.Contains(t, err.Error(), "exit_bp")
	assert.Contains(t, err.Error(), "differ in length")
}

func TestOrderValidate(t *testing.T) {
	o := Order{ClientID: "c1", Venue: "binance", Symbol: "BTCUSDT", Side: OrderSideBuy, Kind: OrderKindMarket, Quantity: 1}
	require.NoError(t, o.Validate())

	o.Quantity = 0
	assert.ErrorIs(t, o.Validate(), ErrInvalidOrder)

	o.Quantity = 1
	o.Kind = OrderKindLimit
	assert.ErrorIs(t, o.Validate(), ErrInvalidOrder)
}
