package feed

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recvAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestBinanceSubscribeMessages(t *testing.T) {
	d := NewBinanceDecoder("binance", 7)
	msgs, err := d.SubscribeMessages([]string{"BTCUSDT"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var sub binanceSubscribe
	require.NoError(t, json.Unmarshal(msgs[0], &sub))
	assert.Equal(t, "SUBSCRIBE", sub.Method)
	assert.Equal(t, []string{"btcusdt@bookTicker", "btcusdt@depth20@100ms"}, sub.Params)
	assert.Nil(t, d.Heartbeat())
}

func TestBinanceUnsubscribeMessages(t *testing.T) {
	d := NewBinanceDecoder("binance", 5)
	msgs, err := d.UnsubscribeMessages([]string{"ETHUSDT"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var sub binanceSubscribe
	require.NoError(t, json.Unmarshal(msgs[0], &sub))
	assert.Equal(t, "UNSUBSCRIBE", sub.Method)
	assert.Equal(t, []string{"ethusdt@bookTicker", "ethusdt@depth5@100ms"}, sub.Params)

	msgs, err = d.UnsubscribeMessages(nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestBinanceDecodeBookTicker(t *testing.T) {
	d := NewBinanceDecoder("binance", 20)
	raw := []byte(`{"stream":"btcusdt@bookTicker","data":{"e":"bookTicker","u":400900217,"E":1568014460893,"T":1568014460891,"s":"BTCUSDT","b":"25.35190000","B":"31.21000000","a":"25.36520000","A":"40.66000000"}}`)

	evs, err := d.Decode(raw, recvAt)
	require.NoError(t, err)
	require.Len(t, evs, 1)

	ev := evs[0]
	assert.Equal(t, domain.EventTopOfBook, ev.Kind)
	assert.Equal(t, "BTCUSDT", ev.Symbol)
	assert.Equal(t, 25.3519, ev.Top.BidPrice)
	assert.Equal(t, 40.66, ev.Top.AskQty)
	assert.Equal(t, recvAt, ev.ReceivedAt)
	assert.Equal(t, int64(1568014460891), ev.EventTime.UnixMilli())
}

func TestBinanceDecodeDepth(t *testing.T) {
	d := NewBinanceDecoder("binance", 5)
	raw := []byte(`{"e":"depthUpdate","E":1571889248277,"T":1571889248276,"s":"BTCUSDT","U":390497796,"u":390497878,"pu":390497794,"b":[["7403.89","0.002"],["7403.90","3.906"]],"a":[["7405.96","3.340"]]}`)

	evs, err := d.Decode(raw, recvAt)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventBookSnapshot, evs[0].Kind)
	assert.Len(t, evs[0].Bids, 2)
	assert.Equal(t, domain.PriceLevel{Price: 7405.96, Quantity: 3.34}, evs[0].Asks[0])
}

func TestBinanceDecodeIgnoresAcks(t *testing.T) {
	d := NewBinanceDecoder("binance", 20)
	evs, err := d.Decode([]byte(`{"result":null,"id":1}`), recvAt)
	require.NoError(t, err)
	assert.Empty(t, evs)

	_, err = d.Decode([]byte(`not json`), recvAt)
	assert.Error(t, err)
}

func TestBybitSubscribeMessagesBatches(t *testing.T) {
	d := NewBybitDecoder("bybit", 50)
	symbols := make([]string, 12)
	for i := range symbols {
		symbols[i] = "SYM" + string(rune('A'+i)) + "USDT"
	}
	msgs, err := d.SubscribeMessages(symbols)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	var op bybitOp
	require.NoError(t, json.Unmarshal(msgs[1], &op))
	assert.Equal(t, "subscribe", op.Op)
	assert.Equal(t, []string{"orderbook.50.SYMKUSDT", "orderbook.50.SYMLUSDT"}, op.Args)
	assert.JSONEq(t, `{"op":"ping"}`, string(d.Heartbeat()))
}

func TestBybitUnsubscribeMessages(t *testing.T) {
	d := NewBybitDecoder("bybit", 200)
	msgs, err := d.UnsubscribeMessages([]string{"ethusdt"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"op":"unsubscribe","args":["orderbook.200.ETHUSDT"]}`, string(msgs[0]))
}

func TestBybitDecodeSnapshotAndDelta(t *testing.T) {
	d := NewBybitDecoder("bybit", 50)

	snap := []byte(`{"topic":"orderbook.50.BTCUSDT","type":"snapshot","ts":1672304484978,"data":{"s":"BTCUSDT","b":[["16493.50","0.006"],["16493.00","0.100"]],"a":[["16611.00","0.029"]],"u":18521288,"seq":7961638724},"cts":1672304484976}`)
	evs, err := d.Decode(snap, recvAt)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventBookSnapshot, evs[0].Kind)
	assert.Equal(t, "bybit", evs[0].Venue)
	assert.Len(t, evs[0].Bids, 2)

	delta := []byte(`{"topic":"orderbook.50.BTCUSDT","type":"delta","ts":1672304484979,"data":{"s":"BTCUSDT","b":[["16493.50","0"]],"a":[],"u":18521289,"seq":7961638725}}`)
	evs, err = d.Decode(delta, recvAt)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventBookDelta, evs[0].Kind)
	assert.Equal(t, 0.0, evs[0].Bids[0].Quantity)

	restart := []byte(`{"topic":"orderbook.50.BTCUSDT","type":"delta","ts":1,"data":{"s":"BTCUSDT","b":[],"a":[],"u":1}}`)
	evs, err = d.Decode(restart, recvAt)
	require.NoError(t, err)
	assert.Equal(t, domain.EventBookSnapshot, evs[0].Kind)
}

func TestBybitDecodeIgnoresControlFrames(t *testing.T) {
	d := NewBybitDecoder("bybit", 50)
	for _, raw := range []string{
		`{"success":true,"ret_msg":"pong","conn_id":"x","op":"ping"}`,
		`{"success":true,"ret_msg":"","conn_id":"x","op":"subscribe"}`,
		`{"topic":"publicTrade.BTCUSDT","type":"snapshot","data":[]}`,
	} {
		evs, err := d.Decode([]byte(raw), recvAt)
		require.NoError(t, err)
		assert.Empty(t, evs, raw)
	}
}

func TestNewDecoder(t *testing.T) {
	_, err := NewDecoder("binance", "binance", 20)
	require.NoError(t, err)
	_, err = NewDecoder("bybit", "bybit", 50)
	require.NoError(t, err)
	_, err = NewDecoder("kraken", "kraken", 10)
	assert.Error(t, err)
}
