package signal

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradehook/internal/model"
	"tradehook/pkg/errors"
	"tradehook/pkg/errors/ecode"
)

func TestParse_MarketOrder(t *testing.T) {
	body := []byte(`{"symbol":"BTCUSDT","side":"buy","order_type":"market","quantity":0.01,"nonce":"tv-001"}`)

	sig, err := Parse(body)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", sig.Symbol)
	assert.Equal(t, model.Buy, sig.Side)
	assert.Equal(t, model.Market, sig.OrderType)
	assert.Equal(t, model.QuantityAbsolute, sig.Quantity.Kind)
	assert.True(t, sig.Quantity.Value.Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, "tv-001", sig.Nonce)
	assert.Len(t, sig.SignalID, 64)
}

func TestParse_SymbolNormalization(t *testing.T) {
	cases := []string{"BTCUSDT", "BTC/USDT", "btcusdt", "BINANCE:BTCUSDT"}
	for _, raw := range cases {
		sig, err := Parse([]byte(`{"symbol":"` + raw + `","side":"buy","quantity":1}`))
		require.NoError(t, err, raw)
		assert.Equal(t, "BTCUSDT", sig.Symbol, raw)
	}
}

func TestParse_SideAliases(t *testing.T) {
	cases := map[string]model.OrderSide{
		`"side":"buy"`:     model.Buy,
		`"side":"BUY"`:     model.Buy,
		`"side":"long"`:    model.Buy,
		`"side":"sell"`:    model.Sell,
		`"side":"short"`:   model.Sell,
		`"signal":"LONG"`:  model.Buy, // 旧版字段
		`"signal":"SHORT"`: model.Sell,
	}
	for frag, want := range cases {
		sig, err := Parse([]byte(`{"symbol":"ETHUSDT",` + frag + `,"quantity":1}`))
		require.NoError(t, err, frag)
		assert.Equal(t, want, sig.Side, frag)
	}
}

func TestParse_MissingRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing symbol", `{"side":"buy","quantity":1}`},
		{"missing side", `{"symbol":"BTCUSDT","quantity":1}`},
		{"missing quantity", `{"symbol":"BTCUSDT","side":"buy"}`},
		{"bad json", `{"symbol":`},
		{"bad side", `{"symbol":"BTCUSDT","side":"hold","quantity":1}`},
		{"bad order type", `{"symbol":"BTCUSDT","side":"buy","order_type":"stop","quantity":1}`},
		{"bad sl", `{"symbol":"BTCUSDT","side":"buy","quantity":1,"sl":"abc"}`},
		{"bad tp", `{"symbol":"BTCUSDT","side":"buy","quantity":1,"tp":"12x"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.body))
			require.Error(t, err)
			assert.Equal(t, ecode.SignalParseErr, errors.Code(err))
		})
	}
}

func TestParse_PercentQuantity(t *testing.T) {
	// 三种等价写法
	cases := []string{
		`{"symbol":"BTCUSDT","side":"buy","quantity":"10%"}`,
		`{"symbol":"BTCUSDT","side":"buy","quantity_pct":10}`,
		`{"symbol":"BTCUSDT","side":"buy","quantity_pct":"10"}`,
	}
	for _, body := range cases {
		sig, err := Parse([]byte(body))
		require.NoError(t, err, body)
		assert.Equal(t, model.QuantityPercentOfBalance, sig.Quantity.Kind, body)
		assert.True(t, sig.Quantity.Value.Equal(decimal.NewFromInt(10)), body)
	}

	// (0,100]边界
	for _, body := range []string{
		`{"symbol":"BTCUSDT","side":"buy","quantity_pct":0}`,
		`{"symbol":"BTCUSDT","side":"buy","quantity_pct":101}`,
		`{"symbol":"BTCUSDT","side":"buy","quantity":-0.5}`,
	} {
		_, err := Parse([]byte(body))
		assert.Error(t, err, body)
	}
}

func TestParse_PriceRules(t *testing.T) {
	// 限价必须有price
	_, err := Parse([]byte(`{"symbol":"BTCUSDT","side":"buy","order_type":"limit","quantity":1}`))
	assert.Error(t, err)

	sig, err := Parse([]byte(`{"symbol":"BTCUSDT","side":"buy","order_type":"limit","quantity":1,"price":65000}`))
	require.NoError(t, err)
	assert.True(t, sig.Price.Equal(decimal.NewFromInt(65000)))

	// 市价不允许有price，歧义信号直接拒绝
	_, err = Parse([]byte(`{"symbol":"BTCUSDT","side":"buy","order_type":"market","quantity":1,"price":65000}`))
	assert.Error(t, err)
}

func TestParse_ProtectivePrices(t *testing.T) {
	// 数字和字符串两种写法都接受
	sig, err := Parse([]byte(`{"symbol":"BTCUSDT","side":"buy","quantity":1,"sl":60000,"tp":"70000.5"}`))
	require.NoError(t, err)
	assert.True(t, sig.StopLoss.Equal(decimal.NewFromInt(60000)))
	assert.True(t, sig.TakeProfit.Equal(decimal.RequireFromString("70000.5")))

	// 缺省时为零值，下游据此跳过保护单
	sig, err = Parse([]byte(`{"symbol":"BTCUSDT","side":"buy","quantity":1}`))
	require.NoError(t, err)
	assert.True(t, sig.StopLoss.IsZero())
	assert.True(t, sig.TakeProfit.IsZero())
}

func TestFingerprint_StableAcrossByteVariants(t *testing.T) {
	// 字段顺序、空白、数字写法不同，但语义相同
	variants := [][]byte{
		[]byte(`{"symbol":"BTCUSDT","side":"buy","quantity":0.01,"nonce":"n1"}`),
		[]byte(`{ "nonce":"n1", "quantity":"0.01", "side":"BUY", "symbol":"BTC/USDT" }`),
		[]byte(`{"symbol":"btcusdt","side":"long","quantity":0.01,"nonce":"n1","comment":"ignored"}`),
	}

	var first string
	for i, body := range variants {
		sig, err := Parse(body)
		require.NoError(t, err)
		if i == 0 {
			first = sig.SignalID
			continue
		}
		assert.Equal(t, first, sig.SignalID, "variant %d", i)
	}
}

func TestFingerprint_DistinguishesSemantics(t *testing.T) {
	base := `{"symbol":"BTCUSDT","side":"buy","quantity":0.01,"nonce":"n1"}`
	different := []string{
		`{"symbol":"ETHUSDT","side":"buy","quantity":0.01,"nonce":"n1"}`,
		`{"symbol":"BTCUSDT","side":"sell","quantity":0.01,"nonce":"n1"}`,
		`{"symbol":"BTCUSDT","side":"buy","quantity":0.02,"nonce":"n1"}`,
		`{"symbol":"BTCUSDT","side":"buy","quantity":0.01,"nonce":"n2"}`,
		// 绝对数量1和百分比1%是不同的信号
		`{"symbol":"BTCUSDT","side":"buy","quantity":"1%","nonce":"n1"}`,
	}

	ref, err := Parse([]byte(base))
	require.NoError(t, err)
	for _, body := range different {
		sig, err := Parse([]byte(body))
		require.NoError(t, err, body)
		assert.NotEqual(t, ref.SignalID, sig.SignalID, body)
	}
}
