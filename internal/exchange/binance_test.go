package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradehook/conf"
	"tradehook/internal/model"
)

func newTestClient(t *testing.T, serverURL string) *BinanceClient {
	t.Helper()
	c, err := NewBinanceClient(conf.BinanceConfig{
		ApiKey:       "test-api-key",
		SecretKey:    "test-secret",
		RecvWindowMs: 5000,
		RateLimit:    1000, // 测试里不要被限速拖慢
		RateBurst:    1000,
		MaxAttempts:  3,
		RetryBase:    time.Millisecond,
	})
	require.NoError(t, err)
	c.baseURL = serverURL
	return c
}

func marketOrder(clientID string) *model.Order {
	return &model.Order{
		Symbol:        "BTCUSDT",
		Side:          model.Buy,
		OrderType:     model.Market,
		Quantity:      decimal.RequireFromString("0.01"),
		ClientOrderID: clientID,
	}
}

func TestPlaceOrder_SignsRequest(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v1/order", r.URL.Path)
		require.Equal(t, "test-api-key", r.Header.Get("X-MBX-APIKEY"))

		require.NoError(t, r.ParseForm())
		gotQuery = r.PostForm
		w.Write([]byte(`{"orderId":283194,"status":"NEW"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	signalID := strings.Repeat("ab", 32)
	resp, err := c.PlaceOrder(context.Background(), marketOrder(signalID))
	require.NoError(t, err)
	assert.Equal(t, "283194", resp.OrderId)

	assert.Equal(t, "BTCUSDT", gotQuery.Get("symbol"))
	assert.Equal(t, "BUY", gotQuery.Get("side"))
	assert.Equal(t, "MARKET", gotQuery.Get("type"))
	assert.Equal(t, "0.01", gotQuery.Get("quantity"))
	assert.NotEmpty(t, gotQuery.Get("timestamp"))
	assert.Equal(t, "5000", gotQuery.Get("recvWindow"))

	// clientOrderId = 前缀 + 指纹前24位
	assert.Equal(t, "th-"+signalID[:24], gotQuery.Get("newClientOrderId"))

	// 服务端按同样的算法重算签名
	sig := gotQuery.Get("signature")
	require.NotEmpty(t, sig)
	unsigned := cloneValues(gotQuery)
	unsigned.Del("signature")
	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(unsigned.Encode()))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), sig)
}

func TestPlaceOrder_PlacesProtectiveOrders(t *testing.T) {
	var posts []url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v1/order", r.URL.Path)
		require.NoError(t, r.ParseForm())
		posts = append(posts, r.PostForm)
		w.Write([]byte(`{"orderId":77,"status":"NEW"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	order := marketOrder("sig")
	order.StopLoss = decimal.NewFromInt(60000)
	order.TakeProfit = decimal.NewFromInt(70000)

	resp, err := c.PlaceOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "77", resp.OrderId)

	// 入场 + 止损 + 止盈，共三笔
	require.Len(t, posts, 3)
	assert.Equal(t, "MARKET", posts[0].Get("type"))
	assert.Equal(t, "BUY", posts[0].Get("side"))

	// 保护单方向与入场相反，closePosition触发后平掉整个仓位
	assert.Equal(t, "STOP_MARKET", posts[1].Get("type"))
	assert.Equal(t, "SELL", posts[1].Get("side"))
	assert.Equal(t, "60000", posts[1].Get("stopPrice"))
	assert.Equal(t, "true", posts[1].Get("closePosition"))

	assert.Equal(t, "TAKE_PROFIT_MARKET", posts[2].Get("type"))
	assert.Equal(t, "SELL", posts[2].Get("side"))
	assert.Equal(t, "70000", posts[2].Get("stopPrice"))
}

func TestPlaceOrder_NoProtectiveWithoutPrices(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"orderId":1,"status":"NEW"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.PlaceOrder(context.Background(), marketOrder("sig"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPlaceOrder_ProtectiveFailureKeepsEntry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		atomic.AddInt32(&calls, 1)
		if r.PostForm.Get("type") == "STOP_MARKET" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":-2021,"msg":"Order would immediately trigger."}`))
			return
		}
		w.Write([]byte(`{"orderId":5,"status":"NEW"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	order := marketOrder("sig")
	order.StopLoss = decimal.NewFromInt(60000)

	// 止损挂单失败不回滚入场单
	resp, err := c.PlaceOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "5", resp.OrderId)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPlaceOrder_BackoffDelaysIncrease(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"code":-1001,"msg":"DISCONNECTED"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.maxAttempts = 4
	c.retryBase = 10 * time.Millisecond

	var waits []time.Duration
	c.sleepFn = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	_, err := c.PlaceOrder(context.Background(), marketOrder("sig"))
	require.Error(t, err)

	// 4次尝试之间退避3次，间隔严格递增 1x,2x,4x
	require.Len(t, waits, 3)
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
	}, waits)
	for i := 1; i < len(waits); i++ {
		assert.Greater(t, waits[i], waits[i-1])
	}
}

func TestPlaceOrder_RetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
			return
		}
		w.Write([]byte(`{"orderId":99,"status":"NEW"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.PlaceOrder(context.Background(), marketOrder("sig"))
	require.NoError(t, err)
	assert.Equal(t, "99", resp.OrderId)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPlaceOrder_BusinessErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance for requested action."}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.PlaceOrder(context.Background(), marketOrder("sig"))
	require.Error(t, err)

	ae, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, int64(-2010), ae.Code)
	assert.False(t, ae.Retryable)
	// 业务拒绝只打一次，重试烧权重没有意义
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPlaceOrder_RetryExhaustion(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"code":-1001,"msg":"DISCONNECTED"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.PlaceOrder(context.Background(), marketOrder("sig"))
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	// 耗尽后错误仍标记为可重试，让账本记FAILED(retryable)
	ae, ok := AsAPIError(err)
	require.True(t, ok)
	assert.True(t, ae.Retryable)
}

func TestPlaceOrder_TimestampRefreshedPerAttempt(t *testing.T) {
	var timestamps []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		timestamps = append(timestamps, r.PostForm.Get("timestamp"))
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	// 每次尝试推进时钟，断言时间戳不是复用的
	base := time.Now()
	var tick int64
	c.nowFn = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	_, err := c.PlaceOrder(context.Background(), marketOrder("sig"))
	require.Error(t, err)
	require.Len(t, timestamps, 3)
	assert.NotEqual(t, timestamps[0], timestamps[1])
	assert.NotEqual(t, timestamps[1], timestamps[2])
}

func TestGetBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v2/balance", r.URL.Path)
		w.Write([]byte(`[
			{"asset":"USDT","availableBalance":"1523.75"},
			{"asset":"BTC","availableBalance":"1.0"}
		]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	balance, err := c.GetBalance(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(1)))

	// 列表里没有的币种返回0
	balance, err = c.GetBalance(context.Background(), "DOGE")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestGetLastPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v1/ticker/price", r.URL.Path)
		require.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"64231.50"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	price, err := c.GetLastPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("64231.50")))
}

func TestClientOrderID(t *testing.T) {
	c := newTestClient(t, "http://unused")
	long := strings.Repeat("f", 64)
	assert.Equal(t, "th-"+strings.Repeat("f", 24), c.clientOrderID(long))
	assert.Equal(t, "th-short", c.clientOrderID("short"))
	// 没有指纹时也要生成唯一id
	assert.NotEqual(t, c.clientOrderID(""), c.clientOrderID(""))
}
