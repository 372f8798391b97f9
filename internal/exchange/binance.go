package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"tradehook/conf"
	"tradehook/internal/model"
	"tradehook/pkg/logger"
)

// Binance USDT本位合约的REST客户端
// 签名方式：query string 整体做 HMAC-SHA256，hex编码后附加 signature 参数
// 幂等依赖 newClientOrderId：同一信号重试时交易所按重复单处理，不会二次成交

const (
	binanceLiveURL    = "https://fapi.binance.com"
	binanceTestnetURL = "https://testnet.binancefuture.com"

	// clientOrderId上限36字符，取指纹前缀足够避免碰撞
	clientOrderIDPrefix = "th-"
	clientOrderIDHexLen = 24
)

type BinanceClient struct {
	apiKey    string
	secretKey string
	baseURL   string

	httpClient *http.Client
	limiter    *rate.Limiter
	node       *snowflake.Node

	recvWindowMs int64
	maxAttempts  int
	retryBase    time.Duration

	nowFn   func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) error
}

func NewBinanceClient(cfg conf.BinanceConfig) (*BinanceClient, error) {
	if cfg.ApiKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("binance: api key and secret are required")
	}

	baseURL := binanceLiveURL
	if cfg.Testnet {
		baseURL = binanceTestnetURL
	}

	// snowflake用于给没带信号指纹的订单生成clientOrderId
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}

	return &BinanceClient{
		apiKey:       cfg.ApiKey,
		secretKey:    cfg.SecretKey,
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		limiter:      rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		node:         node,
		recvWindowMs: cfg.RecvWindowMs,
		maxAttempts:  cfg.MaxAttempts,
		retryBase:    cfg.RetryBase,
		nowFn:        time.Now,
		sleepFn:      sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PlaceOrder 提交订单
// 调用方传入的Quantity必须已经是绝对数量
func (c *BinanceClient) PlaceOrder(ctx context.Context, order *model.Order) (*model.OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("type", string(order.OrderType))
	params.Set("quantity", order.Quantity.String())
	if order.OrderType == model.Limit {
		params.Set("price", order.Price.String())
		params.Set("timeInForce", "GTC")
	}
	params.Set("newClientOrderId", c.clientOrderID(order.ClientOrderID))

	body, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return nil, err
	}

	// 入场被接受后才挂止损止盈
	c.placeProtective(ctx, order)

	return &model.OrderResponse{
		OrderId: gjson.GetBytes(body, "orderId").String(),
		Status:  gjson.GetBytes(body, "status").String(),
	}, nil
}

// placeProtective 挂保护单（反向的STOP_MARKET/TAKE_PROFIT_MARKET，closePosition）
// 失败只记日志，不回滚已成交的入场单
func (c *BinanceClient) placeProtective(ctx context.Context, order *model.Order) {
	closeSide := model.Sell
	if order.Side == model.Sell {
		closeSide = model.Buy
	}

	if order.StopLoss.IsPositive() {
		if err := c.placeTrigger(ctx, order.Symbol, closeSide, "STOP_MARKET", order.StopLoss); err != nil {
			logger.Errorf("stop loss order failed symbol=%s stop=%s err=%v",
				order.Symbol, order.StopLoss, err)
		}
	}
	if order.TakeProfit.IsPositive() {
		if err := c.placeTrigger(ctx, order.Symbol, closeSide, "TAKE_PROFIT_MARKET", order.TakeProfit); err != nil {
			logger.Errorf("take profit order failed symbol=%s stop=%s err=%v",
				order.Symbol, order.TakeProfit, err)
		}
	}
}

func (c *BinanceClient) placeTrigger(ctx context.Context, symbol string, side model.OrderSide, orderType string, stopPrice decimal.Decimal) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", orderType)
	params.Set("stopPrice", stopPrice.String())
	params.Set("closePosition", "true")
	_, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/order", params)
	return err
}

// GetBalance 查询可用余额
func (c *BinanceClient) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v2/balance", url.Values{})
	if err != nil {
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	gjson.ParseBytes(body).ForEach(func(_, entry gjson.Result) bool {
		if entry.Get("asset").String() != asset {
			return true
		}
		balance, err = decimal.NewFromString(entry.Get("availableBalance").String())
		return false
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (c *BinanceClient) GetLastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.doPublic(ctx, "/fapi/v1/ticker/price", params)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(gjson.GetBytes(body, "price").String())
}

func (c *BinanceClient) ListPositions(ctx context.Context) ([]model.PositionInfo, error) {
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v2/positionRisk", url.Values{})
	if err != nil {
		return nil, err
	}

	var positions []model.PositionInfo
	gjson.ParseBytes(body).ForEach(func(_, entry gjson.Result) bool {
		amt, err := decimal.NewFromString(entry.Get("positionAmt").String())
		if err != nil || amt.IsZero() {
			return true
		}
		entryPrice, _ := decimal.NewFromString(entry.Get("entryPrice").String())
		pnl, _ := decimal.NewFromString(entry.Get("unRealizedProfit").String())
		positions = append(positions, model.PositionInfo{
			Symbol:        entry.Get("symbol").String(),
			Amount:        amt,
			EntryPrice:    entryPrice,
			UnrealizedPnl: pnl,
			Leverage:      int(entry.Get("leverage").Int()),
		})
		return true
	})
	return positions, nil
}

// clientOrderID 信号指纹推导出交易所侧的幂等键
func (c *BinanceClient) clientOrderID(signalID string) string {
	if signalID == "" {
		return clientOrderIDPrefix + c.node.Generate().String()
	}
	if len(signalID) > clientOrderIDHexLen {
		signalID = signalID[:clientOrderIDHexLen]
	}
	return clientOrderIDPrefix + signalID
}

func (c *BinanceClient) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// doSigned 发起签名请求，内部带限速和有界退避重试
// 重试状态机：Attempt(n) -> 成功 | 瞬时故障->Attempt(n+1) | 业务拒绝 | 次数耗尽
func (c *BinanceClient) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			// 指数退避 1x,2x,4x...
			wait := c.retryBase * time.Duration(1<<(attempt-1))
			logger.Debugf("binance retry attempt=%d wait=%s err=%v", attempt+1, wait, lastErr)
			if err := c.sleepFn(ctx, wait); err != nil {
				return nil, err
			}
		}

		// 主动限速，不要等到429才刹车
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		// 时间戳每次重试都要刷新，否则会超出recvWindow
		q := cloneValues(params)
		q.Set("timestamp", strconv.FormatInt(c.nowFn().UnixMilli(), 10))
		q.Set("recvWindow", strconv.FormatInt(c.recvWindowMs, 10))
		query := q.Encode()
		query += "&signature=" + c.sign(query)

		body, err := c.doOnce(ctx, method, path, query)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if IsBusiness(err) {
			return nil, err
		}
	}

	// 重试耗尽，保持Retryable=true让上层标记FAILED(retryable)
	if ae, ok := AsAPIError(lastErr); ok {
		return nil, ae
	}
	return nil, &APIError{
		Message:   fmt.Sprintf("gave up after %d attempts: %v", c.maxAttempts, lastErr),
		Retryable: true,
	}
}

func (c *BinanceClient) doOnce(ctx context.Context, method, path, query string) ([]byte, error) {
	var reqURL string
	var bodyReader io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		reqURL = c.baseURL + path + "?" + query
	} else {
		reqURL = c.baseURL + path
		bodyReader = strings.NewReader(query)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return body, nil
}

// doPublic 公共行情接口，无需签名但同样受限速约束
func (c *BinanceClient) doPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return body, nil
}

func cloneValues(src url.Values) url.Values {
	dst := url.Values{}
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	return dst
}
