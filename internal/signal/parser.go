package signal

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"tradehook/internal/model"
	"tradehook/pkg/errors"
	"tradehook/pkg/errors/ecode"
	"tradehook/pkg/utils"
)

// TradingView告警的载荷解析
// 字段宽容：数字可以是字符串或数字，side接受buy/sell/long/short
// 未知字段一律忽略

// rawAlert 原始载荷，数字字段用interface{}接住再统一转换
type rawAlert struct {
	Symbol      string      `json:"symbol" validate:"required"`
	Side        string      `json:"side"`
	Signal      string      `json:"signal"` // 旧版字段，LONG/SHORT
	OrderType   string      `json:"order_type"`
	Quantity    interface{} `json:"quantity"`
	QuantityPct interface{} `json:"quantity_pct"`
	Price       interface{} `json:"price"`
	SL          interface{} `json:"sl"`
	TP          interface{} `json:"tp"`
	Nonce       string      `json:"nonce"`
	Timestamp   interface{} `json:"timestamp"`
}

var validate = validator.New()

// Parse 把验签通过的原始载荷转换为标准化的TradeSignal
// 失败返回SignalParseErr，调用方映射为400
func Parse(body []byte) (*model.TradeSignal, error) {
	var raw rawAlert
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrap(err, ecode.SignalParseErr, "invalid JSON payload")
	}
	if err := validate.Struct(&raw); err != nil {
		return nil, errors.Wrap(err, ecode.SignalParseErr, "missing required field: symbol")
	}

	sig := &model.TradeSignal{
		Symbol:     utils.NormalizeSymbol(raw.Symbol),
		ReceivedAt: time.Now(),
	}
	if sig.Symbol == "" {
		return nil, errors.WithCode(ecode.SignalParseErr, "missing required field: symbol")
	}

	side, err := parseSide(raw.Side, raw.Signal)
	if err != nil {
		return nil, err
	}
	sig.Side = side

	switch strings.ToUpper(strings.TrimSpace(raw.OrderType)) {
	case "", "MARKET":
		sig.OrderType = model.Market
	case "LIMIT":
		sig.OrderType = model.Limit
	default:
		return nil, errors.WithCode(ecode.SignalParseErr, "unsupported order_type")
	}

	qty, err := parseQuantity(raw.Quantity, raw.QuantityPct)
	if err != nil {
		return nil, err
	}
	sig.Quantity = qty

	price, err := parseDecimal(raw.Price)
	if err != nil {
		return nil, errors.WithCode(ecode.SignalParseErr, "invalid price")
	}
	// 限价单必须有price，市价单不允许有
	if sig.OrderType == model.Limit && price.IsZero() {
		return nil, errors.WithCode(ecode.SignalParseErr, "limit order requires price")
	}
	if sig.OrderType == model.Market && !price.IsZero() {
		return nil, errors.WithCode(ecode.SignalParseErr, "market order must not carry price")
	}
	sig.Price = price

	sl, err := parseDecimal(raw.SL)
	if err != nil {
		return nil, errors.WithCode(ecode.SignalParseErr, "invalid sl")
	}
	sig.StopLoss = sl
	tp, err := parseDecimal(raw.TP)
	if err != nil {
		return nil, errors.WithCode(ecode.SignalParseErr, "invalid tp")
	}
	sig.TakeProfit = tp

	sig.Nonce = raw.Nonce
	if sig.Nonce == "" && raw.Timestamp != nil {
		sig.Nonce = cast.ToString(raw.Timestamp)
	}

	sig.SignalID = Fingerprint(sig)
	return sig, nil
}

// Fingerprint 对语义字段做sha256，刻意不含原始字节
// 同一信号的重投即使字节不同也会得到相同指纹
func Fingerprint(sig *model.TradeSignal) string {
	var b strings.Builder
	b.WriteString(sig.Symbol)
	b.WriteByte('|')
	b.WriteString(string(sig.Side))
	b.WriteByte('|')
	b.WriteString(string(sig.OrderType))
	b.WriteByte('|')
	if sig.Quantity.Kind == model.QuantityPercentOfBalance {
		b.WriteString("pct:")
	}
	b.WriteString(sig.Quantity.Value.String())
	b.WriteByte('|')
	b.WriteString(sig.Price.String())
	b.WriteByte('|')
	b.WriteString(sig.Nonce)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func parseSide(side, legacy string) (model.OrderSide, error) {
	s := strings.ToUpper(strings.TrimSpace(side))
	if s == "" {
		s = strings.ToUpper(strings.TrimSpace(legacy))
	}
	switch s {
	case "BUY", "LONG":
		return model.Buy, nil
	case "SELL", "SHORT":
		return model.Sell, nil
	case "":
		return "", errors.WithCode(ecode.SignalParseErr, "missing required field: side")
	default:
		return "", errors.WithCode(ecode.SignalParseErr, "unsupported side: "+s)
	}
}

// 数量支持三种写法：quantity:"0.01"、quantity:"10%"、quantity_pct:10
func parseQuantity(qty, pct interface{}) (model.Quantity, error) {
	if qty != nil {
		if s, ok := qty.(string); ok && strings.HasSuffix(strings.TrimSpace(s), "%") {
			pct = strings.TrimSuffix(strings.TrimSpace(s), "%")
			qty = nil
		}
	}

	if qty != nil {
		v, err := parseDecimal(qty)
		if err != nil || !v.IsPositive() {
			return model.Quantity{}, errors.WithCode(ecode.SignalParseErr, "quantity must be positive")
		}
		return model.AbsoluteQuantity(v), nil
	}

	if pct != nil {
		v, err := parseDecimal(pct)
		if err != nil || !v.IsPositive() || v.GreaterThan(decimal.NewFromInt(100)) {
			return model.Quantity{}, errors.WithCode(ecode.SignalParseErr, "quantity_pct must be in (0,100]")
		}
		return model.PercentQuantity(v), nil
	}

	return model.Quantity{}, errors.WithCode(ecode.SignalParseErr, "missing required field: quantity")
}

func parseDecimal(v interface{}) (decimal.Decimal, error) {
	if v == nil {
		return decimal.Zero, nil
	}
	s := strings.TrimSpace(cast.ToString(v))
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
