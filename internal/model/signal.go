package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

type OrderType string

const (
	// 市价单
	Market OrderType = "MARKET"
	// 限价单
	Limit OrderType = "LIMIT"
)

// 数量的两种形态：绝对数量，或可用余额的百分比
// 百分比在下单前才通过余额查询换算成绝对数量
type QuantityKind int

const (
	QuantityAbsolute QuantityKind = iota
	QuantityPercentOfBalance
)

type Quantity struct {
	Kind  QuantityKind
	Value decimal.Decimal // 绝对数量，或百分比(0,100]
}

func AbsoluteQuantity(v decimal.Decimal) Quantity {
	return Quantity{Kind: QuantityAbsolute, Value: v}
}

func PercentQuantity(v decimal.Decimal) Quantity {
	return Quantity{Kind: QuantityPercentOfBalance, Value: v}
}

// TradeSignal 解析后的标准化交易指令
type TradeSignal struct {
	Symbol    string // BTCUSDT
	Side      OrderSide
	OrderType OrderType
	Quantity  Quantity
	Price     decimal.Decimal // 仅限价单有意义

	// 可选的止损止盈建议价，透传自告警内容
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal

	// 发送端带的nonce或时间戳，参与指纹计算
	Nonce string

	// SignalID 信号指纹，对语义字段做哈希得到
	// 同一信号的字节级变体（字段顺序、空白差异）映射到同一个ID
	SignalID string

	ReceivedAt time.Time
}
