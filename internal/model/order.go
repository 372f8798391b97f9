package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order 发往交易所的下单参数，由TradeSignal换算而来
// Quantity此时一定是绝对数量
type Order struct {
	Symbol        string
	Side          OrderSide
	OrderType     OrderType
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	ClientOrderID string // 由SignalID推导，交易所侧幂等的关键
	Timestamp     time.Time

	// 保护单触发价，入场成交后挂出，零值表示不挂
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

type OrderResponse struct {
	OrderId string
	Status  string
	Message string
}

// PositionInfo 当前持仓快照，/positions接口用
type PositionInfo struct {
	Symbol        string          `json:"symbol"`
	Amount        decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
	Leverage      int             `json:"leverage"`
}
