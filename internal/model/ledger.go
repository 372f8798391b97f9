package model

import "time"

type LedgerStatus string

const (
	// 已占位，订单提交中
	LedgerPending   LedgerStatus = "PENDING"
	LedgerSucceeded LedgerStatus = "SUCCEEDED"
	LedgerFailed    LedgerStatus = "FAILED"
)

// LedgerRecord 幂等账本记录，signal_id唯一
// 状态只允许 PENDING->SUCCEEDED 或 PENDING->FAILED，不可逆转
type LedgerRecord struct {
	ID              uint         `gorm:"column:id;primary_key" json:"-"`
	SignalID        string       `gorm:"column:signal_id;uniqueIndex;size:64" json:"signal_id"`
	Status          LedgerStatus `gorm:"column:status;size:16" json:"status"`
	ExchangeOrderID string       `gorm:"column:exchange_order_id;size:64" json:"exchange_order_id,omitempty"`

	// 失败详情
	ErrCode    int    `gorm:"column:err_code" json:"err_code,omitempty"`
	ErrMessage string `gorm:"column:err_message;size:255" json:"err_message,omitempty"`
	// true表示瞬时故障重试耗尽，发送端可稍后重投
	Retryable bool `gorm:"column:retryable" json:"retryable"`

	FirstSeenAt   time.Time `gorm:"column:first_seen_at" json:"first_seen_at"`
	LastUpdatedAt time.Time `gorm:"column:last_updated_at" json:"last_updated_at"`
}

func (LedgerRecord) TableName() string {
	return "signal_ledger"
}

// Terminal 是否已是终态
func (r *LedgerRecord) Terminal() bool {
	return r.Status == LedgerSucceeded || r.Status == LedgerFailed
}
