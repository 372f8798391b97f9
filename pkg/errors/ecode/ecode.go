package ecode

// 业务错误码，0表示成功
// 按来源分段：10xxx 通用，20xxx 签名/鉴权，30xxx 信号，40xxx 交易所

const (
	Success = 0
	Unknown = 10001

	ValidateErr = 10002
	NotFoundErr = 10003

	RequireAuthErr  = 20001 // 签名缺失或不匹配
	StaleRequestErr = 20002 // 时间戳超出新鲜度窗口

	SignalParseErr = 30001 // 信号字段缺失或非法
	DuplicateErr   = 30002 // 重复信号，返回首次结果

	ExchangeRejectedErr    = 40001 // 交易所业务拒绝，重试无意义
	ExchangeUnavailableErr = 40002 // 瞬时故障重试耗尽
)

var messages = map[int]string{
	Success:                "OK",
	Unknown:                "internal error",
	ValidateErr:            "invalid request",
	NotFoundErr:            "not found",
	RequireAuthErr:         "invalid signature",
	StaleRequestErr:        "stale request",
	SignalParseErr:         "invalid signal",
	DuplicateErr:           "duplicate signal",
	ExchangeRejectedErr:    "order rejected by exchange",
	ExchangeUnavailableErr: "exchange temporarily unavailable",
}

// Message 返回错误码的默认描述
func Message(code int) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return messages[Unknown]
}
