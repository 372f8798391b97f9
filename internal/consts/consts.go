package consts

const (
	// RequestId 请求id名称
	RequestId = "request_id"

	// webhook请求头
	SignatureHeader = "X-Signature"
	TimestampHeader = "X-Timestamp"

	// 计价币种，/status的余额查询基于它；百分比下单按基础币余额换算
	QuoteAsset = "USDT"

	DateLayout = "2006-01-02"
	TimeLayout = "2006-01-02 15:04:05"
)
