package exchange

import (
	"fmt"

	"github.com/tidwall/gjson"

	"tradehook/pkg/errors"
)

// 交易所错误归一化：业务拒绝（不重试）与瞬时故障（重试）两类
// 交易所自己的错误码保留在Code里，便于排查

type APIError struct {
	HTTPStatus int
	Code       int64 // 交易所业务码，如-2010
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange error http=%d code=%d msg=%s retryable=%v",
		e.HTTPStatus, e.Code, e.Message, e.Retryable)
}

// binance把限频放在业务码里，部分4xx其实是瞬时故障
var transientCodes = map[int64]bool{
	-1003: true, // TOO_MANY_REQUESTS
	-1007: true, // TIMEOUT 后端超时，结果未知
	-1001: true, // DISCONNECTED 内部错误
}

// newAPIError 从响应body解析出交易所错误
// body形如 {"code":-2010,"msg":"Account has insufficient balance..."}
func newAPIError(httpStatus int, body []byte) *APIError {
	e := &APIError{
		HTTPStatus: httpStatus,
		Code:       gjson.GetBytes(body, "code").Int(),
		Message:    gjson.GetBytes(body, "msg").String(),
	}
	if e.Message == "" {
		e.Message = string(body)
	}

	switch {
	case httpStatus == 429 || httpStatus == 418:
		// 418是binance的封禁预警，继续打只会延长封禁
		e.Retryable = true
	case httpStatus >= 500:
		e.Retryable = true
	case transientCodes[e.Code]:
		e.Retryable = true
	}
	return e
}

// IsTransient 瞬时故障，值得退避后重试
func IsTransient(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	// 网络层错误（超时、连接重置）一律按瞬时处理
	return err != nil
}

// IsBusiness 业务拒绝，重试不可能成功
func IsBusiness(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return !ae.Retryable
	}
	return false
}

// AsAPIError 取出归一化的交易所错误
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	ok := errors.As(err, &ae)
	return ae, ok
}
