package webhook

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradehook/internal/consts"
	"tradehook/internal/model"
	"tradehook/internal/relay"
	"tradehook/internal/signal"
	"tradehook/internal/webhook"
	"tradehook/pkg/errors"
	"tradehook/pkg/errors/ecode"
	"tradehook/pkg/logger"
	"tradehook/pkg/response"
)

// webhook入口：验签 -> 解析 -> 幂等执行 -> 按结果映射http状态码
// 顺序不能乱：没验签过的请求绝不进解析器

type Handler struct {
	verifier *webhook.Verifier
	svc      *relay.Service
}

func NewHandler(v *webhook.Verifier, svc *relay.Service) *Handler {
	return &Handler{verifier: v, svc: svc}
}

// 响应里给发送端的数据部分
type orderResult struct {
	Status          string `json:"status"`
	SignalID        string `json:"signal_id"`
	ExchangeOrderID string `json:"order_id,omitempty"`
	Duplicate       bool   `json:"duplicate,omitempty"`
	Retryable       bool   `json:"retryable,omitempty"`
}

func (h *Handler) HandlerWebhook() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		body, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			response.JSONStatus(ctx, http.StatusBadRequest,
				errors.WithCode(ecode.ValidateErr, "failed to read body"), nil)
			return
		}
		defer ctx.Request.Body.Close()

		// 验签
		if err := h.verifier.Verify(body,
			ctx.GetHeader(consts.SignatureHeader),
			ctx.GetHeader(consts.TimestampHeader)); err != nil {
			logger.Warnf("webhook rejected: %v", err)
			response.RequireAuthErr(ctx, err)
			return
		}

		sig, err := signal.Parse(body)
		if err != nil {
			response.JSONStatus(ctx, http.StatusBadRequest, err, nil)
			return
		}

		result, err := h.svc.Execute(ctx.Request.Context(), sig)
		if err != nil {
			response.JSONStatus(ctx, http.StatusInternalServerError, err, nil)
			return
		}

		status, respErr := reportOutcome(result)
		response.JSONStatus(ctx, status, respErr, orderResult{
			Status:          string(result.Record.Status),
			SignalID:        result.Record.SignalID,
			ExchangeOrderID: result.Record.ExchangeOrderID,
			Duplicate:       result.Duplicate,
			Retryable:       result.Record.Retryable,
		})
	}
}

// reportOutcome 账本终态到http状态码的映射
//
//	SUCCEEDED            -> 200
//	FAILED 业务拒绝        -> 422
//	FAILED 重试耗尽        -> 503
//	重复信号               -> 首次的结果；还在PENDING时返回409
func reportOutcome(result *relay.Result) (int, error) {
	rec := result.Record
	switch rec.Status {
	case model.LedgerSucceeded:
		if result.Duplicate {
			return http.StatusOK, errors.WithCode(ecode.DuplicateErr, "duplicate signal, returning prior result")
		}
		return http.StatusOK, nil
	case model.LedgerFailed:
		code := ecode.ExchangeRejectedErr
		status := http.StatusUnprocessableEntity
		if rec.Retryable {
			code = ecode.ExchangeUnavailableErr
			status = http.StatusServiceUnavailable
		}
		return status, errors.WithCode(code, rec.ErrMessage)
	case model.LedgerPending:
		// 并发重投撞上还在途的首次提交
		return http.StatusConflict, errors.WithCode(ecode.DuplicateErr, "signal is being processed")
	default:
		return http.StatusInternalServerError, errors.WithCode(ecode.Unknown, "")
	}
}
