package status

import (
	"github.com/gin-gonic/gin"

	"tradehook/conf"
	"tradehook/internal/consts"
	"tradehook/internal/exchange"
	"tradehook/pkg/response"
)

// 运行状态查询接口，不在下单主链路上

type Handler struct {
	ex exchange.Exchange
}

func NewHandler(ex exchange.Exchange) *Handler {
	return &Handler{ex: ex}
}

type statusResult struct {
	Balance  string `json:"balance"`
	Asset    string `json:"asset"`
	BtcPrice string `json:"btc_price"`
	Testnet  bool   `json:"testnet"`
	DryRun   bool   `json:"dry_run"`
}

// Status 查询账户计价币可用余额、BTC现价和运行模式
func (h *Handler) Status() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		balance, err := h.ex.GetBalance(ctx.Request.Context(), consts.QuoteAsset)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		price, err := h.ex.GetLastPrice(ctx.Request.Context(), "BTC"+consts.QuoteAsset)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, statusResult{
			Balance:  balance.String(),
			Asset:    consts.QuoteAsset,
			BtcPrice: price.String(),
			Testnet:  conf.AppConfig.Binance.Testnet,
			DryRun:   conf.AppConfig.Binance.DryRun,
		})
	}
}

// Positions 查询当前非零持仓
func (h *Handler) Positions() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		positions, err := h.ex.ListPositions(ctx.Request.Context())
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, positions)
	}
}
