package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"tradehook/internal/model"
)

type Exchange interface {
	// 下单
	PlaceOrder(ctx context.Context, order *model.Order) (*model.OrderResponse, error)
	// 查询某币种的可用余额
	GetBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	// 获取最新价格
	GetLastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	// 当前非零持仓
	ListPositions(ctx context.Context) ([]model.PositionInfo, error)
}
