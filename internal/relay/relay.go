package relay

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradehook/internal/exchange"
	"tradehook/internal/ledger"
	"tradehook/internal/model"
	"tradehook/pkg/errors"
	"tradehook/pkg/errors/ecode"
	"tradehook/pkg/logger"
	"tradehook/pkg/utils"
)

// 信号执行管线：账本占位 -> 百分比数量换算 -> 提交订单 -> 账本提交终态
// 同一signal_id并发打进来时，只有第一个会真正触达交易所

// 发送端断开不代表订单可以丢，提交用独立的超时
const submitTimeout = 2 * time.Minute

type Service struct {
	store ledger.Store
	ex    exchange.Exchange
}

func NewService(store ledger.Store, ex exchange.Exchange) *Service {
	return &Service{store: store, ex: ex}
}

// Result Execute的返回，Duplicate=true表示返回的是先前的结果
type Result struct {
	Record    *model.LedgerRecord
	Duplicate bool
}

// Execute 执行一条标准化信号
// 返回error仅代表管线自身故障（账本不可用等），下单失败体现在Record里
func (s *Service) Execute(ctx context.Context, sig *model.TradeSignal) (*Result, error) {
	res, err := s.store.Reserve(ctx, sig.SignalID)
	if err != nil {
		return nil, err
	}
	if !res.Fresh {
		logger.Infof("duplicate signal %s status=%s", shortID(sig.SignalID), res.Existing.Status)
		return &Result{Record: res.Existing, Duplicate: true}, nil
	}

	// 调用方（webhook发送端）超时断开后，在途的交易所请求必须跑完并落账，
	// 否则可能出现订单已成交但账本没有记录
	subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), submitTimeout)
	defer cancel()

	outcome := s.submit(subCtx, sig)
	if err := s.store.Commit(subCtx, sig.SignalID, outcome); err != nil {
		// 账本写失败比下单失败更严重，幂等保护出现缺口
		logger.Errorf("ledger commit failed signal=%s err=%v", shortID(sig.SignalID), err)
		return nil, err
	}

	rec, found, err := s.store.Get(subCtx, sig.SignalID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.WithCode(ecode.Unknown, "ledger record vanished after commit")
	}
	return &Result{Record: rec}, nil
}

// submit 换算数量并提交，任何失败都归一化成Outcome
func (s *Service) submit(ctx context.Context, sig *model.TradeSignal) ledger.Outcome {
	qty, err := s.resolveQuantity(ctx, sig)
	if err != nil {
		return outcomeFromErr(err)
	}

	order := &model.Order{
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		OrderType:     sig.OrderType,
		Quantity:      qty,
		Price:         sig.Price,
		ClientOrderID: sig.SignalID,
		Timestamp:     sig.ReceivedAt,
		StopLoss:      sig.StopLoss,
		TakeProfit:    sig.TakeProfit,
	}

	resp, err := s.ex.PlaceOrder(ctx, order)
	if err != nil {
		logger.Errorf("order failed signal=%s symbol=%s err=%v", shortID(sig.SignalID), sig.Symbol, err)
		return outcomeFromErr(err)
	}

	logger.Infof("order placed signal=%s symbol=%s side=%s qty=%s order_id=%s",
		shortID(sig.SignalID), sig.Symbol, sig.Side, qty, resp.OrderId)
	return ledger.Outcome{
		Status:          model.LedgerSucceeded,
		ExchangeOrderID: resp.OrderId,
	}
}

// resolveQuantity 百分比数量在这里换算成绝对数量
// 10% + 余额1.0 BTC -> 0.1 BTC
func (s *Service) resolveQuantity(ctx context.Context, sig *model.TradeSignal) (decimal.Decimal, error) {
	if sig.Quantity.Kind == model.QuantityAbsolute {
		return sig.Quantity.Value, nil
	}

	// 百分比基于基础币的可用余额：10% x 1.0 BTC -> 下单0.1 BTC
	asset := utils.BaseAsset(sig.Symbol)
	balance, err := s.ex.GetBalance(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}

	qty := balance.Mul(sig.Quantity.Value).Div(decimal.NewFromInt(100))
	// 除法可能产生超长小数，截断到1e-6避免交易所按精度拒单
	qty = utils.RoundStep(qty, decimal.New(1, -6))
	if !qty.IsPositive() {
		return decimal.Zero, &exchange.APIError{
			Message:   "balance too low to size order",
			Retryable: false,
		}
	}
	return qty, nil
}

func outcomeFromErr(err error) ledger.Outcome {
	out := ledger.Outcome{
		Status:     model.LedgerFailed,
		ErrMessage: err.Error(),
	}
	if ae, ok := exchange.AsAPIError(err); ok {
		out.ErrCode = int(ae.Code)
		out.Retryable = ae.Retryable
	} else {
		// 非交易所错误（网络层等）按瞬时处理
		out.Retryable = exchange.IsTransient(err)
	}
	return out
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
