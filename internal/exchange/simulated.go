package exchange

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradehook/internal/model"
)

// 模拟交易所，本地联调和dry-run模式用
// clientOrderId重复提交时返回首次的订单，和真实交易所的幂等行为一致
type SimulatedExchange struct {
	mu       sync.Mutex
	orders   map[string]*model.OrderResponse // clientOrderId -> 首次响应
	prices   map[string]decimal.Decimal
	balances map[string]decimal.Decimal
}

func NewSimulatedExchange() *SimulatedExchange {
	return &SimulatedExchange{
		orders:   make(map[string]*model.OrderResponse),
		prices:   make(map[string]decimal.Decimal),
		balances: make(map[string]decimal.Decimal),
	}
}

// SetInitialPrice 设置初始价格
func (s *SimulatedExchange) SetInitialPrice(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

func (s *SimulatedExchange) SetBalance(asset string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[asset] = amount
}

func (s *SimulatedExchange) PlaceOrder(_ context.Context, order *model.Order) (*model.OrderResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.orders[order.ClientOrderID]; ok && order.ClientOrderID != "" {
		// 重复的clientOrderId，不二次成交
		return prev, nil
	}

	resp := &model.OrderResponse{
		OrderId: uuid.NewString(),
		Status:  "FILLED",
		Message: "Simulated order filled",
	}
	if order.ClientOrderID != "" {
		s.orders[order.ClientOrderID] = resp
	}
	return resp, nil
}

func (s *SimulatedExchange) GetBalance(_ context.Context, asset string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[asset], nil
}

func (s *SimulatedExchange) GetLastPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.prices[symbol]
	if !ok {
		// 没初始化的symbol给个固定价格，方便联调
		price = decimal.NewFromInt(10000)
		s.prices[symbol] = price
	}
	return price, nil
}

func (s *SimulatedExchange) ListPositions(_ context.Context) ([]model.PositionInfo, error) {
	return nil, nil
}
