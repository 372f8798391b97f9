package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// 常见的计价币后缀，用于拆分交易对
var quotes = []string{"USDT", "USDC", "BUSD", "USD"}

// NormalizeSymbol 将 TradingView ticker 转换为交易所可识别的 symbol
// "BTC/USDT"、"btc-usdt"、"BINANCE:BTCUSDT" -> "BTCUSDT"
func NormalizeSymbol(tvSymbol string) string {
	s := strings.ToUpper(strings.TrimSpace(tvSymbol))
	// 去掉 "BINANCE:" 这种交易所前缀
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

// BaseAsset 从交易对中取出基础币种，BTCUSDT -> BTC
// 没匹配到已知计价币时返回原始symbol
func BaseAsset(symbol string) string {
	for _, q := range quotes {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return strings.TrimSuffix(symbol, q)
		}
	}
	return symbol
}

// RoundStep 把数量向下取整到交易所的步进精度，避免LOT_SIZE拒单
func RoundStep(v decimal.Decimal, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}
