package billing

import "github.com/shopspring/decimal"

// TokenUsage 统一的 token 使用量结构
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// CostResult 成本计算结果
type CostResult struct {
	CostMicros   int64           // 微美元 (USD * 1e6)
	CostUsd      decimal.Decimal // USD，保留 6 位小数
	PricingModel string
	PriceFound   bool
}

// Float returns the USD cost as float64 for the outbound response.
func (r CostResult) Float() float64 {
	f, _ := r.CostUsd.Float64()
	return f
}
