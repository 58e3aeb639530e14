package billing

import (
	"modelgate/internal/model"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	thousand = decimal.NewFromInt(1000)
	million  = decimal.NewFromInt(1_000_000)
)

// PriceLookup resolves a model descriptor by name.
type PriceLookup interface {
	Get(name string) (model.ModelDescriptor, bool)
}

// CostCalculator 成本计算器（按模型目录单价估算，非上游计量）
type CostCalculator struct {
	prices PriceLookup
}

// NewCostCalculator 创建成本计算器
func NewCostCalculator(prices PriceLookup) *CostCalculator {
	return &CostCalculator{prices: prices}
}

// Calculate 计算请求成本
func (c *CostCalculator) Calculate(pricingModel string, usage TokenUsage) CostResult {
	result := CostResult{PricingModel: pricingModel, CostUsd: decimal.Zero}
	if pricingModel == "" {
		return result
	}

	desc, found := c.prices.Get(pricingModel)
	if !found {
		log.Debugf("billing: price not found for model %s", pricingModel)
		return result
	}
	result.PriceFound = true
	result.CostMicros, result.CostUsd = Estimate(desc, usage)

	log.Debugf("billing: calculated cost for %s - input=%d, output=%d -> $%s",
		pricingModel, usage.InputTokens, usage.OutputTokens, result.CostUsd.StringFixed(6))
	return result
}

// Estimate prices token usage against a descriptor's per-1K unit costs.
// Negative token counts are treated as zero.
func Estimate(desc model.ModelDescriptor, usage TokenUsage) (int64, decimal.Decimal) {
	input := decimal.NewFromInt(int64(max(usage.InputTokens, 0)))
	output := decimal.NewFromInt(int64(max(usage.OutputTokens, 0)))

	cost := input.Mul(decimal.NewFromFloat(desc.InputCostPer1K)).
		Add(output.Mul(decimal.NewFromFloat(desc.OutputCostPer1K))).
		Div(thousand)

	micros := cost.Mul(million).Round(0).IntPart()
	return micros, MicrosToUSD(micros)
}

// MicrosToUSD 微美元转 USD（6 位小数）
func MicrosToUSD(micros int64) decimal.Decimal {
	return decimal.New(micros, -6)
}

// USDToMicros converts a USD amount to micro-USD, rounding half away from zero.
func USDToMicros(usd float64) int64 {
	return decimal.NewFromFloat(usd).Mul(million).Round(0).IntPart()
}
