package billing

import (
	"testing"

	"modelgate/internal/catalog"
	"modelgate/internal/model"
)

func TestEstimate(t *testing.T) {
	desc := model.ModelDescriptor{Name: "m", InputCostPer1K: 0.003, OutputCostPer1K: 0.015}

	tests := []struct {
		name       string
		usage      TokenUsage
		wantMicros int64
		wantUSD    string
	}{
		{"zero", TokenUsage{}, 0, "0.000000"},
		{"input only", TokenUsage{InputTokens: 1000}, 3000, "0.003000"},
		{"both", TokenUsage{InputTokens: 1500, OutputTokens: 500}, 12000, "0.012000"},
		{"negative clamps", TokenUsage{InputTokens: -10, OutputTokens: 1000}, 15000, "0.015000"},
		{"rounds", TokenUsage{InputTokens: 1}, 3, "0.000003"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			micros, usd := Estimate(desc, tt.usage)
			if micros != tt.wantMicros {
				t.Errorf("micros = %d, want %d", micros, tt.wantMicros)
			}
			if got := usd.StringFixed(6); got != tt.wantUSD {
				t.Errorf("usd = %s, want %s", got, tt.wantUSD)
			}
		})
	}
}

func TestCalculate(t *testing.T) {
	calc := NewCostCalculator(catalog.Default().Registry())

	res := calc.Calculate("gpt-4o-mini", TokenUsage{InputTokens: 1000, OutputTokens: 1000})
	if !res.PriceFound {
		t.Fatalf("expected price for gpt-4o-mini")
	}
	if res.CostMicros != 750 {
		t.Errorf("expected 750 micros, got %d", res.CostMicros)
	}
	if res.Float() != 0.00075 {
		t.Errorf("expected 0.00075, got %v", res.Float())
	}

	missing := calc.Calculate("no-such-model", TokenUsage{InputTokens: 10})
	if missing.PriceFound || missing.CostMicros != 0 {
		t.Errorf("unknown model should cost nothing, got %+v", missing)
	}
}

func TestUSDToMicros(t *testing.T) {
	if got := USDToMicros(1.25); got != 1_250_000 {
		t.Errorf("expected 1250000, got %d", got)
	}
	if got := MicrosToUSD(1_250_000).String(); got != "1.25" {
		t.Errorf("expected 1.25, got %s", got)
	}
}
