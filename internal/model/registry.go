package model

type ProviderID string

const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderGemini    ProviderID = "gemini"
)

// Capability tags used by strategy filters and contextual multipliers.
const (
	TagFast        = "fast"
	TagCheap       = "cheap"
	TagBalanced    = "balanced"
	TagHighQuality = "high-quality"
	TagCoding      = "coding"
	TagCreative    = "creative"
	TagReasoning   = "reasoning"
)

// ModelDescriptor 模型描述（只读参考数据）
// 成本单位: USD per 1K tokens
type ModelDescriptor struct {
	Name            string     `json:"name" yaml:"name"`
	Provider        ProviderID `json:"provider" yaml:"provider"`
	InputCostPer1K  float64    `json:"inputCostPer1K" yaml:"input_cost_per_1k"`
	OutputCostPer1K float64    `json:"outputCostPer1K" yaml:"output_cost_per_1k"`
	Available       bool       `json:"available" yaml:"available"`
	Tags            []string   `json:"tags" yaml:"tags"`
	MaxOutputTokens int        `json:"maxOutputTokens,omitempty" yaml:"max_output_tokens"`
}

// MeanUnitCost is the mean of input and output unit cost.
func (d ModelDescriptor) MeanUnitCost() float64 {
	return (d.InputCostPer1K + d.OutputCostPer1K) / 2
}

func (d ModelDescriptor) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
