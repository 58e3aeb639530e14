package model

type RoutingStrategy string

const (
	RoutingAuto     RoutingStrategy = "auto"
	RoutingCost     RoutingStrategy = "cost"
	RoutingSpeed    RoutingStrategy = "speed"
	RoutingQuality  RoutingStrategy = "quality"
	RoutingBalanced RoutingStrategy = "balanced"
)

// Valid reports whether s is one of the known strategies. The empty value is
// not valid here; requests treat it as auto.
func (s RoutingStrategy) Valid() bool {
	switch s {
	case RoutingAuto, RoutingCost, RoutingSpeed, RoutingQuality, RoutingBalanced:
		return true
	}
	return false
}

// Request 入站推理请求，创建后不可变
type Request struct {
	Message           string          `json:"message" binding:"required"`
	Model             string          `json:"model,omitempty"`
	RoutingStrategy   RoutingStrategy `json:"routingStrategy,omitempty" binding:"omitempty,oneof=auto cost speed quality balanced"`
	MaxOutputSize     *int            `json:"maxOutputSize,omitempty"`
	Randomness        *float64        `json:"randomness,omitempty"`
	SystemInstruction string          `json:"systemInstruction,omitempty"`
	UserID            string          `json:"userId"`
	APIKeyID          string          `json:"apiKeyId,omitempty"`
}

// Strategy returns the effective routing strategy.
func (r *Request) Strategy() RoutingStrategy {
	if !r.RoutingStrategy.Valid() {
		return RoutingAuto
	}
	return r.RoutingStrategy
}

// WithModel returns a copy of the request targeted at modelName.
func (r Request) WithModel(modelName string) *Request {
	r.Model = modelName
	return &r
}

type TokensUsed struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// Response 出站响应
type Response struct {
	Success        bool       `json:"success"`
	Content        string     `json:"content"`
	Model          string     `json:"model"`
	Provider       string     `json:"provider"`
	TokensUsed     TokensUsed `json:"tokensUsed"`
	Cost           float64    `json:"cost"`
	ResponseTimeMs int64      `json:"responseTimeMs"`
	Error          string     `json:"error,omitempty"`
}
