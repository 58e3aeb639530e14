package model

import "time"

type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanStarter    PlanTier = "starter"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// Plan 套餐定义
type Plan struct {
	Tier                PlanTier `json:"tier" yaml:"tier"`
	DailyCostLimitUSD   float64  `json:"dailyCostLimitUsd" yaml:"daily_cost_limit_usd"`
	RequestsPerMinute   int      `json:"requestsPerMinute" yaml:"requests_per_minute"`
	MonthlyRequestLimit int      `json:"monthlyRequestLimit" yaml:"monthly_request_limit"`
	AllowedModels       []string `json:"allowedModels" yaml:"allowed_models"`
}

// DailyCostLimitMicros returns the daily limit in micro-USD.
func (p Plan) DailyCostLimitMicros() int64 {
	return int64(p.DailyCostLimitUSD*1e6 + 0.5)
}

// UserPlan 用户与套餐的绑定
type UserPlan struct {
	UserID    string    `json:"userId"`
	Tier      PlanTier  `json:"tier"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type AssignPlanRequest struct {
	Tier PlanTier `json:"tier" binding:"required,oneof=free starter pro enterprise"`
}
