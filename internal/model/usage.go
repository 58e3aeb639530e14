package model

import "time"

// UsageRecord 单次请求的用量记录
type UsageRecord struct {
	ID           string     `json:"id"`
	CreatedAt    time.Time  `json:"createdAt"`
	UserID       string     `json:"userId"`
	APIKeyID     string     `json:"apiKeyId"`
	Model        string     `json:"model"`
	Provider     ProviderID `json:"provider"`
	InputTokens  int        `json:"inputTokens"`
	OutputTokens int        `json:"outputTokens"`
	CostMicros   int64      `json:"costMicros"`
	LatencyMs    int64      `json:"latencyMs"`
	Success      bool       `json:"success"`
	FallbackUsed bool       `json:"fallbackUsed"`
	ErrorType    string     `json:"errorType,omitempty"`
}

type AlertType string

const (
	AlertDailyWarning    AlertType = "daily_warning"
	AlertDailyExceeded   AlertType = "daily_exceeded"
	AlertMonthlyInfo     AlertType = "monthly_info"
	AlertMonthlyCritical AlertType = "monthly_critical"
	AlertSpike           AlertType = "spike"
	AlertGlobalWarning   AlertType = "global_warning"
	AlertGlobalCritical  AlertType = "global_critical"
)

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// GlobalAlertUserID owns operator-level alerts.
const GlobalAlertUserID = "global"

// CostAlert 成本告警，ID 由 (user, type, day) 确定
type CostAlert struct {
	ID        string             `json:"id"`
	UserID    string             `json:"userId"`
	Type      AlertType          `json:"type"`
	Severity  AlertSeverity      `json:"severity"`
	Message   string             `json:"message"`
	Metadata  map[string]float64 `json:"metadata"`
	Day       string             `json:"day"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
