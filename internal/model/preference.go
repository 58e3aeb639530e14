package model

import "time"

// UserModelPreference 用户-模型偏好聚合
type UserModelPreference struct {
	UserID        string           `json:"userId"`
	Model         string           `json:"model"`
	UsageCount    int              `json:"usageCount"`
	OverrideCount int              `json:"overrideCount"`
	SuccessCount  int              `json:"successCount"`
	RatingSum     float64          `json:"ratingSum"`
	RatingCount   int              `json:"ratingCount"`
	SuccessRate   float64          `json:"successRate"`
	TaskUsage     map[TaskType]int `json:"taskUsage"`
	LastUsedAt    *time.Time       `json:"lastUsedAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// AverageRating returns the running mean rating, or 0 without ratings.
func (p *UserModelPreference) AverageRating() float64 {
	if p == nil || p.RatingCount == 0 {
		return 0
	}
	return p.RatingSum / float64(p.RatingCount)
}

// PreferenceUsage is one increment applied to a (user, model) aggregate.
type PreferenceUsage struct {
	UserID         string
	Model          string
	TaskType       TaskType
	Success        bool
	ManualOverride bool
	At             time.Time
}

// Feedback 评分反馈记录（只追加）
type Feedback struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Model     string    `json:"model"`
	Rating    int       `json:"rating"`
	TaskType  TaskType  `json:"taskType,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type FeedbackRequest struct {
	Model    string   `json:"model" binding:"required"`
	Rating   int      `json:"rating" binding:"required,min=1,max=5"`
	TaskType TaskType `json:"taskType"`
	Comment  string   `json:"comment" binding:"max=1024"`
}
