package service

import (
	"context"
	"fmt"

	"modelgate/internal/admission"
	"modelgate/internal/model"
)

const defaultRecommendLimit = 3

// Recommendation 推荐结果及其任务上下文
type Recommendation struct {
	Task   model.TaskContext  `json:"task"`
	Scores []model.ModelScore `json:"scores"`
}

// Feedback 记录用户对模型的评分
func (s *GatewayService) Feedback(ctx context.Context, userID string, req model.FeedbackRequest) (*model.Feedback, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	return s.personalizer.RecordFeedback(ctx, userID, req)
}

// Recommend 对当前可用候选模型打分；message 为空时按普通对话处理
func (s *GatewayService) Recommend(ctx context.Context, userID, message string, limit int) (*Recommendation, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if limit <= 0 {
		limit = defaultRecommendLimit
	}
	tc := s.personalizer.Classify(ctx, message)
	candidates, err := s.router.Candidates(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	scores, err := s.personalizer.Recommend(ctx, userID, tc, names, limit)
	if err != nil {
		return nil, err
	}
	return &Recommendation{Task: tc, Scores: scores}, nil
}

func (s *GatewayService) Preferences(ctx context.Context, userID string) ([]*model.UserModelPreference, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	return s.personalizer.Preferences(ctx, userID)
}

// CheckAdmission evaluates the gates without routing anything.
func (s *GatewayService) CheckAdmission(ctx context.Context, userID string) (admission.Decision, error) {
	if userID == "" {
		return admission.Decision{}, ErrMissingUser
	}
	return s.admission.Evaluate(ctx, userID), nil
}

// Alerts 列出用户自 sinceDay 起的告警
func (s *GatewayService) Alerts(ctx context.Context, userID, sinceDay string) ([]*model.CostAlert, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if s.alerts == nil {
		return nil, fmt.Errorf("alerts are not configured")
	}
	return s.alerts.List(ctx, userID, sinceDay)
}
