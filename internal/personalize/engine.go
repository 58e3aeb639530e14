package personalize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"modelgate/internal/cache"
	"modelgate/internal/catalog"
	"modelgate/internal/model"

	log "github.com/sirupsen/logrus"
)

var ErrInvalidRating = errors.New("personalize: rating must be between 1 and 5")

const (
	baseScore          = 0.5
	minConfidence      = 0.1
	maxConfidence      = 0.9
	confidenceUses     = 50.0
	overrideSaturation = 20.0
	taskSaturation     = 10.0

	weightRating   = 0.4
	weightOverride = 0.2
	weightSuccess  = 0.2
	weightTask     = 0.2
)

// PreferenceStore 偏好聚合存储；所有写操作须在存储层原子完成
type PreferenceStore interface {
	Get(ctx context.Context, userID, modelName string) (*model.UserModelPreference, error)
	ListByUser(ctx context.Context, userID string) ([]*model.UserModelPreference, error)
	RecordUsage(ctx context.Context, u model.PreferenceUsage) error
	RecordRating(ctx context.Context, userID, modelName string, rating int, at time.Time) error
}

type FeedbackStore interface {
	Create(ctx context.Context, fb *model.Feedback) error
}

// ModelLookup resolves descriptors for tag-based multipliers.
type ModelLookup interface {
	Get(name string) (model.ModelDescriptor, bool)
}

// Engine 个性化引擎：任务分类、模型评分、反馈记录
type Engine struct {
	prefs       PreferenceStore
	feedback    FeedbackStore
	models      ModelLookup
	multipliers []catalog.Multiplier
	classifier  *Classifier
	cache       *cache.Cache
}

func NewEngine(prefs PreferenceStore, feedback FeedbackStore, cat *catalog.Catalog, c *cache.Cache) *Engine {
	return &Engine{
		prefs:       prefs,
		feedback:    feedback,
		models:      cat.Registry(),
		multipliers: cat.Multipliers,
		classifier:  NewClassifier(cat.Classifier),
		cache:       c,
	}
}

// Classify 分类结果按消息缓存；小时数每次按当前时间填写
func (e *Engine) Classify(ctx context.Context, message string) model.TaskContext {
	if e.cache == nil {
		return e.classifier.Classify(message)
	}
	tc, err := cache.GetOrSetAs(ctx, e.cache, cache.NamespaceClassification, message, nil,
		func(context.Context) (model.TaskContext, error) {
			return e.classifier.Classify(message), nil
		})
	if err != nil {
		return e.classifier.Classify(message)
	}
	tc.HourOfDay = e.classifier.now().Hour()
	return tc
}

// Score 计算用户对某模型的适配分，结果限定在 [0, 1]
func (e *Engine) Score(ctx context.Context, userID, modelName string, tc model.TaskContext) (model.ModelScore, error) {
	pref, err := e.prefs.Get(ctx, userID, modelName)
	if err != nil {
		return model.ModelScore{}, fmt.Errorf("personalize: load preference: %w", err)
	}
	return e.score(modelName, pref, tc), nil
}

func (e *Engine) score(modelName string, pref *model.UserModelPreference, tc model.TaskContext) model.ModelScore {
	s := model.ModelScore{Model: modelName}

	if pref == nil || (pref.UsageCount == 0 && pref.RatingCount == 0) {
		s.Score = baseScore
		s.Confidence = minConfidence
		s.Reasoning = append(s.Reasoning, "no usage history")
	} else {
		rating := 0.5
		if pref.RatingCount > 0 {
			rating = pref.AverageRating() / 5
			s.Reasoning = append(s.Reasoning, fmt.Sprintf("average rating %.1f/5", pref.AverageRating()))
		}
		override := math.Min(float64(pref.OverrideCount)/overrideSaturation, 1)
		task := math.Min(float64(pref.TaskUsage[tc.Type])/taskSaturation, 1)

		s.Score = weightRating*rating + weightOverride*override + weightSuccess*pref.SuccessRate + weightTask*task
		s.Confidence = math.Max(math.Min(float64(pref.UsageCount)/confidenceUses, 1)*maxConfidence, minConfidence)

		if pref.OverrideCount > 0 {
			s.Reasoning = append(s.Reasoning, fmt.Sprintf("manually selected %d times", pref.OverrideCount))
		}
		if pref.UsageCount > 0 {
			s.Reasoning = append(s.Reasoning, fmt.Sprintf("success rate %.0f%% over %d requests", pref.SuccessRate*100, pref.UsageCount))
		}
		if n := pref.TaskUsage[tc.Type]; n > 0 {
			s.Reasoning = append(s.Reasoning, fmt.Sprintf("used %d times for %s tasks", n, tc.Type))
		}
	}

	if desc, ok := e.models.Get(modelName); ok {
		for _, m := range e.multipliers {
			if m.Applies(tc) && desc.HasTag(m.Tag) {
				s.Score *= m.Factor
				s.Reasoning = append(s.Reasoning, fmt.Sprintf("x%.2f %s model for %s/%s task", m.Factor, m.Tag, tc.Type, tc.Complexity))
			}
		}
	}

	s.Score = clamp01(s.Score)
	return s
}

// Recommend 为候选模型打分并按分数降序返回前 limit 个；同分保持输入顺序
func (e *Engine) Recommend(ctx context.Context, userID string, tc model.TaskContext, candidates []string, limit int) ([]model.ModelScore, error) {
	prefs, err := e.prefs.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("personalize: load preferences: %w", err)
	}
	byModel := make(map[string]*model.UserModelPreference, len(prefs))
	for _, p := range prefs {
		byModel[p.Model] = p
	}

	scores := make([]model.ModelScore, 0, len(candidates))
	for _, name := range candidates {
		scores = append(scores, e.score(name, byModel[name], tc))
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}
	return scores, nil
}

// RecordFeedback 追加反馈记录并原子更新 (user, model) 聚合
func (e *Engine) RecordFeedback(ctx context.Context, userID string, req model.FeedbackRequest) (*model.Feedback, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, ErrInvalidRating
	}
	fb := &model.Feedback{
		UserID:    userID,
		Model:     req.Model,
		Rating:    req.Rating,
		TaskType:  req.TaskType,
		Comment:   req.Comment,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.feedback.Create(ctx, fb); err != nil {
		return nil, fmt.Errorf("personalize: save feedback: %w", err)
	}
	if err := e.prefs.RecordRating(ctx, userID, req.Model, req.Rating, fb.CreatedAt); err != nil {
		return nil, fmt.Errorf("personalize: update aggregate: %w", err)
	}
	log.Debugf("personalize: recorded rating %d for %s/%s", req.Rating, userID, req.Model)
	return fb, nil
}

// RecordUsage applies one request outcome to the user's aggregate.
func (e *Engine) RecordUsage(ctx context.Context, u model.PreferenceUsage) error {
	return e.prefs.RecordUsage(ctx, u)
}

// Preferences lists the user's aggregates.
func (e *Engine) Preferences(ctx context.Context, userID string) ([]*model.UserModelPreference, error) {
	return e.prefs.ListByUser(ctx, userID)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
