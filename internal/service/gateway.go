package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"modelgate/internal/admission"
	"modelgate/internal/cache"
	"modelgate/internal/dispatch"
	"modelgate/internal/model"

	log "github.com/sirupsen/logrus"
)

var (
	ErrEmptyMessage      = errors.New("message must not be empty")
	ErrMissingUser       = errors.New("user id is required")
	ErrInvalidRandomness = errors.New("randomness must be between 0 and 2")
	ErrInvalidStrategy   = errors.New("routingStrategy must be one of auto, cost, speed, quality, balanced")
)

// backgroundTimeout bounds the post-response bookkeeping of one request.
const backgroundTimeout = 10 * time.Second

type Admission interface {
	ProtectRequest(ctx context.Context, userID string) (admission.Decision, error)
	Evaluate(ctx context.Context, userID string) admission.Decision
}

type Router interface {
	Route(ctx context.Context, req *model.Request, tc model.TaskContext) (*dispatch.Result, error)
	Candidates(ctx context.Context, userID string) ([]model.ModelDescriptor, error)
}

type Personalizer interface {
	Classify(ctx context.Context, message string) model.TaskContext
	Recommend(ctx context.Context, userID string, tc model.TaskContext, candidates []string, limit int) ([]model.ModelScore, error)
	RecordFeedback(ctx context.Context, userID string, req model.FeedbackRequest) (*model.Feedback, error)
	RecordUsage(ctx context.Context, u model.PreferenceUsage) error
	Preferences(ctx context.Context, userID string) ([]*model.UserModelPreference, error)
}

type AlertEvaluator interface {
	EvaluateAlerts(ctx context.Context, userID string) ([]*model.CostAlert, error)
	List(ctx context.Context, userID, sinceDay string) ([]*model.CostAlert, error)
}

// UsageFlusher makes queued usage visible before alert evaluation.
type UsageFlusher interface {
	Flush(ctx context.Context) error
}

// ChatResult 一次网关请求的结果
type ChatResult struct {
	Response     *model.Response   `json:"response"`
	Cached       bool              `json:"cached"`
	Task         model.TaskContext `json:"task"`
	Reason       string            `json:"routingReason,omitempty"`
	FallbackUsed bool              `json:"fallbackUsed"`
	Admission    admission.Metrics `json:"admission"`
}

// GatewayService 请求主流程：准入 -> 缓存 -> 分类 -> 路由 -> 缓存写入 -> 异步记录
type GatewayService struct {
	admission    Admission
	cache        *cache.Cache
	router       Router
	personalizer Personalizer
	alerts       AlertEvaluator
	flusher      UsageFlusher
	wg           sync.WaitGroup
}

func NewGatewayService(adm Admission, c *cache.Cache, router Router, p Personalizer, alerts AlertEvaluator) *GatewayService {
	return &GatewayService{admission: adm, cache: c, router: router, personalizer: p, alerts: alerts}
}

func (s *GatewayService) WithUsageFlusher(f UsageFlusher) *GatewayService {
	s.flusher = f
	return s
}

func validate(req *model.Request) error {
	if strings.TrimSpace(req.Message) == "" {
		return ErrEmptyMessage
	}
	if strings.TrimSpace(req.UserID) == "" {
		return ErrMissingUser
	}
	if req.Randomness != nil && (*req.Randomness < 0 || *req.Randomness > 2) {
		return ErrInvalidRandomness
	}
	if req.RoutingStrategy != "" && !req.RoutingStrategy.Valid() {
		return ErrInvalidStrategy
	}
	return nil
}

// Chat 处理一次推理请求
// A denied request returns *admission.DeniedError before any provider is
// touched. When every attempt fails the result still carries the failure
// response alongside the *dispatch.ExhaustedError.
func (s *GatewayService) Chat(ctx context.Context, req *model.Request) (*ChatResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	decision, err := s.admission.ProtectRequest(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	cacheable := s.cache != nil && cache.ShouldCacheResponse(req)
	params := cache.ResponseParams(req)
	// plans gate models, so a cached answer never crosses tiers
	params["plan"] = decision.Metrics.Plan
	if cacheable {
		if hit, ok := cache.GetAs[*model.Response](s.cache, cache.NamespaceResponse, req.Message, params); ok {
			resp := *hit
			log.Debugf("gateway: cache hit for %s", req.UserID)
			return &ChatResult{Response: &resp, Cached: true, Admission: decision.Metrics}, nil
		}
	}

	tc := s.personalizer.Classify(ctx, req.Message)
	res, err := s.router.Route(ctx, req, tc)
	if err != nil && res == nil {
		return nil, err
	}

	out := &ChatResult{
		Response:     res.Response,
		Task:         tc,
		Reason:       res.Reason,
		FallbackUsed: res.FallbackUsed,
		Admission:    decision.Metrics,
	}
	if err == nil && cacheable && res.Response.Success {
		stored := *res.Response
		if setErr := s.cache.Set(cache.NamespaceResponse, req.Message, &stored, params); setErr != nil {
			log.Warnf("gateway: cache store failed: %v", setErr)
		}
	}

	s.afterRequest(ctx, req, tc, res)
	return out, err
}

// afterRequest 异步更新偏好聚合并评估告警；失败只记录日志
func (s *GatewayService) afterRequest(ctx context.Context, req *model.Request, tc model.TaskContext, res *dispatch.Result) {
	usage := model.PreferenceUsage{
		UserID:         req.UserID,
		Model:          res.Selected,
		TaskType:       tc.Type,
		Success:        res.Response.Success,
		ManualOverride: res.ManualOverride,
		At:             time.Now().UTC(),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundTimeout)
		defer cancel()

		if err := s.personalizer.RecordUsage(bg, usage); err != nil {
			log.Warnf("gateway: record preference usage for %s/%s: %v", usage.UserID, usage.Model, err)
		}
		if s.alerts == nil {
			return
		}
		if s.flusher != nil {
			if err := s.flusher.Flush(bg); err != nil {
				log.Warnf("gateway: flush usage before alert evaluation: %v", err)
			}
		}
		if _, err := s.alerts.EvaluateAlerts(bg, usage.UserID); err != nil {
			log.Warnf("gateway: evaluate alerts for %s: %v", usage.UserID, err)
		}
	}()
}

// Close waits for in-flight background bookkeeping.
func (s *GatewayService) Close() {
	s.wg.Wait()
}
