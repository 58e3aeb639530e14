package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"modelgate/internal/billing"
	"modelgate/internal/catalog"
	"modelgate/internal/metrics"
	"modelgate/internal/model"
	"modelgate/internal/provider"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// MaxFallbacks 主模型失败后最多尝试的备选数
const MaxFallbacks = 2

type PlanSource interface {
	Resolve(ctx context.Context, userID string) (model.Plan, error)
}

type Recommender interface {
	Recommend(ctx context.Context, userID string, tc model.TaskContext, candidates []string, limit int) ([]model.ModelScore, error)
}

// UsageSink receives one usage record per routed request.
type UsageSink interface {
	Record(rec *model.UsageRecord)
}

type Config struct {
	RequestTimeout time.Duration // 主请求与所有回退共享
	ProbeTimeout   time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestTimeout: 60 * time.Second,
		ProbeTimeout:   10 * time.Second,
		BackoffInitial: 100 * time.Millisecond,
		BackoffMax:     time.Second,
	}
}

// Result 单次路由的完整结果
type Result struct {
	Response       *model.Response
	Selected       string
	Reason         string
	ManualOverride bool
	FallbackUsed   bool
	Attempts       int
	CostMicros     int64
}

// Dispatcher 路由/分发器：过滤候选、按策略选择、调用并有界回退
type Dispatcher struct {
	registry           *catalog.Registry
	tiers              catalog.TierPatterns
	shortMessageLength int
	adapters           *provider.Registry
	health             *provider.HealthTracker
	plans              PlanSource
	recommender        Recommender
	sink               UsageSink
	calc               *billing.CostCalculator
	cfg                Config
	probeOnce          sync.Once
}

func New(cat *catalog.Catalog, adapters *provider.Registry, health *provider.HealthTracker, plans PlanSource, cfg Config) *Dispatcher {
	def := DefaultConfig()
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = def.BackoffInitial
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	registry := cat.Registry()
	return &Dispatcher{
		registry:           registry,
		tiers:              cat.Tiers,
		shortMessageLength: cat.Classifier.ShortMessageLength,
		adapters:           adapters,
		health:             health,
		plans:              plans,
		calc:               billing.NewCostCalculator(registry),
		cfg:                cfg,
	}
}

// WithRecommender enables personalized auto routing.
func (d *Dispatcher) WithRecommender(r Recommender) *Dispatcher {
	d.recommender = r
	return d
}

func (d *Dispatcher) WithUsageSink(s UsageSink) *Dispatcher {
	d.sink = s
	return d
}

func (d *Dispatcher) Health() *provider.HealthTracker {
	return d.health
}

// ProbeAll 首次使用时并行探测所有已注册提供商，失败者预先加入不健康集合
// The probe is detached from the caller: a cancelled or short-lived request
// context must not quarantine healthy providers.
func (d *Dispatcher) ProbeAll(ctx context.Context) {
	d.probeOnce.Do(func() {
		g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
		for _, id := range d.adapters.IDs() {
			adapter, _ := d.adapters.Get(id)
			g.Go(func() error {
				probeCtx, cancel := context.WithTimeout(gctx, d.cfg.ProbeTimeout)
				defer cancel()
				if adapter.HealthCheck(probeCtx) {
					return nil
				}
				if gctx.Err() != nil {
					log.Warnf("dispatch: initial probe of %s interrupted: %v", id, gctx.Err())
					return nil
				}
				d.health.MarkUnhealthy(id, "initial health check failed")
				return nil
			})
		}
		_ = g.Wait()
	})
}

// Candidates 过滤：不健康提供商、未注册适配器、不可用模型、套餐白名单之外的模型
func (d *Dispatcher) Candidates(ctx context.Context, userID string) ([]model.ModelDescriptor, error) {
	var plan *model.Plan
	if userID != "" && d.plans != nil {
		p, err := d.plans.Resolve(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("dispatch: resolve plan: %w", err)
		}
		plan = &p
	}

	var out []model.ModelDescriptor
	for _, m := range d.registry.Available() {
		if !d.health.IsHealthy(m.Provider) {
			continue
		}
		if _, ok := d.adapters.Get(m.Provider); !ok {
			continue
		}
		if plan != nil && !catalog.PlanAllows(*plan, m.Name) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Route 选择模型并调用；失败时按过滤顺序最多回退 MaxFallbacks 次，备选逐次挑选
// On exhaustion the returned Result carries a failure response and the error
// is an *ExhaustedError wrapping the primary failure.
func (d *Dispatcher) Route(ctx context.Context, req *model.Request, tc model.TaskContext) (*Result, error) {
	d.ProbeAll(ctx)

	if d.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.RequestTimeout)
		defer cancel()
	}

	candidates, err := d.Candidates(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidateModel
	}

	sel := d.selectModel(ctx, req, candidates, tc)
	primary := sel.model

	entry := log.WithFields(log.Fields{"user": req.UserID, "strategy": req.Strategy(), "reason": sel.reason})
	started := time.Now()
	bo := &backoff.ExponentialBackOff{
		InitialInterval:     d.cfg.BackoffInitial,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         d.cfg.BackoffMax,
	}
	bo.Reset()

	var primaryErr error
	var tried []string
	attempted := map[string]bool{}
	for i := 0; i <= MaxFallbacks; i++ {
		desc := primary
		if i > 0 {
			// 备选在每次失败后重新挑选，跳过已尝试模型与期间被隔离的提供商
			alt, ok := d.nextAlternate(candidates, attempted)
			if !ok {
				break
			}
			if err := sleepCtx(ctx, bo.NextBackOff()); err != nil {
				break
			}
			desc = alt
			metrics.Fallbacks.Inc()
			entry.Infof("dispatch: falling back to %s", desc.Name)
		}
		attempted[desc.Name] = true

		tried = append(tried, desc.Name)
		resp, micros, err := d.invoke(ctx, req, desc)
		if err == nil {
			res := &Result{
				Response:       resp,
				Selected:       desc.Name,
				Reason:         sel.reason,
				ManualOverride: sel.manual && i == 0,
				FallbackUsed:   i > 0,
				Attempts:       len(tried),
				CostMicros:     micros,
			}
			if res.FallbackUsed {
				resp.Error = fmt.Sprintf("fallback: %s failed (%v); served by %s", primary.Name, primaryErr, desc.Name)
			}
			resp.ResponseTimeMs = time.Since(started).Milliseconds()
			d.record(req, desc, resp, micros, res.FallbackUsed, "")
			return res, nil
		}

		entry.Warnf("dispatch: %s failed: %v", desc.Name, err)
		if primaryErr == nil {
			primaryErr = err
		}
		if provider.IsBilling(err) {
			d.health.MarkUnhealthy(desc.Provider, err.Error())
		}
		if ctx.Err() != nil {
			break
		}
	}

	exhausted := &ExhaustedError{Attempts: len(tried), Models: tried, Cause: primaryErr}
	if primaryErr == nil {
		exhausted.Cause = ctx.Err()
	}
	resp := &model.Response{
		Success:        false,
		Model:          primary.Name,
		Provider:       string(primary.Provider),
		ResponseTimeMs: time.Since(started).Milliseconds(),
		Error:          exhausted.Error(),
	}
	d.record(req, primary, resp, 0, len(tried) > 1, provider.ErrorType(exhausted.Cause))
	return &Result{
		Response:       resp,
		Selected:       primary.Name,
		Reason:         sel.reason,
		ManualOverride: sel.manual,
		FallbackUsed:   len(tried) > 1,
		Attempts:       len(tried),
	}, exhausted
}

// nextAlternate 按过滤顺序返回首个未尝试且提供商仍健康的候选
func (d *Dispatcher) nextAlternate(candidates []model.ModelDescriptor, attempted map[string]bool) (model.ModelDescriptor, bool) {
	for _, c := range candidates {
		if attempted[c.Name] || !d.health.IsHealthy(c.Provider) {
			continue
		}
		return c, true
	}
	return model.ModelDescriptor{}, false
}

func (d *Dispatcher) invoke(ctx context.Context, req *model.Request, desc model.ModelDescriptor) (*model.Response, int64, error) {
	adapter, ok := d.adapters.Get(desc.Provider)
	if !ok {
		return nil, 0, fmt.Errorf("dispatch: provider %s not registered", desc.Provider)
	}

	started := time.Now()
	out, err := adapter.Invoke(ctx, req.WithModel(desc.Name))
	metrics.InferenceLatency.WithLabelValues(string(desc.Provider)).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.ProviderInvocations.WithLabelValues(string(desc.Provider), desc.Name, string(provider.Classify(err))).Inc()
		return nil, 0, err
	}
	metrics.ProviderInvocations.WithLabelValues(string(desc.Provider), desc.Name, "success").Inc()

	cost := d.calc.Calculate(desc.Name, billing.TokenUsage{InputTokens: out.InputTokens, OutputTokens: out.OutputTokens})
	return &model.Response{
		Success:  true,
		Content:  out.Content,
		Model:    desc.Name,
		Provider: string(desc.Provider),
		TokensUsed: model.TokensUsed{
			Input:  out.InputTokens,
			Output: out.OutputTokens,
			Total:  out.InputTokens + out.OutputTokens,
		},
		Cost: cost.Float(),
	}, cost.CostMicros, nil
}

func (d *Dispatcher) record(req *model.Request, desc model.ModelDescriptor, resp *model.Response, micros int64, fallback bool, errType string) {
	if d.sink == nil {
		return
	}
	d.sink.Record(&model.UsageRecord{
		CreatedAt:    time.Now().UTC(),
		UserID:       req.UserID,
		APIKeyID:     req.APIKeyID,
		Model:        desc.Name,
		Provider:     desc.Provider,
		InputTokens:  resp.TokensUsed.Input,
		OutputTokens: resp.TokensUsed.Output,
		CostMicros:   micros,
		LatencyMs:    resp.ResponseTimeMs,
		Success:      resp.Success,
		FallbackUsed: fallback,
		ErrorType:    errType,
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
