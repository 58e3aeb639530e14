package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"modelgate/internal/admission"
	"modelgate/internal/cache"
	"modelgate/internal/catalog"
	"modelgate/internal/dispatch"
	"modelgate/internal/model"
	"modelgate/internal/provider"
)

type fakeAdmission struct {
	denied bool
}

func (f *fakeAdmission) Evaluate(context.Context, string) admission.Decision {
	if f.denied {
		return admission.Decision{Allowed: false, Gate: admission.GateDailyCost, Reason: "daily cost limit reached"}
	}
	return admission.Decision{Allowed: true, Metrics: admission.Metrics{Plan: model.PlanFree}}
}

func (f *fakeAdmission) ProtectRequest(ctx context.Context, userID string) (admission.Decision, error) {
	d := f.Evaluate(ctx, userID)
	if !d.Allowed {
		return d, &admission.DeniedError{Gate: d.Gate, Reason: d.Reason, Metrics: d.Metrics}
	}
	return d, nil
}

type fakeRouter struct {
	mu    sync.Mutex
	calls int
	fail  bool
	delay time.Duration
}

func (f *fakeRouter) Route(_ context.Context, req *model.Request, _ model.TaskContext) (*dispatch.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail {
		cause := errors.New("upstream 503")
		return &dispatch.Result{
			Response: &model.Response{Success: false, Model: "gpt-4o-mini", Error: "all attempts failed"},
			Selected: "gpt-4o-mini",
			Attempts: 3,
		}, &dispatch.ExhaustedError{Attempts: 3, Models: []string{"gpt-4o-mini", "claude-3-5-haiku", "gemini-2.0-flash"}, Cause: cause}
	}
	return &dispatch.Result{
		Response:       &model.Response{Success: true, Content: "hi there", Model: "gpt-4o-mini", Provider: "openai"},
		Selected:       "gpt-4o-mini",
		Reason:         "explicit",
		ManualOverride: req.Model != "",
		Attempts:       1,
	}, nil
}

func (f *fakeRouter) Candidates(context.Context, string) ([]model.ModelDescriptor, error) {
	return []model.ModelDescriptor{{Name: "gpt-4o-mini"}, {Name: "claude-3-5-haiku"}}, nil
}

type fakePersonalizer struct {
	mu    sync.Mutex
	usage []model.PreferenceUsage
}

func (f *fakePersonalizer) Classify(_ context.Context, msg string) model.TaskContext {
	return model.TaskContext{Type: model.TaskConversation, Complexity: model.ComplexitySimple, MessageLength: len(msg)}
}

func (f *fakePersonalizer) Recommend(_ context.Context, _ string, _ model.TaskContext, candidates []string, limit int) ([]model.ModelScore, error) {
	var out []model.ModelScore
	for _, c := range candidates {
		out = append(out, model.ModelScore{Model: c, Score: 0.5, Confidence: 0.1})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakePersonalizer) RecordFeedback(_ context.Context, userID string, req model.FeedbackRequest) (*model.Feedback, error) {
	return &model.Feedback{UserID: userID, Model: req.Model, Rating: req.Rating}, nil
}

func (f *fakePersonalizer) RecordUsage(_ context.Context, u model.PreferenceUsage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage = append(f.usage, u)
	return nil
}

func (f *fakePersonalizer) Preferences(context.Context, string) ([]*model.UserModelPreference, error) {
	return nil, nil
}

type fakeAlerts struct {
	mu        sync.Mutex
	evaluated []string
	err       error
}

func (f *fakeAlerts) EvaluateAlerts(_ context.Context, userID string) ([]*model.CostAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluated = append(f.evaluated, userID)
	return nil, f.err
}

func (f *fakeAlerts) List(context.Context, string, string) ([]*model.CostAlert, error) {
	return nil, nil
}

type countingFlusher struct {
	mu sync.Mutex
	n  int
}

func (c *countingFlusher) Flush(context.Context) error {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return nil
}

type harness struct {
	svc     *GatewayService
	adm     *fakeAdmission
	router  *fakeRouter
	pers    *fakePersonalizer
	alerts  *fakeAlerts
	flusher *countingFlusher
	cache   *cache.Cache
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	c, err := cache.New(cache.Options{})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	h := &harness{
		adm:     &fakeAdmission{},
		router:  &fakeRouter{},
		pers:    &fakePersonalizer{},
		alerts:  &fakeAlerts{},
		flusher: &countingFlusher{},
		cache:   c,
	}
	h.svc = NewGatewayService(h.adm, c, h.router, h.pers, h.alerts).WithUsageFlusher(h.flusher)
	return h
}

func ptr[T any](v T) *T { return &v }

func TestChat_DeniedNeverRoutes(t *testing.T) {
	h := newHarness(t)
	h.adm.denied = true

	_, err := h.svc.Chat(context.Background(), &model.Request{Message: "hello", UserID: "u1"})
	var denied *admission.DeniedError
	if !errors.As(err, &denied) || denied.Gate != admission.GateDailyCost {
		t.Fatalf("expected daily cost denial, got %v", err)
	}
	h.svc.Close()
	if h.router.calls != 0 {
		t.Errorf("denied request reached the router")
	}
	if len(h.pers.usage) != 0 {
		t.Errorf("denied request should not record usage")
	}
}

func TestChat_CachesDeterministicResponses(t *testing.T) {
	h := newHarness(t)
	req := &model.Request{Message: "Hello", UserID: "u1", Randomness: ptr(0.2)}

	first, err := h.svc.Chat(context.Background(), req)
	if err != nil || first.Cached {
		t.Fatalf("first call: %+v %v", first, err)
	}
	second, err := h.svc.Chat(context.Background(), &model.Request{Message: "Hello", UserID: "u2", Randomness: ptr(0.2)})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !second.Cached || second.Response.Content != "hi there" {
		t.Errorf("expected cached response, got %+v", second)
	}
	if h.router.calls != 1 {
		t.Errorf("router should be called once, got %d", h.router.calls)
	}

	other, _ := h.svc.Chat(context.Background(), &model.Request{Message: "Hello", UserID: "u1", Randomness: ptr(0.3)})
	if other.Cached {
		t.Errorf("different parameters must not share a cache entry")
	}
	h.svc.Close()
}

func TestChat_HighRandomnessNotCached(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 2; i++ {
		res, err := h.svc.Chat(context.Background(), &model.Request{Message: "Hello", UserID: "u1", Randomness: ptr(0.9)})
		if err != nil || res.Cached {
			t.Fatalf("call %d: %+v %v", i, res, err)
		}
	}
	h.svc.Close()
	if h.router.calls != 2 {
		t.Errorf("expected both calls to route, got %d", h.router.calls)
	}
	if st := h.cache.Stats().Namespaces[cache.NamespaceResponse]; st.Entries != 0 {
		t.Errorf("nothing should be stored, got %d entries", st.Entries)
	}
}

func TestChat_ExhaustedReturnsResultAndError(t *testing.T) {
	h := newHarness(t)
	h.router.fail = true

	res, err := h.svc.Chat(context.Background(), &model.Request{Message: "Hello", UserID: "u1"})
	var exhausted *dispatch.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if res == nil || res.Response.Success {
		t.Fatalf("expected failure response, got %+v", res)
	}
	h.svc.Close()
	if st := h.cache.Stats().Namespaces[cache.NamespaceResponse]; st.Entries != 0 {
		t.Errorf("failures must not be cached")
	}
	if len(h.pers.usage) != 1 || h.pers.usage[0].Success {
		t.Errorf("failed request should record unsuccessful usage, got %+v", h.pers.usage)
	}
}

func TestChat_BackgroundBookkeeping(t *testing.T) {
	h := newHarness(t)
	h.alerts.err = errors.New("alert store down")

	res, err := h.svc.Chat(context.Background(), &model.Request{Message: "What is 2+2", Model: "gpt-4o-mini", UserID: "u1"})
	if err != nil || !res.Response.Success {
		t.Fatalf("alert failures must not affect the response: %+v %v", res, err)
	}
	h.svc.Close()

	if len(h.pers.usage) != 1 {
		t.Fatalf("expected one preference update, got %d", len(h.pers.usage))
	}
	u := h.pers.usage[0]
	if u.Model != "gpt-4o-mini" || !u.ManualOverride || !u.Success || u.TaskType != model.TaskConversation {
		t.Errorf("unexpected usage %+v", u)
	}
	if len(h.alerts.evaluated) != 1 || h.alerts.evaluated[0] != "u1" {
		t.Errorf("alerts should be evaluated for u1, got %v", h.alerts.evaluated)
	}
	if h.flusher.n != 1 {
		t.Errorf("usage should be flushed before alert evaluation")
	}
}

func TestChat_Validation(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		req  model.Request
		want error
	}{
		{"empty message", model.Request{Message: "  ", UserID: "u1"}, ErrEmptyMessage},
		{"missing user", model.Request{Message: "hi"}, ErrMissingUser},
		{"randomness", model.Request{Message: "hi", UserID: "u1", Randomness: ptr(3.0)}, ErrInvalidRandomness},
		{"unknown strategy", model.Request{Message: "hi", UserID: "u1", RoutingStrategy: "fastest"}, ErrInvalidStrategy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.Chat(context.Background(), &tt.req); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRecommend(t *testing.T) {
	h := newHarness(t)
	rec, err := h.svc.Recommend(context.Background(), "u1", "hello", 1)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(rec.Scores) != 1 || rec.Scores[0].Model != "gpt-4o-mini" {
		t.Errorf("unexpected scores %+v", rec.Scores)
	}
	if _, err := h.svc.Recommend(context.Background(), "", "hello", 1); !errors.Is(err, ErrMissingUser) {
		t.Errorf("expected ErrMissingUser, got %v", err)
	}
}

type stubAdapter struct{ id model.ProviderID }

func (s stubAdapter) Name() model.ProviderID { return s.id }
func (s stubAdapter) Invoke(context.Context, *model.Request) (*provider.Completion, error) {
	return nil, errors.New("unused")
}
func (s stubAdapter) HealthCheck(context.Context) bool { return true }

type memAssigner map[string]model.PlanTier

func (m memAssigner) Assign(_ context.Context, userID string, tier model.PlanTier) (model.Plan, error) {
	m[userID] = tier
	return model.Plan{Tier: tier}, nil
}

func TestAdminService(t *testing.T) {
	c, _ := cache.New(cache.Options{})
	_ = c.Set(cache.NamespaceResponse, "a", "x", nil)
	_ = c.Set(cache.NamespaceResponse, "b", "y", nil)
	_ = c.Set(cache.NamespaceModelList, "all", "z", nil)

	health := provider.NewHealthTracker(time.Minute)
	health.MarkUnhealthy(model.ProviderAnthropic, "billing")
	plans := memAssigner{}
	svc := NewAdminService(c,
		provider.NewRegistry(stubAdapter{model.ProviderOpenAI}, stubAdapter{model.ProviderAnthropic}),
		health, plans)

	n, err := svc.InvalidateCache("response")
	if err != nil || n != 2 {
		t.Errorf("expected 2 invalidated, got %d %v", n, err)
	}
	if svc.CacheStats().Namespaces[cache.NamespaceModelList].Entries != 1 {
		t.Errorf("other namespaces must survive")
	}
	if _, err := svc.InvalidateCache("bogus"); !errors.Is(err, ErrUnknownNamespace) {
		t.Errorf("expected ErrUnknownNamespace, got %v", err)
	}

	statuses := svc.Providers()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(statuses))
	}
	for _, st := range statuses {
		switch st.Provider {
		case model.ProviderAnthropic:
			if st.Healthy || st.Failure == nil || st.Failure.Reason != "billing" {
				t.Errorf("anthropic should be quarantined: %+v", st)
			}
		case model.ProviderOpenAI:
			if !st.Healthy || st.Failure != nil {
				t.Errorf("openai should be healthy: %+v", st)
			}
		}
	}

	if _, err := svc.AssignPlan(context.Background(), "u1", model.PlanPro); err != nil || plans["u1"] != model.PlanPro {
		t.Errorf("AssignPlan: %v", err)
	}
}

type freePlans struct{}

func (freePlans) Resolve(context.Context, string) (model.Plan, error) {
	return catalog.Default().Plan(model.PlanFree)
}

// nothing persisted yet, as when every record still sits in the usage writer
type emptyUsage struct{}

func (emptyUsage) SumCostMicros(context.Context, string, time.Time, time.Time) (int64, error) {
	return 0, nil
}

func (emptyUsage) SumAllCostMicros(context.Context, time.Time, time.Time) (int64, error) {
	return 0, nil
}

func (emptyUsage) CountRequests(context.Context, string, time.Time, time.Time) (int64, error) {
	return 0, nil
}

func TestChat_RateLimitCountsInFlightAndCachedRequests(t *testing.T) {
	tests := []struct {
		name       string
		concurrent bool
		req        model.Request
		wantRouted int
	}{
		{"concurrent in-flight burst", true, model.Request{Message: "write a poem", Randomness: ptr(1.5)}, 10},
		{"sequential cache hits", false, model.Request{Message: "Hello", Randomness: ptr(0.2)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := cache.New(cache.Options{})
			if err != nil {
				t.Fatalf("cache: %v", err)
			}
			router := &fakeRouter{delay: 50 * time.Millisecond}
			adm := admission.NewController(freePlans{}, emptyUsage{}, admission.Config{GlobalDailyLimitUSD: 1000})
			svc := NewGatewayService(adm, c, router, &fakePersonalizer{}, nil)
			defer svc.Close()

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				allowed int
				limited int
			)
			send := func() {
				req := tt.req
				req.UserID = "burst"
				_, err := svc.Chat(context.Background(), &req)
				mu.Lock()
				defer mu.Unlock()
				var denied *admission.DeniedError
				switch {
				case err == nil:
					allowed++
				case errors.As(err, &denied) && denied.Gate == admission.GateRate:
					limited++
				default:
					t.Errorf("unexpected error %v", err)
				}
			}
			for i := 0; i < 30; i++ {
				if !tt.concurrent {
					send()
					continue
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					send()
				}()
			}
			wg.Wait()

			if allowed != 10 || limited != 20 {
				t.Errorf("allowed %d, rate limited %d of 30 on a 10 rpm plan", allowed, limited)
			}
			if router.calls != tt.wantRouted {
				t.Errorf("routed %d requests, want %d", router.calls, tt.wantRouted)
			}
		})
	}
}
