package service

import (
	"context"
	"errors"

	"modelgate/internal/cache"
	"modelgate/internal/model"
	"modelgate/internal/provider"
)

var ErrUnknownNamespace = errors.New("unknown cache namespace")

type PlanAssigner interface {
	Assign(ctx context.Context, userID string, tier model.PlanTier) (model.Plan, error)
}

// ProviderStatus 提供商健康状态
type ProviderStatus struct {
	Provider model.ProviderID  `json:"provider"`
	Healthy  bool              `json:"healthy"`
	Failure  *provider.Failure `json:"failure,omitempty"`
}

// AdminService 运维接口：缓存、提供商、套餐
type AdminService struct {
	cache    *cache.Cache
	adapters *provider.Registry
	health   *provider.HealthTracker
	plans    PlanAssigner
}

func NewAdminService(c *cache.Cache, adapters *provider.Registry, health *provider.HealthTracker, plans PlanAssigner) *AdminService {
	return &AdminService{cache: c, adapters: adapters, health: health, plans: plans}
}

func (s *AdminService) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// InvalidateCache 清空整个命名空间
func (s *AdminService) InvalidateCache(ns string) (int, error) {
	namespace := cache.Namespace(ns)
	if _, ok := s.cache.TTL(namespace); !ok {
		return 0, ErrUnknownNamespace
	}
	return s.cache.Invalidate(namespace, "", nil), nil
}

// Providers lists every registered provider with its quarantine state.
func (s *AdminService) Providers() []ProviderStatus {
	failures := make(map[model.ProviderID]provider.Failure)
	for _, f := range s.health.Unhealthy() {
		failures[f.Provider] = f
	}

	ids := s.adapters.IDs()
	out := make([]ProviderStatus, 0, len(ids))
	for _, id := range ids {
		st := ProviderStatus{Provider: id, Healthy: true}
		if f, ok := failures[id]; ok {
			st.Healthy = false
			st.Failure = &f
		}
		out = append(out, st)
	}
	return out
}

func (s *AdminService) AssignPlan(ctx context.Context, userID string, tier model.PlanTier) (model.Plan, error) {
	if userID == "" {
		return model.Plan{}, ErrMissingUser
	}
	return s.plans.Assign(ctx, userID, tier)
}
