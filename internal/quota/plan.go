package quota

import (
	"context"
	"fmt"

	"modelgate/internal/cache"
	"modelgate/internal/catalog"
	"modelgate/internal/model"
)

// PlanStore persists user plan assignments.
type PlanStore interface {
	GetByUserID(ctx context.Context, userID string) (*model.UserPlan, error)
	Assign(ctx context.Context, userID string, tier model.PlanTier) error
}

// PlanResolver 解析用户当前套餐（未分配时为 free），结果缓存于 user_plan 命名空间
type PlanResolver struct {
	store PlanStore
	cat   *catalog.Catalog
	cache *cache.Cache
}

func NewPlanResolver(store PlanStore, cat *catalog.Catalog, c *cache.Cache) *PlanResolver {
	return &PlanResolver{store: store, cat: cat, cache: c}
}

// Resolve returns the user's plan. Lookup failures are returned to the
// caller; admission treats them as a denial.
func (r *PlanResolver) Resolve(ctx context.Context, userID string) (model.Plan, error) {
	load := func(ctx context.Context) (model.Plan, error) {
		tier := model.PlanFree
		up, err := r.store.GetByUserID(ctx, userID)
		if err != nil {
			return model.Plan{}, fmt.Errorf("quota: load plan for %s: %w", userID, err)
		}
		if up != nil {
			tier = up.Tier
		}
		return r.cat.Plan(tier)
	}
	if r.cache == nil {
		return load(ctx)
	}
	return cache.GetOrSetAs(ctx, r.cache, cache.NamespaceUserPlan, userID, nil, load)
}

// AllowedModels 返回用户套餐的模型白名单
func (r *PlanResolver) AllowedModels(ctx context.Context, userID string) ([]string, error) {
	plan, err := r.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return plan.AllowedModels, nil
}

// Assign 设置用户套餐并使缓存失效
func (r *PlanResolver) Assign(ctx context.Context, userID string, tier model.PlanTier) (model.Plan, error) {
	plan, err := r.cat.Plan(tier)
	if err != nil {
		return model.Plan{}, err
	}
	if err := r.store.Assign(ctx, userID, tier); err != nil {
		return model.Plan{}, err
	}
	if r.cache != nil {
		r.cache.Invalidate(cache.NamespaceUserPlan, userID, nil)
	}
	return plan, nil
}
