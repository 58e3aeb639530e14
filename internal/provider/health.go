package provider

import (
	"context"
	"sort"
	"sync"
	"time"

	"modelgate/internal/metrics"
	"modelgate/internal/model"

	log "github.com/sirupsen/logrus"
)

const DefaultCooldown = 5 * time.Minute

// Failure 被隔离提供商的状态
type Failure struct {
	Provider  model.ProviderID `json:"provider"`
	Reason    string           `json:"reason"`
	Since     time.Time        `json:"since"`
	LastProbe time.Time        `json:"lastProbe,omitempty"`
	Probes    int              `json:"probes"`
}

// HealthTracker 进程内的不健康提供商集合
// A quarantined provider is reinstated only after the cooldown has elapsed and
// a health re-check succeeds.
type HealthTracker struct {
	mu        sync.RWMutex
	unhealthy map[model.ProviderID]*Failure
	cooldown  time.Duration
	now       func() time.Time
}

func NewHealthTracker(cooldown time.Duration) *HealthTracker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &HealthTracker{
		unhealthy: make(map[model.ProviderID]*Failure),
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// SetClock overrides the time source.
func (h *HealthTracker) SetClock(now func() time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = now
}

func (h *HealthTracker) IsHealthy(id model.ProviderID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, bad := h.unhealthy[id]
	return !bad
}

// MarkUnhealthy 隔离提供商；已隔离时保留首次失败时间
func (h *HealthTracker) MarkUnhealthy(id model.ProviderID, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f, ok := h.unhealthy[id]; ok {
		f.Reason = reason
		return
	}
	h.unhealthy[id] = &Failure{Provider: id, Reason: reason, Since: h.now()}
	metrics.UnhealthyProviders.Set(float64(len(h.unhealthy)))
	log.Warnf("provider: %s marked unhealthy: %s", id, reason)
}

func (h *HealthTracker) Reinstate(id model.ProviderID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.unhealthy[id]; !ok {
		return
	}
	delete(h.unhealthy, id)
	metrics.UnhealthyProviders.Set(float64(len(h.unhealthy)))
	log.Infof("provider: %s reinstated", id)
}

// Unhealthy returns a snapshot of the quarantined providers.
func (h *HealthTracker) Unhealthy() []Failure {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Failure, 0, len(h.unhealthy))
	for _, f := range h.unhealthy {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// due 返回冷却期已过、可重新探测的提供商
func (h *HealthTracker) due() []model.ProviderID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	now := h.now()
	var ids []model.ProviderID
	for id, f := range h.unhealthy {
		last := f.Since
		if f.LastProbe.After(last) {
			last = f.LastProbe
		}
		if !now.Before(last.Add(h.cooldown)) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ProbeDue 对冷却期已过的提供商执行健康检查，成功则恢复
func (h *HealthTracker) ProbeDue(ctx context.Context, reg *Registry, timeout time.Duration) []model.ProviderID {
	var recovered []model.ProviderID
	for _, id := range h.due() {
		adapter, ok := reg.Get(id)
		if !ok {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		healthy := adapter.HealthCheck(probeCtx)
		cancel()

		if healthy {
			h.Reinstate(id)
			recovered = append(recovered, id)
			continue
		}
		h.mu.Lock()
		if f, ok := h.unhealthy[id]; ok {
			f.LastProbe = h.now()
			f.Probes++
		}
		h.mu.Unlock()
		log.Debugf("provider: %s still unhealthy after re-probe", id)
	}
	return recovered
}
