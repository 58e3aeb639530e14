package admission

import (
	"context"
	"fmt"
	"time"

	"modelgate/internal/billing"
	"modelgate/internal/metrics"
	"modelgate/internal/model"
	"modelgate/internal/quota"

	log "github.com/sirupsen/logrus"
)

const (
	GateDailyCost = "daily_cost"
	GateGlobal    = "global"
	GateRate      = "rate"
	GateSystem    = "system"
)

const (
	DefaultSpikeMultiplier = 5.0
	spikeLookbackDays      = 7
)

// UsageReader 读取用量聚合
type UsageReader interface {
	SumCostMicros(ctx context.Context, userID string, start, end time.Time) (int64, error)
	SumAllCostMicros(ctx context.Context, start, end time.Time) (int64, error)
	CountRequests(ctx context.Context, userID string, start, end time.Time) (int64, error)
}

// PlanSource resolves the user's current plan.
type PlanSource interface {
	Resolve(ctx context.Context, userID string) (model.Plan, error)
}

// Metrics 准入诊断数据，拒绝时也会返回已收集的部分
type Metrics struct {
	Plan                   model.PlanTier `json:"plan,omitempty"`
	DailyCostMicros        int64          `json:"dailyCostMicros"`
	DailyLimitMicros       int64          `json:"dailyLimitMicros"`
	GlobalCostMicros       int64          `json:"globalCostMicros"`
	GlobalLimitMicros      int64          `json:"globalLimitMicros"`
	RequestsLastMinute     int64          `json:"requestsLastMinute"`
	RequestsPerMinute      int            `json:"requestsPerMinute"`
	TrailingMeanCostMicros int64          `json:"trailingMeanCostMicros"`
	SpikeRatio             float64        `json:"spikeRatio"`
	SpikeDetected          bool           `json:"spikeDetected"`
}

// Decision 准入结果
type Decision struct {
	Allowed bool    `json:"allowed"`
	Reason  string  `json:"reason,omitempty"`
	Gate    string  `json:"gate,omitempty"`
	Metrics Metrics `json:"metrics"`
}

// DeniedError is returned by ProtectRequest when a gate blocks the request.
type DeniedError struct {
	Gate    string
	Reason  string
	Metrics Metrics
}

func (e *DeniedError) Error() string {
	return "admission denied: " + e.Reason
}

type Config struct {
	GlobalDailyLimitUSD float64
	SpikeMultiplier     float64
}

// Controller 准入控制器：日成本、全局熔断、速率、突增检测
type Controller struct {
	plans    PlanSource
	usage    UsageReader
	cfg      Config
	admitted *admittedWindow
	now      func() time.Time
}

func NewController(plans PlanSource, usage UsageReader, cfg Config) *Controller {
	if cfg.SpikeMultiplier <= 0 {
		cfg.SpikeMultiplier = DefaultSpikeMultiplier
	}
	return &Controller{
		plans:    plans,
		usage:    usage,
		cfg:      cfg,
		admitted: newAdmittedWindow(time.Minute),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Call it before the controller is shared.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// Evaluate 依次检查日成本、全局成本、速率，首个拒绝即返回；突增只做标记
// Any failure to read the plan or usage history denies the request. Evaluate
// only reports; it does not consume rate budget.
func (c *Controller) Evaluate(ctx context.Context, userID string) Decision {
	return c.evaluate(ctx, userID, false)
}

func (c *Controller) evaluate(ctx context.Context, userID string, reserve bool) Decision {
	now := c.now().UTC()
	var m Metrics

	plan, err := c.plans.Resolve(ctx, userID)
	if err != nil {
		return c.systemError(userID, m, err)
	}
	m.Plan = plan.Tier
	m.DailyLimitMicros = plan.DailyCostLimitMicros()
	m.RequestsPerMinute = plan.RequestsPerMinute
	m.GlobalLimitMicros = billing.USDToMicros(c.cfg.GlobalDailyLimitUSD)

	dayStart, dayEnd, _ := quota.Bounds(quota.WindowDaily, now)

	// daily cost gate
	m.DailyCostMicros, err = c.usage.SumCostMicros(ctx, userID, dayStart, dayEnd)
	if err != nil {
		return c.systemError(userID, m, err)
	}
	if m.DailyCostMicros >= m.DailyLimitMicros {
		return c.deny(userID, GateDailyCost, fmt.Sprintf("daily cost limit reached ($%s of $%s on %s plan)",
			billing.MicrosToUSD(m.DailyCostMicros).StringFixed(2),
			billing.MicrosToUSD(m.DailyLimitMicros).StringFixed(2), plan.Tier), m)
	}

	// global emergency gate
	if m.GlobalLimitMicros > 0 {
		m.GlobalCostMicros, err = c.usage.SumAllCostMicros(ctx, dayStart, dayEnd)
		if err != nil {
			return c.systemError(userID, m, err)
		}
		if m.GlobalCostMicros > m.GlobalLimitMicros {
			return c.deny(userID, GateGlobal, "global daily cost ceiling exceeded, service temporarily unavailable", m)
		}
	}

	// rate gate, counting admitted requests as well as persisted ones
	minStart, minEnd, _ := quota.Bounds(quota.WindowMinute, now)
	persisted, err := c.usage.CountRequests(ctx, userID, minStart, minEnd)
	if err != nil {
		return c.systemError(userID, m, err)
	}
	var ok bool
	if reserve {
		m.RequestsLastMinute, ok = c.admitted.reserve(userID, now, persisted, m.RequestsPerMinute)
	} else {
		m.RequestsLastMinute = max(persisted, c.admitted.count(userID, now))
		ok = m.RequestsLastMinute < int64(m.RequestsPerMinute)
	}
	if !ok {
		return c.deny(userID, GateRate, fmt.Sprintf("rate limit reached (%d requests per minute)", m.RequestsPerMinute), m)
	}

	// spike detector, advisory only
	if err := c.detectSpike(ctx, userID, now, &m); err != nil {
		log.Warnf("admission: spike detection for %s failed: %v", userID, err)
	}

	metrics.AdmissionDecisions.WithLabelValues("true", "").Inc()
	return Decision{Allowed: true, Metrics: m}
}

// ProtectRequest is Evaluate returning a *DeniedError when blocked. An allowed
// request takes a slot in the per-minute window before it returns.
func (c *Controller) ProtectRequest(ctx context.Context, userID string) (Decision, error) {
	d := c.evaluate(ctx, userID, true)
	if !d.Allowed {
		return d, &DeniedError{Gate: d.Gate, Reason: d.Reason, Metrics: d.Metrics}
	}
	return d, nil
}

// Snapshot 收集全部指标（不短路），供告警评估使用
func (c *Controller) Snapshot(ctx context.Context, userID string) (Metrics, error) {
	now := c.now().UTC()
	var m Metrics

	plan, err := c.plans.Resolve(ctx, userID)
	if err != nil {
		return m, err
	}
	m.Plan = plan.Tier
	m.DailyLimitMicros = plan.DailyCostLimitMicros()
	m.RequestsPerMinute = plan.RequestsPerMinute
	m.GlobalLimitMicros = billing.USDToMicros(c.cfg.GlobalDailyLimitUSD)

	dayStart, dayEnd, _ := quota.Bounds(quota.WindowDaily, now)
	if m.DailyCostMicros, err = c.usage.SumCostMicros(ctx, userID, dayStart, dayEnd); err != nil {
		return m, err
	}
	if m.GlobalCostMicros, err = c.usage.SumAllCostMicros(ctx, dayStart, dayEnd); err != nil {
		return m, err
	}
	minStart, minEnd, _ := quota.Bounds(quota.WindowMinute, now)
	persisted, err := c.usage.CountRequests(ctx, userID, minStart, minEnd)
	if err != nil {
		return m, err
	}
	m.RequestsLastMinute = max(persisted, c.admitted.count(userID, now))
	if err := c.detectSpike(ctx, userID, now, &m); err != nil {
		return m, err
	}
	return m, nil
}

// GlobalSnapshot returns today's cost across all users against the ceiling.
func (c *Controller) GlobalSnapshot(ctx context.Context) (costMicros, limitMicros int64, err error) {
	dayStart, dayEnd, _ := quota.Bounds(quota.WindowDaily, c.now())
	costMicros, err = c.usage.SumAllCostMicros(ctx, dayStart, dayEnd)
	return costMicros, billing.USDToMicros(c.cfg.GlobalDailyLimitUSD), err
}

// detectSpike 今日成本超过前 7 天日均成本的 SpikeMultiplier 倍即视为突增
// Without any prior spend there is no baseline and no spike.
func (c *Controller) detectSpike(ctx context.Context, userID string, now time.Time, m *Metrics) error {
	start, end, _ := quota.Bounds(quota.WindowTrailingWeek, now)
	total, err := c.usage.SumCostMicros(ctx, userID, start, end)
	if err != nil {
		return err
	}
	m.TrailingMeanCostMicros = total / spikeLookbackDays
	if total <= 0 {
		return nil
	}
	mean := float64(total) / spikeLookbackDays
	m.SpikeRatio = float64(m.DailyCostMicros) / mean
	m.SpikeDetected = m.SpikeRatio > c.cfg.SpikeMultiplier
	return nil
}

func (c *Controller) deny(userID, gate, reason string, m Metrics) Decision {
	log.WithFields(log.Fields{"user": userID, "gate": gate}).Infof("admission: denied: %s", reason)
	metrics.AdmissionDecisions.WithLabelValues("false", gate).Inc()
	return Decision{Allowed: false, Reason: reason, Gate: gate, Metrics: m}
}

func (c *Controller) systemError(userID string, m Metrics, err error) Decision {
	log.Errorf("admission: unable to verify limits for %s: %v", userID, err)
	metrics.AdmissionDecisions.WithLabelValues("false", GateSystem).Inc()
	return Decision{
		Allowed: false,
		Reason:  "system error: unable to verify usage limits",
		Gate:    GateSystem,
		Metrics: m,
	}
}
