package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"modelgate/internal/admission"
	"modelgate/internal/billing"
	"modelgate/internal/metrics"
	"modelgate/internal/model"
	"modelgate/internal/quota"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// alertNamespace seeds deterministic alert ids.
var alertNamespace = uuid.MustParse("6f1c2a52-6d1e-4c8e-9a43-0b7e5d0c9f21")

// 告警阈值（占限额比例）
const (
	dailyWarnRatio       = 0.8
	dailyExceededRatio   = 1.0
	monthlyInfoRatio     = 0.5
	monthlyCriticalRatio = 0.8
	globalWarnRatio      = 0.7
	globalCriticalRatio  = 0.9
)

type SnapshotSource interface {
	Snapshot(ctx context.Context, userID string) (admission.Metrics, error)
	GlobalSnapshot(ctx context.Context) (costMicros, limitMicros int64, err error)
}

type RequestCounter interface {
	CountRequests(ctx context.Context, userID string, start, end time.Time) (int64, error)
}

type PlanSource interface {
	Resolve(ctx context.Context, userID string) (model.Plan, error)
}

type AlertStore interface {
	Upsert(ctx context.Context, alert *model.CostAlert) error
	ListByUser(ctx context.Context, userID string, sinceDay string) ([]*model.CostAlert, error)
	ListByDay(ctx context.Context, day string) ([]*model.CostAlert, error)
}

// AlertID 由 (user, type, day) 派生的确定性告警 ID
func AlertID(userID string, t model.AlertType, day string) string {
	return uuid.NewSHA1(alertNamespace, []byte(userID+"|"+string(t)+"|"+day)).String()
}

// Evaluator 阈值告警评估器，只做观测，不影响请求
type Evaluator struct {
	snapshots SnapshotSource
	requests  RequestCounter
	plans     PlanSource
	store     AlertStore
	now       func() time.Time
}

func NewEvaluator(snapshots SnapshotSource, requests RequestCounter, plans PlanSource, store AlertStore) *Evaluator {
	return &Evaluator{snapshots: snapshots, requests: requests, plans: plans, store: store, now: time.Now}
}

// SetClock overrides the time source used for day keys and monthly windows.
// Call it before the evaluator is shared.
func (e *Evaluator) SetClock(now func() time.Time) {
	e.now = now
}

// EvaluateAlerts 评估用户的日成本、月请求数、突增以及全局成本规则
// Every rule is independent; the returned slice holds the alerts that fired and
// were stored. Store failures are joined into the error without stopping the
// remaining rules.
func (e *Evaluator) EvaluateAlerts(ctx context.Context, userID string) ([]*model.CostAlert, error) {
	now := e.now().UTC()
	day := quota.DayKey(now)

	snap, err := e.snapshots.Snapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("usage: snapshot for %s: %w", userID, err)
	}
	plan, err := e.plans.Resolve(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("usage: resolve plan for %s: %w", userID, err)
	}
	monthStart, monthEnd, _ := quota.Bounds(quota.WindowMonthly, now)
	monthly, err := e.requests.CountRequests(ctx, userID, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("usage: count monthly requests for %s: %w", userID, err)
	}

	var candidates []*model.CostAlert
	if a := dailyAlert(userID, snap); a != nil {
		candidates = append(candidates, a)
	}
	if a := monthlyAlert(userID, monthly, plan.MonthlyRequestLimit); a != nil {
		candidates = append(candidates, a)
	}
	if snap.SpikeDetected {
		candidates = append(candidates, &model.CostAlert{
			UserID:   userID,
			Type:     model.AlertSpike,
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("unusual spend: today is %.1fx the trailing 7-day average", snap.SpikeRatio),
			Metadata: map[string]float64{
				"dailyCostUsd":    microsUSD(snap.DailyCostMicros),
				"trailingMeanUsd": microsUSD(snap.TrailingMeanCostMicros),
				"spikeRatio":      snap.SpikeRatio,
			},
		})
	}
	if a := globalAlert(snap.GlobalCostMicros, snap.GlobalLimitMicros); a != nil {
		candidates = append(candidates, a)
	}

	return e.upsertAll(ctx, day, candidates)
}

// EvaluateGlobal 仅评估全局日成本规则（定时任务调用）
func (e *Evaluator) EvaluateGlobal(ctx context.Context) ([]*model.CostAlert, error) {
	cost, limit, err := e.snapshots.GlobalSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("usage: global snapshot: %w", err)
	}
	a := globalAlert(cost, limit)
	if a == nil {
		return nil, nil
	}
	return e.upsertAll(ctx, quota.DayKey(e.now()), []*model.CostAlert{a})
}

// List returns a user's alerts from sinceDay onwards; "" means today.
func (e *Evaluator) List(ctx context.Context, userID, sinceDay string) ([]*model.CostAlert, error) {
	if sinceDay == "" {
		sinceDay = quota.DayKey(e.now())
	}
	return e.store.ListByUser(ctx, userID, sinceDay)
}

func (e *Evaluator) upsertAll(ctx context.Context, day string, alerts []*model.CostAlert) ([]*model.CostAlert, error) {
	var stored []*model.CostAlert
	var errs []error
	for _, a := range alerts {
		a.Day = day
		a.ID = AlertID(a.UserID, a.Type, day)
		if err := e.store.Upsert(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("usage: store %s alert for %s: %w", a.Type, a.UserID, err))
			continue
		}
		metrics.AlertsRaised.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
		log.WithFields(log.Fields{"user": a.UserID, "type": a.Type, "severity": a.Severity}).Info("usage: alert raised: " + a.Message)
		stored = append(stored, a)
	}
	return stored, errors.Join(errs...)
}

func dailyAlert(userID string, snap admission.Metrics) *model.CostAlert {
	if snap.DailyLimitMicros <= 0 {
		return nil
	}
	ratio := float64(snap.DailyCostMicros) / float64(snap.DailyLimitMicros)
	meta := map[string]float64{
		"dailyCostUsd":  microsUSD(snap.DailyCostMicros),
		"dailyLimitUsd": microsUSD(snap.DailyLimitMicros),
		"percent":       ratio * 100,
	}
	switch {
	case ratio >= dailyExceededRatio:
		return &model.CostAlert{
			UserID:   userID,
			Type:     model.AlertDailyExceeded,
			Severity: model.SeverityCritical,
			Message:  fmt.Sprintf("daily cost limit exceeded for plan %s", snap.Plan),
			Metadata: meta,
		}
	case ratio >= dailyWarnRatio:
		return &model.CostAlert{
			UserID:   userID,
			Type:     model.AlertDailyWarning,
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("daily cost at %.0f%% of the %s plan limit", ratio*100, snap.Plan),
			Metadata: meta,
		}
	}
	return nil
}

func monthlyAlert(userID string, count int64, limit int) *model.CostAlert {
	if limit <= 0 {
		return nil
	}
	ratio := float64(count) / float64(limit)
	meta := map[string]float64{
		"monthlyRequests": float64(count),
		"monthlyLimit":    float64(limit),
		"percent":         ratio * 100,
	}
	switch {
	case ratio >= monthlyCriticalRatio:
		return &model.CostAlert{
			UserID:   userID,
			Type:     model.AlertMonthlyCritical,
			Severity: model.SeverityCritical,
			Message:  fmt.Sprintf("monthly requests at %.0f%% of plan limit", ratio*100),
			Metadata: meta,
		}
	case ratio >= monthlyInfoRatio:
		return &model.CostAlert{
			UserID:   userID,
			Type:     model.AlertMonthlyInfo,
			Severity: model.SeverityInfo,
			Message:  fmt.Sprintf("monthly requests at %.0f%% of plan limit", ratio*100),
			Metadata: meta,
		}
	}
	return nil
}

func globalAlert(cost, limit int64) *model.CostAlert {
	if limit <= 0 {
		return nil
	}
	ratio := float64(cost) / float64(limit)
	meta := map[string]float64{
		"globalCostUsd":  microsUSD(cost),
		"globalLimitUsd": microsUSD(limit),
		"percent":        ratio * 100,
	}
	switch {
	case ratio >= globalCriticalRatio:
		return &model.CostAlert{
			UserID:   model.GlobalAlertUserID,
			Type:     model.AlertGlobalCritical,
			Severity: model.SeverityCritical,
			Message:  fmt.Sprintf("global daily spend at %.0f%% of emergency ceiling", ratio*100),
			Metadata: meta,
		}
	case ratio >= globalWarnRatio:
		return &model.CostAlert{
			UserID:   model.GlobalAlertUserID,
			Type:     model.AlertGlobalWarning,
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("global daily spend at %.0f%% of emergency ceiling", ratio*100),
			Metadata: meta,
		}
	}
	return nil
}

func microsUSD(m int64) float64 {
	return billing.MicrosToUSD(m).InexactFloat64()
}
