package admission

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"modelgate/internal/catalog"
	"modelgate/internal/model"
)

type usageRow struct {
	user   string
	at     time.Time
	micros int64
}

type fakeUsage struct {
	rows []usageRow
	err  error
}

func (f *fakeUsage) add(user string, at time.Time, micros int64) {
	f.rows = append(f.rows, usageRow{user, at, micros})
}

func (f *fakeUsage) SumCostMicros(_ context.Context, userID string, start, end time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	var sum int64
	for _, r := range f.rows {
		if r.user == userID && !r.at.Before(start) && r.at.Before(end) {
			sum += r.micros
		}
	}
	return sum, nil
}

func (f *fakeUsage) SumAllCostMicros(_ context.Context, start, end time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	var sum int64
	for _, r := range f.rows {
		if !r.at.Before(start) && r.at.Before(end) {
			sum += r.micros
		}
	}
	return sum, nil
}

func (f *fakeUsage) CountRequests(_ context.Context, userID string, start, end time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for _, r := range f.rows {
		if r.user == userID && !r.at.Before(start) && r.at.Before(end) {
			n++
		}
	}
	return n, nil
}

type fakePlans struct {
	tiers map[string]model.PlanTier
	err   error
}

func (f *fakePlans) Resolve(_ context.Context, userID string) (model.Plan, error) {
	if f.err != nil {
		return model.Plan{}, f.err
	}
	tier, ok := f.tiers[userID]
	if !ok {
		tier = model.PlanFree
	}
	return catalog.Default().Plan(tier)
}

var testNow = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

func newTestController(usage *fakeUsage, plans *fakePlans, globalUSD float64) *Controller {
	c := NewController(plans, usage, Config{GlobalDailyLimitUSD: globalUSD})
	c.SetClock(func() time.Time { return testNow })
	return c
}

func TestEvaluate_DailyCostLimit(t *testing.T) {
	tests := []struct {
		name    string
		spent   int64
		allowed bool
	}{
		{"under limit", 999_999, true},
		{"exactly at limit", 1_000_000, false},
		{"over limit", 1_500_000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usage := &fakeUsage{}
			usage.add("u", testNow.Add(-2*time.Hour), tt.spent)
			// yesterday's spend never counts toward today
			usage.add("u", testNow.Add(-24*time.Hour), 10_000_000)

			d := newTestController(usage, &fakePlans{}, 1000).Evaluate(context.Background(), "u")
			if d.Allowed != tt.allowed {
				t.Fatalf("allowed = %v, want %v (reason %q)", d.Allowed, tt.allowed, d.Reason)
			}
			if !tt.allowed {
				if !strings.Contains(d.Reason, "daily cost limit") || d.Gate != GateDailyCost {
					t.Errorf("unexpected reason %q gate %q", d.Reason, d.Gate)
				}
			}
			if d.Metrics.DailyCostMicros != tt.spent || d.Metrics.DailyLimitMicros != 1_000_000 {
				t.Errorf("unexpected metrics %+v", d.Metrics)
			}
		})
	}
}

func TestEvaluate_GlobalCeiling(t *testing.T) {
	usage := &fakeUsage{}
	usage.add("someone-else", testNow.Add(-time.Hour), 60_000_000)
	plans := &fakePlans{tiers: map[string]model.PlanTier{"u": model.PlanEnterprise}}

	d := newTestController(usage, plans, 50).Evaluate(context.Background(), "u")
	if d.Allowed || d.Gate != GateGlobal {
		t.Fatalf("expected global denial, got %+v", d)
	}

	d = newTestController(usage, plans, 60).Evaluate(context.Background(), "u")
	if !d.Allowed {
		t.Fatalf("cost equal to the ceiling should not trip the gate: %+v", d)
	}
}

func TestEvaluate_RateLimit(t *testing.T) {
	usage := &fakeUsage{}
	for i := 0; i < 10; i++ {
		usage.add("u", testNow.Add(-time.Duration(i)*time.Second), 0)
	}
	usage.add("u", testNow.Add(-2*time.Minute), 0)

	d := newTestController(usage, &fakePlans{}, 1000).Evaluate(context.Background(), "u")
	if d.Allowed || d.Gate != GateRate {
		t.Fatalf("expected rate denial, got %+v", d)
	}
	if d.Metrics.RequestsLastMinute != 10 {
		t.Errorf("expected 10 requests in window, got %d", d.Metrics.RequestsLastMinute)
	}

	usage.rows = usage.rows[1:]
	d = newTestController(usage, &fakePlans{}, 1000).Evaluate(context.Background(), "u")
	if !d.Allowed {
		t.Fatalf("9 requests on a 10 rpm plan should pass: %+v", d)
	}
}

func TestEvaluate_SpikeIsAdvisory(t *testing.T) {
	usage := &fakeUsage{}
	for day := 1; day <= 7; day++ {
		usage.add("u", testNow.AddDate(0, 0, -day), 10_000)
	}
	usage.add("u", testNow.Add(-time.Hour), 60_000)

	d := newTestController(usage, &fakePlans{}, 1000).Evaluate(context.Background(), "u")
	if !d.Allowed {
		t.Fatalf("spike must not block: %+v", d)
	}
	if !d.Metrics.SpikeDetected || d.Metrics.SpikeRatio != 6 {
		t.Errorf("expected spike ratio 6, got %+v", d.Metrics)
	}
}

func TestEvaluate_NoHistoryNoSpike(t *testing.T) {
	usage := &fakeUsage{}
	usage.add("u", testNow.Add(-time.Hour), 500_000)

	d := newTestController(usage, &fakePlans{}, 1000).Evaluate(context.Background(), "u")
	if !d.Allowed || d.Metrics.SpikeDetected {
		t.Errorf("no baseline means no spike: %+v", d)
	}
}

func TestEvaluate_FailsClosed(t *testing.T) {
	tests := []struct {
		name  string
		usage *fakeUsage
		plans *fakePlans
	}{
		{"plan lookup", &fakeUsage{}, &fakePlans{err: errors.New("db down")}},
		{"usage history", &fakeUsage{err: errors.New("db down")}, &fakePlans{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestController(tt.usage, tt.plans, 1000).Evaluate(context.Background(), "u")
			if d.Allowed || d.Gate != GateSystem || !strings.Contains(d.Reason, "system error") {
				t.Errorf("expected fail-closed denial, got %+v", d)
			}
		})
	}
}

func TestProtectRequest_ReturnsDeniedError(t *testing.T) {
	usage := &fakeUsage{}
	usage.add("u", testNow.Add(-time.Minute), 1_000_000)

	_, err := newTestController(usage, &fakePlans{}, 1000).ProtectRequest(context.Background(), "u")
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if !strings.Contains(denied.Error(), "daily") {
		t.Errorf("reason should mention the daily limit: %s", denied.Error())
	}
}

func TestSnapshot_CollectsEverything(t *testing.T) {
	usage := &fakeUsage{}
	usage.add("u", testNow.Add(-time.Minute), 2_000_000)
	usage.add("v", testNow.Add(-time.Minute), 3_000_000)

	m, err := newTestController(usage, &fakePlans{}, 10).Snapshot(context.Background(), "u")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if m.DailyCostMicros != 2_000_000 || m.GlobalCostMicros != 5_000_000 || m.RequestsLastMinute != 1 {
		t.Errorf("unexpected snapshot %+v", m)
	}
	if m.GlobalLimitMicros != 10_000_000 {
		t.Errorf("expected global limit 10000000, got %d", m.GlobalLimitMicros)
	}
}

func TestProtectRequest_ConcurrentBurstHonorsRateLimit(t *testing.T) {
	c := newTestController(&fakeUsage{}, &fakePlans{}, 1000)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
		denied  int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ProtectRequest(context.Background(), "u")
			mu.Lock()
			defer mu.Unlock()
			var de *DeniedError
			switch {
			case err == nil:
				allowed++
			case errors.As(err, &de) && de.Gate == GateRate:
				denied++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if allowed != 10 || denied != 20 {
		t.Errorf("admitted %d and denied %d of 30 on a 10 rpm plan", allowed, denied)
	}
	if _, err := c.ProtectRequest(context.Background(), "other"); err != nil {
		t.Errorf("another user's budget is independent: %v", err)
	}
}

func TestProtectRequest_WindowSlides(t *testing.T) {
	now := testNow
	usage := &fakeUsage{}
	c := NewController(&fakePlans{}, usage, Config{GlobalDailyLimitUSD: 1000})
	c.SetClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := c.ProtectRequest(ctx, "u"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		now = now.Add(time.Second)
	}
	if _, err := c.ProtectRequest(ctx, "u"); err == nil {
		t.Fatalf("11th request inside the minute must be denied")
	}
	if d := c.Evaluate(ctx, "u"); d.Allowed || d.Metrics.RequestsLastMinute != 10 {
		t.Errorf("Evaluate should see the admitted requests, got %+v", d)
	}

	// persisted rows of the same requests are not counted twice
	for i := 0; i < 10; i++ {
		usage.add("u", testNow.Add(time.Duration(i)*time.Second), 0)
	}
	now = testNow.Add(61 * time.Second)
	d, err := c.ProtectRequest(ctx, "u")
	if err != nil {
		t.Fatalf("oldest admission left the window, request should pass: %v", err)
	}
	if d.Metrics.RequestsLastMinute != 9 {
		t.Errorf("expected 9 requests in window, got %d", d.Metrics.RequestsLastMinute)
	}
}

func TestEvaluate_DoesNotConsumeBudget(t *testing.T) {
	c := newTestController(&fakeUsage{}, &fakePlans{}, 1000)
	for i := 0; i < 20; i++ {
		if d := c.Evaluate(context.Background(), "u"); !d.Allowed {
			t.Fatalf("Evaluate call %d denied: %+v", i, d)
		}
	}
	if _, err := c.ProtectRequest(context.Background(), "u"); err != nil {
		t.Errorf("budget untouched by Evaluate, got %v", err)
	}
}
