package repository

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"modelgate/internal/database"
	"modelgate/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUsageRepository_Sums(t *testing.T) {
	ctx := context.Background()
	repo := NewUsageRepository(openTestDB(t))

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	recs := []*model.UsageRecord{
		{UserID: "u1", Model: "gpt-4o-mini", Provider: model.ProviderOpenAI, CostMicros: 100, CreatedAt: day.Add(time.Hour), Success: true},
		{UserID: "u1", Model: "gpt-4o-mini", Provider: model.ProviderOpenAI, CostMicros: 250, CreatedAt: day.Add(2 * time.Hour), Success: true},
		{UserID: "u2", Model: "claude-sonnet-4", Provider: model.ProviderAnthropic, CostMicros: 1000, CreatedAt: day.Add(3 * time.Hour)},
		{UserID: "u1", Model: "gpt-4o", Provider: model.ProviderOpenAI, CostMicros: 5000, CreatedAt: day.Add(-time.Minute)},
	}
	if err := repo.CreateBatch(ctx, recs); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	for _, rec := range recs {
		if rec.ID == "" {
			t.Fatalf("expected id assigned")
		}
	}

	end := day.Add(24 * time.Hour)
	sum, err := repo.SumCostMicros(ctx, "u1", day, end)
	if err != nil {
		t.Fatalf("SumCostMicros: %v", err)
	}
	if sum != 350 {
		t.Errorf("expected 350, got %d", sum)
	}

	all, err := repo.SumAllCostMicros(ctx, day, end)
	if err != nil {
		t.Fatalf("SumAllCostMicros: %v", err)
	}
	if all != 1350 {
		t.Errorf("expected 1350, got %d", all)
	}

	count, err := repo.CountRequests(ctx, "u1", day.Add(-time.Hour), end)
	if err != nil {
		t.Fatalf("CountRequests: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3, got %d", count)
	}

	list, err := repo.ListByUser(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 3 || list[0].CostMicros != 250 {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if !list[0].Success || list[0].Provider != model.ProviderOpenAI {
		t.Errorf("unexpected record %+v", list[0])
	}
}

func TestPlanRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPlanRepository(openTestDB(t))

	up, err := repo.GetByUserID(ctx, "nobody")
	if err != nil || up != nil {
		t.Fatalf("expected nil, nil for unassigned user, got %v, %v", up, err)
	}

	if err := repo.Assign(ctx, "u1", model.PlanStarter); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if err := repo.Assign(ctx, "u1", model.PlanPro); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	up, err = repo.GetByUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetByUserID: %v", err)
	}
	if up.Tier != model.PlanPro {
		t.Errorf("expected pro, got %s", up.Tier)
	}
	list, _ := repo.List(ctx)
	if len(list) != 1 {
		t.Errorf("expected one plan row, got %d", len(list))
	}
}

func TestPreferenceRepository_RecordUsage(t *testing.T) {
	ctx := context.Background()
	repo := NewPreferenceRepository(openTestDB(t))
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	steps := []model.PreferenceUsage{
		{UserID: "u", Model: "m", TaskType: model.TaskCoding, Success: true, ManualOverride: true, At: now},
		{UserID: "u", Model: "m", TaskType: model.TaskCoding, Success: false, At: now.Add(time.Minute)},
		{UserID: "u", Model: "m", TaskType: model.TaskWriting, Success: true, At: now.Add(2 * time.Minute)},
	}
	for _, s := range steps {
		if err := repo.RecordUsage(ctx, s); err != nil {
			t.Fatalf("RecordUsage: %v", err)
		}
	}

	p, err := repo.Get(ctx, "u", "m")
	if err != nil || p == nil {
		t.Fatalf("Get: %v, %v", p, err)
	}
	if p.UsageCount != 3 || p.OverrideCount != 1 || p.SuccessCount != 2 {
		t.Errorf("unexpected counters %+v", p)
	}
	if diff := p.SuccessRate - 2.0/3.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected success rate 2/3, got %v", p.SuccessRate)
	}
	if p.TaskUsage[model.TaskCoding] != 2 || p.TaskUsage[model.TaskWriting] != 1 {
		t.Errorf("unexpected task histogram %v", p.TaskUsage)
	}
	if p.LastUsedAt == nil || !p.LastUsedAt.Equal(now.Add(2*time.Minute)) {
		t.Errorf("unexpected last used %v", p.LastUsedAt)
	}

	missing, err := repo.Get(ctx, "u", "other")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing aggregate")
	}
}

func TestPreferenceRepository_ConcurrentRatings(t *testing.T) {
	ctx := context.Background()
	repo := NewPreferenceRepository(openTestDB(t))

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := repo.RecordRating(ctx, "u", "m", i%5+1, time.Now()); err != nil {
				t.Errorf("RecordRating: %v", err)
			}
		}(i)
	}
	wg.Wait()

	p, err := repo.Get(ctx, "u", "m")
	if err != nil || p == nil {
		t.Fatalf("Get: %v", err)
	}
	if p.RatingCount != n {
		t.Errorf("expected %d ratings, got %d", n, p.RatingCount)
	}
	if p.AverageRating() != 3 {
		t.Errorf("expected average 3, got %v", p.AverageRating())
	}
	if p.UsageCount != 0 {
		t.Errorf("ratings must not count as usage, got %d", p.UsageCount)
	}
}

func TestFeedbackRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewFeedbackRepository(openTestDB(t))

	fb := &model.Feedback{UserID: "u", Model: "m", Rating: 4, TaskType: model.TaskAnalysis, Comment: "ok"}
	if err := repo.Create(ctx, fb); err != nil {
		t.Fatalf("Create: %v", err)
	}
	list, err := repo.ListByUserModel(ctx, "u", "m", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != fb.ID || list[0].TaskType != model.TaskAnalysis {
		t.Errorf("unexpected feedback list %+v", list)
	}
}

func TestAlertRepository_UpsertDeduplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewAlertRepository(openTestDB(t))

	a := &model.CostAlert{
		ID: "fixed", UserID: "u", Type: model.AlertDailyWarning, Severity: model.SeverityWarning,
		Message: "80%", Metadata: map[string]float64{"ratio": 0.8}, Day: "2025-03-10",
	}
	if err := repo.Upsert(ctx, a); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	b := *a
	b.Message = "85%"
	b.Metadata = map[string]float64{"ratio": 0.85}
	b.CreatedAt = time.Time{}
	if err := repo.Upsert(ctx, &b); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	list, err := repo.ListByUser(ctx, "u", "2025-03-01")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(list))
	}
	if list[0].Message != "85%" || list[0].Metadata["ratio"] != 0.85 {
		t.Errorf("expected refreshed alert, got %+v", list[0])
	}

	byDay, _ := repo.ListByDay(ctx, "2025-03-10")
	if len(byDay) != 1 {
		t.Errorf("expected 1 alert for day, got %d", len(byDay))
	}
}
