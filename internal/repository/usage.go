package repository

import (
	"context"
	"database/sql"
	"time"

	"modelgate/internal/model"

	"github.com/google/uuid"
)

type UsageRepositoryInterface interface {
	Create(ctx context.Context, rec *model.UsageRecord) error
	CreateBatch(ctx context.Context, recs []*model.UsageRecord) error
	SumCostMicros(ctx context.Context, userID string, start, end time.Time) (int64, error)
	SumAllCostMicros(ctx context.Context, start, end time.Time) (int64, error)
	CountRequests(ctx context.Context, userID string, start, end time.Time) (int64, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.UsageRecord, error)
}

var _ UsageRepositoryInterface = (*UsageRepository)(nil)

type UsageRepository struct {
	db *sql.DB
}

func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

const insertUsageSQL = `INSERT INTO usage_logs
	(id, created_at, user_id, api_key_id, model, provider, input_tokens, output_tokens, cost_micros, latency_ms, success, fallback_used, error_type)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func prepareUsage(rec *model.UsageRecord) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
}

func usageArgs(rec *model.UsageRecord) []interface{} {
	return []interface{}{
		rec.ID, formatTime(rec.CreatedAt), rec.UserID, rec.APIKeyID, rec.Model, string(rec.Provider),
		rec.InputTokens, rec.OutputTokens, rec.CostMicros, rec.LatencyMs,
		boolToInt(rec.Success), boolToInt(rec.FallbackUsed), rec.ErrorType,
	}
}

func (r *UsageRepository) Create(ctx context.Context, rec *model.UsageRecord) error {
	prepareUsage(rec)
	_, err := r.db.ExecContext(ctx, insertUsageSQL, usageArgs(rec)...)
	return err
}

// CreateBatch 批量写入（单事务）
func (r *UsageRepository) CreateBatch(ctx context.Context, recs []*model.UsageRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertUsageSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range recs {
		prepareUsage(rec)
		if _, err := stmt.ExecContext(ctx, usageArgs(rec)...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SumCostMicros 统计用户在 [start, end) 内的成本
func (r *UsageRepository) SumCostMicros(ctx context.Context, userID string, start, end time.Time) (int64, error) {
	var sum sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_micros), 0) FROM usage_logs WHERE user_id = ? AND created_at >= ? AND created_at < ?`,
		userID, formatTime(start), formatTime(end),
	).Scan(&sum)
	return sum.Int64, err
}

// SumAllCostMicros 统计所有用户在 [start, end) 内的成本
func (r *UsageRepository) SumAllCostMicros(ctx context.Context, start, end time.Time) (int64, error) {
	var sum sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_micros), 0) FROM usage_logs WHERE created_at >= ? AND created_at < ?`,
		formatTime(start), formatTime(end),
	).Scan(&sum)
	return sum.Int64, err
}

func (r *UsageRepository) CountRequests(ctx context.Context, userID string, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_logs WHERE user_id = ? AND created_at >= ? AND created_at < ?`,
		userID, formatTime(start), formatTime(end),
	).Scan(&count)
	return count, err
}

func (r *UsageRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.UsageRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, user_id, api_key_id, model, provider, input_tokens, output_tokens,
		        cost_micros, latency_ms, success, fallback_used, COALESCE(error_type, '')
		 FROM usage_logs WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.UsageRecord
	for rows.Next() {
		rec := &model.UsageRecord{}
		var createdAt, provider string
		var success, fallback int
		if err := rows.Scan(&rec.ID, &createdAt, &rec.UserID, &rec.APIKeyID, &rec.Model, &provider,
			&rec.InputTokens, &rec.OutputTokens, &rec.CostMicros, &rec.LatencyMs,
			&success, &fallback, &rec.ErrorType); err != nil {
			return nil, err
		}
		rec.CreatedAt = parseTime(createdAt)
		rec.Provider = model.ProviderID(provider)
		rec.Success = success == 1
		rec.FallbackUsed = fallback == 1
		out = append(out, rec)
	}
	return out, rows.Err()
}
