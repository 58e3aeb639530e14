package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"modelgate/internal/model"
)

type AlertRepositoryInterface interface {
	Upsert(ctx context.Context, alert *model.CostAlert) error
	ListByUser(ctx context.Context, userID string, sinceDay string) ([]*model.CostAlert, error)
	ListByDay(ctx context.Context, day string) ([]*model.CostAlert, error)
}

var _ AlertRepositoryInterface = (*AlertRepository)(nil)

type AlertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Upsert 按确定性 ID 写入告警，同一天重复评估只保留一条
func (r *AlertRepository) Upsert(ctx context.Context, alert *model.CostAlert) error {
	now := time.Now().UTC()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now

	meta, err := json.Marshal(alert.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cost_alerts (id, user_id, type, severity, message, metadata_json, day, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			severity = excluded.severity,
			message = excluded.message,
			metadata_json = excluded.metadata_json,
			updated_at = excluded.updated_at`,
		alert.ID, alert.UserID, string(alert.Type), string(alert.Severity), alert.Message, string(meta),
		alert.Day, formatTime(alert.CreatedAt), formatTime(alert.UpdatedAt),
	)
	return err
}

func (r *AlertRepository) ListByUser(ctx context.Context, userID string, sinceDay string) ([]*model.CostAlert, error) {
	return r.query(ctx,
		`WHERE user_id = ? AND day >= ? ORDER BY day DESC, type`, userID, sinceDay)
}

func (r *AlertRepository) ListByDay(ctx context.Context, day string) ([]*model.CostAlert, error) {
	return r.query(ctx, `WHERE day = ? ORDER BY user_id, type`, day)
}

func (r *AlertRepository) query(ctx context.Context, where string, args ...interface{}) ([]*model.CostAlert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, type, severity, message, metadata_json, day, created_at, updated_at FROM cost_alerts `+where,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.CostAlert
	for rows.Next() {
		a := &model.CostAlert{}
		var typ, sev, meta, createdAt, updatedAt string
		if err := rows.Scan(&a.ID, &a.UserID, &typ, &sev, &a.Message, &meta, &a.Day, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		a.Type = model.AlertType(typ)
		a.Severity = model.AlertSeverity(sev)
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &a.Metadata)
		}
		a.CreatedAt = parseTime(createdAt)
		a.UpdatedAt = parseTime(updatedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}
