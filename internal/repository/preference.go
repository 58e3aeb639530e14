package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"modelgate/internal/model"
)

type PreferenceRepositoryInterface interface {
	Get(ctx context.Context, userID, modelName string) (*model.UserModelPreference, error)
	ListByUser(ctx context.Context, userID string) ([]*model.UserModelPreference, error)
	RecordUsage(ctx context.Context, u model.PreferenceUsage) error
	RecordRating(ctx context.Context, userID, modelName string, rating int, at time.Time) error
}

var _ PreferenceRepositoryInterface = (*PreferenceRepository)(nil)

// PreferenceRepository 用户-模型偏好聚合
// All mutations are single UPSERT statements; counters are incremented in SQL
// so concurrent updates for one (user, model) never lose writes.
type PreferenceRepository struct {
	db *sql.DB
}

func NewPreferenceRepository(db *sql.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

const selectPreferenceSQL = `SELECT user_id, model, usage_count, override_count, success_count, success_rate,
	rating_sum, rating_count, task_usage_json, COALESCE(last_used_at, ''), updated_at
	FROM model_preferences`

func scanPreference(scan func(dest ...interface{}) error) (*model.UserModelPreference, error) {
	p := &model.UserModelPreference{}
	var taskJSON, lastUsed, updatedAt string
	if err := scan(&p.UserID, &p.Model, &p.UsageCount, &p.OverrideCount, &p.SuccessCount, &p.SuccessRate,
		&p.RatingSum, &p.RatingCount, &taskJSON, &lastUsed, &updatedAt); err != nil {
		return nil, err
	}
	p.TaskUsage = make(map[model.TaskType]int)
	if taskJSON != "" {
		_ = json.Unmarshal([]byte(taskJSON), &p.TaskUsage)
	}
	if lastUsed != "" {
		t := parseTime(lastUsed)
		p.LastUsedAt = &t
	}
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

// Get 无记录时返回 nil, nil
func (r *PreferenceRepository) Get(ctx context.Context, userID, modelName string) (*model.UserModelPreference, error) {
	row := r.db.QueryRowContext(ctx, selectPreferenceSQL+` WHERE user_id = ? AND model = ?`, userID, modelName)
	p, err := scanPreference(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *PreferenceRepository) ListByUser(ctx context.Context, userID string) ([]*model.UserModelPreference, error) {
	rows, err := r.db.QueryContext(ctx, selectPreferenceSQL+` WHERE user_id = ? ORDER BY usage_count DESC, model`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.UserModelPreference
	for rows.Next() {
		p, err := scanPreference(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordUsage 原子递增使用计数、覆盖计数、成功率与任务直方图
func (r *PreferenceRepository) RecordUsage(ctx context.Context, u model.PreferenceUsage) error {
	task := u.TaskType
	if task == "" {
		task = model.TaskConversation
	}
	at := u.At
	if at.IsZero() {
		at = time.Now()
	}
	success := boolToInt(u.Success)
	ts := formatTime(at)

	// UPDATE SET 右侧引用的是更新前的行值
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO model_preferences
			(user_id, model, usage_count, override_count, success_count, success_rate, task_usage_json, last_used_at, updated_at)
		VALUES (?, ?, 1, ?, ?, ?, json_object(?, 1), ?, ?)
		ON CONFLICT(user_id, model) DO UPDATE SET
			usage_count = usage_count + 1,
			override_count = override_count + excluded.override_count,
			success_count = success_count + excluded.success_count,
			success_rate = CAST(success_count + excluded.success_count AS REAL) / (usage_count + 1),
			task_usage_json = json_set(task_usage_json, '$.' || ?,
				COALESCE(json_extract(task_usage_json, '$.' || ?), 0) + 1),
			last_used_at = excluded.last_used_at,
			updated_at = excluded.updated_at`,
		u.UserID, u.Model, boolToInt(u.ManualOverride), success, float64(success), string(task), ts, ts,
		string(task), string(task),
	)
	return err
}

// RecordRating 原子累加评分；平均值在读取时由 rating_sum / rating_count 得出
func (r *PreferenceRepository) RecordRating(ctx context.Context, userID, modelName string, rating int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO model_preferences (user_id, model, rating_sum, rating_count, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(user_id, model) DO UPDATE SET
			rating_sum = rating_sum + excluded.rating_sum,
			rating_count = rating_count + 1,
			updated_at = excluded.updated_at`,
		userID, modelName, float64(rating), formatTime(at),
	)
	return err
}
