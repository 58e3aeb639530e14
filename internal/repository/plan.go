package repository

import (
	"context"
	"database/sql"
	"time"

	"modelgate/internal/model"
)

type PlanRepositoryInterface interface {
	GetByUserID(ctx context.Context, userID string) (*model.UserPlan, error)
	Assign(ctx context.Context, userID string, tier model.PlanTier) error
	List(ctx context.Context) ([]*model.UserPlan, error)
}

var _ PlanRepositoryInterface = (*PlanRepository)(nil)

type PlanRepository struct {
	db *sql.DB
}

func NewPlanRepository(db *sql.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// GetByUserID 未分配套餐时返回 nil, nil
func (r *PlanRepository) GetByUserID(ctx context.Context, userID string) (*model.UserPlan, error) {
	up := &model.UserPlan{}
	var tier, updatedAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, tier, updated_at FROM user_plans WHERE user_id = ?`, userID,
	).Scan(&up.UserID, &tier, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	up.Tier = model.PlanTier(tier)
	up.UpdatedAt = parseTime(updatedAt)
	return up, nil
}

func (r *PlanRepository) Assign(ctx context.Context, userID string, tier model.PlanTier) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_plans (user_id, tier, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET tier = excluded.tier, updated_at = excluded.updated_at`,
		userID, string(tier), formatTime(time.Now()),
	)
	return err
}

func (r *PlanRepository) List(ctx context.Context) ([]*model.UserPlan, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, tier, updated_at FROM user_plans ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.UserPlan
	for rows.Next() {
		up := &model.UserPlan{}
		var tier, updatedAt string
		if err := rows.Scan(&up.UserID, &tier, &updatedAt); err != nil {
			return nil, err
		}
		up.Tier = model.PlanTier(tier)
		up.UpdatedAt = parseTime(updatedAt)
		out = append(out, up)
	}
	return out, rows.Err()
}
