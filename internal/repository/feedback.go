package repository

import (
	"context"
	"database/sql"
	"time"

	"modelgate/internal/model"

	"github.com/google/uuid"
)

type FeedbackRepositoryInterface interface {
	Create(ctx context.Context, fb *model.Feedback) error
	ListByUserModel(ctx context.Context, userID, modelName string, limit int) ([]*model.Feedback, error)
}

var _ FeedbackRepositoryInterface = (*FeedbackRepository)(nil)

type FeedbackRepository struct {
	db *sql.DB
}

func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Create 追加一条不可变的反馈记录
func (r *FeedbackRepository) Create(ctx context.Context, fb *model.Feedback) error {
	fb.ID = uuid.New().String()
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO model_feedback (id, user_id, model, rating, task_type, comment, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.UserID, fb.Model, fb.Rating, string(fb.TaskType), fb.Comment, formatTime(fb.CreatedAt),
	)
	return err
}

func (r *FeedbackRepository) ListByUserModel(ctx context.Context, userID, modelName string, limit int) ([]*model.Feedback, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, model, rating, task_type, comment, created_at FROM model_feedback
		 WHERE user_id = ? AND model = ? ORDER BY created_at DESC LIMIT ?`,
		userID, modelName, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Feedback
	for rows.Next() {
		fb := &model.Feedback{}
		var task, createdAt string
		if err := rows.Scan(&fb.ID, &fb.UserID, &fb.Model, &fb.Rating, &task, &fb.Comment, &createdAt); err != nil {
			return nil, err
		}
		fb.TaskType = model.TaskType(task)
		fb.CreatedAt = parseTime(createdAt)
		out = append(out, fb)
	}
	return out, rows.Err()
}
