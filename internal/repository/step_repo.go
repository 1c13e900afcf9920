package repository

import (
	"context"
	"time"

	"procurement/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StepRepository interface {
	CreateBatch(ctx context.Context, steps []model.ApprovalStep) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.ApprovalStep, error)
	// RecordDecision writes the decision only while the step is still pending.
	// It reports false when another writer already decided the step.
	RecordDecision(ctx context.Context, step *model.ApprovalStep) (bool, error)
	MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) error
	ListDecidedUnnotified(ctx context.Context, limit int) ([]model.ApprovalStep, error)
}

type stepRepository struct {
	db *gorm.DB
}

func NewStepRepository(db *gorm.DB) StepRepository {
	return &stepRepository{db: db}
}

func (r *stepRepository) CreateBatch(ctx context.Context, steps []model.ApprovalStep) error {
	return GetDB(ctx, r.db).Create(&steps).Error
}

func (r *stepRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.ApprovalStep, error) {
	var steps []model.ApprovalStep
	if err := GetDB(ctx, r.db).
		Where("request_id = ?", requestID).
		Order("position ASC").
		Find(&steps).Error; err != nil {
		return nil, err
	}
	return steps, nil
}

func (r *stepRepository) RecordDecision(ctx context.Context, step *model.ApprovalStep) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.ApprovalStep{}).
		Where("id = ? AND decision = ?", step.ID, model.DecisionPending).
		Updates(map[string]interface{}{
			"decision":    step.Decision,
			"approver_id": step.ApproverID,
			"decided_at":  step.DecidedAt,
			"comments":    step.Comments,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *stepRepository) MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	return GetDB(ctx, r.db).Model(&model.ApprovalStep{}).
		Where("id = ? AND notified_at IS NULL", id).
		UpdateColumn("notified_at", at).Error
}

func (r *stepRepository) ListDecidedUnnotified(ctx context.Context, limit int) ([]model.ApprovalStep, error) {
	var steps []model.ApprovalStep
	if err := GetDB(ctx, r.db).
		Where("decision <> ? AND notified_at IS NULL", model.DecisionPending).
		Order("decided_at ASC").
		Limit(limit).
		Find(&steps).Error; err != nil {
		return nil, err
	}
	return steps, nil
}
