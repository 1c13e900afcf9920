package repository

import (
	"context"

	"procurement/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EffectRepository interface {
	FindByKey(ctx context.Context, requestID uuid.UUID, effectType model.EffectType) (*model.DownstreamEffect, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.DownstreamEffect, error)
	// Create inserts the effect row unless one already exists for (request_id, effect_type).
	Create(ctx context.Context, effect *model.DownstreamEffect) (bool, error)
}

type effectRepository struct {
	db *gorm.DB
}

func NewEffectRepository(db *gorm.DB) EffectRepository {
	return &effectRepository{db: db}
}

func (r *effectRepository) FindByKey(ctx context.Context, requestID uuid.UUID, effectType model.EffectType) (*model.DownstreamEffect, error) {
	var effect model.DownstreamEffect
	if err := GetDB(ctx, r.db).
		Where("request_id = ? AND effect_type = ?", requestID, effectType).
		First(&effect).Error; err != nil {
		return nil, err
	}
	return &effect, nil
}

func (r *effectRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.DownstreamEffect, error) {
	var effects []model.DownstreamEffect
	if err := GetDB(ctx, r.db).Where("request_id = ?", requestID).Find(&effects).Error; err != nil {
		return nil, err
	}
	return effects, nil
}

func (r *effectRepository) Create(ctx context.Context, effect *model.DownstreamEffect) (bool, error) {
	res := GetDB(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(effect)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
