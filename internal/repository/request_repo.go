package repository

import (
	"context"
	"time"

	"procurement/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RequestRepository interface {
	Create(ctx context.Context, req *model.Request) error
	NextRequestNo(ctx context.Context, reqType model.RequestType) (string, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Request, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Request, error)
	FindByIDWithSteps(ctx context.Context, id uuid.UUID) (*model.Request, error)
	FindByClientToken(ctx context.Context, requesterID uuid.UUID, token string) (*model.Request, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID, page, limit int) ([]model.Request, int64, error)
	ListPendingForRole(ctx context.Context, role model.Role, excludeRequester *uuid.UUID, page, limit int) ([]model.Request, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.RequestStatus) error
	MarkCreatedNotified(ctx context.Context, id uuid.UUID, at time.Time) error
	ListCreatedUnnotified(ctx context.Context, limit int) ([]model.Request, error)
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *model.Request) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Create(req).Error
}

func (r *requestRepository) NextRequestNo(ctx context.Context, reqType model.RequestType) (string, error) {
	return nextNumber(ctx, r.db, "requests", "request_no", reqType.NumberPrefix())
}

func (r *requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	var req model.Request
	if err := GetDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	var req model.Request
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) FindByIDWithSteps(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	var req model.Request
	if err := GetDB(ctx, r.db).Preload("Steps", orderSteps).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) FindByClientToken(ctx context.Context, requesterID uuid.UUID, token string) (*model.Request, error) {
	var req model.Request
	if err := GetDB(ctx, r.db).
		Where("requester_id = ? AND client_token = ?", requesterID, token).
		First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) ListByRequester(ctx context.Context, requesterID uuid.UUID, page, limit int) ([]model.Request, int64, error) {
	var requests []model.Request
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.Request{}).Where("requester_id = ?", requesterID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Steps", orderSteps).
		Where("requester_id = ?", requesterID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

// ListPendingForRole returns pending requests whose step for role is undecided and every
// earlier-positioned step is already approved.
func (r *requestRepository) ListPendingForRole(ctx context.Context, role model.Role, excludeRequester *uuid.UUID, page, limit int) ([]model.Request, int64, error) {
	var requests []model.Request
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(tx *gorm.DB) *gorm.DB {
		tx = tx.
			Joins("JOIN approval_steps s ON s.request_id = requests.id AND s.role = ? AND s.decision = ?", role, model.DecisionPending).
			Where("requests.status = ?", model.RequestPending).
			Where("NOT EXISTS (SELECT 1 FROM approval_steps e WHERE e.request_id = requests.id AND e.position < s.position AND e.decision <> ?)", model.DecisionApproved)
		if excludeRequester != nil {
			tx = tx.Where("requests.requester_id <> ?", *excludeRequester)
		}
		return tx
	}

	if err := db.Model(&model.Request{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Scopes(scope).
		Preload("Steps", orderSteps).
		Order("requests.created_at ASC").
		Offset(offset).Limit(limit).
		Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func (r *requestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.RequestStatus) error {
	return GetDB(ctx, r.db).Model(&model.Request{}).Where("id = ?", id).Update("status", status).Error
}

func (r *requestRepository) MarkCreatedNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	return GetDB(ctx, r.db).Model(&model.Request{}).
		Where("id = ? AND created_notified_at IS NULL", id).
		UpdateColumn("created_notified_at", at).Error
}

func (r *requestRepository) ListCreatedUnnotified(ctx context.Context, limit int) ([]model.Request, error) {
	var requests []model.Request
	if err := GetDB(ctx, r.db).
		Where("created_notified_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func orderSteps(db *gorm.DB) *gorm.DB {
	return db.Order("approval_steps.position ASC")
}
