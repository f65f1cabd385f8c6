package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ApprovalRepository interface {
	Create(ctx context.Context, approval *model.Approval) error
	FindByRequestAndLevel(ctx context.Context, requestID uuid.UUID, level int) (*model.Approval, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.Approval, error)
	Update(ctx context.Context, approval *model.Approval) error
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Create(ctx context.Context, approval *model.Approval) error {
	return GetDB(ctx, r.db).Create(approval).Error
}

func (r *approvalRepository) FindByRequestAndLevel(ctx context.Context, requestID uuid.UUID, level int) (*model.Approval, error) {
	var approval model.Approval
	err := GetDB(ctx, r.db).First(&approval, "request_id = ? AND level = ?", requestID, level).Error
	if err != nil {
		return nil, err
	}
	return &approval, nil
}

func (r *approvalRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.Approval, error) {
	var approvals []model.Approval
	err := GetDB(ctx, r.db).
		Preload("Approver").
		Where("request_id = ?", requestID).
		Order("level ASC, created_at ASC").
		Find(&approvals).Error
	return approvals, err
}

func (r *approvalRepository) Update(ctx context.Context, approval *model.Approval) error {
	return GetDB(ctx, r.db).Save(approval).Error
}
