package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestFilter narrows request listings. A nil CreatedBy means no owner
// scope (approver/finance visibility).
type RequestFilter struct {
	Status    string
	Search    string // matches title or description
	CreatedBy *uuid.UUID
	Offset    int
	Limit     int
}

type RequestRepository interface {
	Create(ctx context.Context, req *model.PurchaseRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error)
	List(ctx context.Context, filter RequestFilter) ([]model.PurchaseRequest, int64, error)
	ListReviewed(ctx context.Context, approverID *uuid.UUID, offset, limit int) ([]model.PurchaseRequest, int64, error)
	Update(ctx context.Context, req *model.PurchaseRequest) error
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	Delete(ctx context.Context, id uuid.UUID) error
	ReplaceItems(ctx context.Context, requestID uuid.UUID, items []model.RequestItem) error
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *model.PurchaseRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	var req model.PurchaseRequest
	if err := GetDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// lockForUpdate adds a row lock on dialects that support it. sqlite has a
// single writer, which already serializes concurrent transactions.
func lockForUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// FindByIDForUpdate reads the request row with a FOR UPDATE lock so that
// concurrent decisions on the same request serialize within their
// transactions.
func (r *requestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	var req model.PurchaseRequest
	if err := lockForUpdate(GetDB(ctx, r.db)).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	var req model.PurchaseRequest
	err := GetDB(ctx, r.db).
		Preload("Creator").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Approvals", func(db *gorm.DB) *gorm.DB { return db.Order("level ASC, created_at ASC") }).
		Preload("Approvals.Approver").
		Preload("ReceiptValidation").
		First(&req, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter) ([]model.PurchaseRequest, int64, error) {
	db := GetDB(ctx, r.db)

	base := func() *gorm.DB {
		q := db.Model(&model.PurchaseRequest{})
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.CreatedBy != nil {
			q = q.Where("created_by = ?", *filter.CreatedBy)
		}
		if filter.Search != "" {
			like := "%" + filter.Search + "%"
			q = q.Where("title LIKE ? OR description LIKE ?", like, like)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var requests []model.PurchaseRequest
	err := base().
		Preload("Creator").
		Preload("Items").
		Preload("Approvals").
		Order("created_at DESC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&requests).Error
	if err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

// ListReviewed returns finalized requests, optionally scoped to those the
// given approver personally decided on.
func (r *requestRepository) ListReviewed(ctx context.Context, approverID *uuid.UUID, offset, limit int) ([]model.PurchaseRequest, int64, error) {
	db := GetDB(ctx, r.db)

	base := func() *gorm.DB {
		q := db.Model(&model.PurchaseRequest{}).
			Where("purchase_requests.status IN ?", []string{model.StatusApproved, model.StatusRejected})
		if approverID != nil {
			q = q.Joins("JOIN approvals ON approvals.request_id = purchase_requests.id").
				Where("approvals.approver_id = ?", *approverID)
		}
		return q
	}

	var total int64
	if err := base().Distinct("purchase_requests.id").Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var requests []model.PurchaseRequest
	err := base().
		Distinct("purchase_requests.*").
		Preload("Creator").
		Preload("Items").
		Preload("Approvals").
		Order("purchase_requests.created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&requests).Error
	if err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func (r *requestRepository) Update(ctx context.Context, req *model.PurchaseRequest) error {
	return GetDB(ctx, r.db).Save(req).Error
}

func (r *requestRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return GetDB(ctx, r.db).Model(&model.PurchaseRequest{}).Where("id = ?", id).Updates(fields).Error
}

func (r *requestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Select("Items", "Approvals", "ReceiptValidation").Delete(&model.PurchaseRequest{ID: id}).Error
}

// ReplaceItems swaps the request's line items wholesale. Request edits never
// patch individual lines.
func (r *requestRepository) ReplaceItems(ctx context.Context, requestID uuid.UUID, items []model.RequestItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("request_id = ?", requestID).Delete(&model.RequestItem{}).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].RequestID = requestID
		if err := db.Create(&items[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
