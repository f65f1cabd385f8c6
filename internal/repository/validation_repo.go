package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ValidationRepository interface {
	Upsert(ctx context.Context, validation *model.ReceiptValidation) error
	FindByRequest(ctx context.Context, requestID uuid.UUID) (*model.ReceiptValidation, error)
}

type validationRepository struct {
	db *gorm.DB
}

func NewValidationRepository(db *gorm.DB) ValidationRepository {
	return &validationRepository{db: db}
}

// Upsert writes the validation record, overwriting any previous result for
// the same request.
func (r *validationRepository) Upsert(ctx context.Context, validation *model.ReceiptValidation) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "request_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_valid", "discrepancy_amount", "discrepancy_details", "validated_by", "validated_at",
		}),
	}).Create(validation).Error
}

func (r *validationRepository) FindByRequest(ctx context.Context, requestID uuid.UUID) (*model.ReceiptValidation, error) {
	var validation model.ReceiptValidation
	err := GetDB(ctx, r.db).Preload("Validator").First(&validation, "request_id = ?", requestID).Error
	if err != nil {
		return nil, err
	}
	return &validation, nil
}
