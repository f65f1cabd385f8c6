package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReceiptValidation stores the outcome of reconciling a submitted receipt
// against the request's purchase order. At most one record exists per
// request; re-validation overwrites the previous result.
type ReceiptValidation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"request_id"`

	IsValid            bool             `gorm:"not null;default:false" json:"is_valid"`
	DiscrepancyAmount  *decimal.Decimal `gorm:"type:decimal(10,2)" json:"discrepancy_amount"`
	DiscrepancyDetails string           `gorm:"type:jsonb" json:"discrepancy_details"` // Serialized report: amount_match, items_match, missing/extra items

	ValidatedBy *uuid.UUID `gorm:"type:uuid" json:"validated_by"`
	Validator   *User      `gorm:"foreignKey:ValidatedBy" json:"validator,omitempty"`
	ValidatedAt time.Time  `gorm:"autoUpdateTime" json:"validated_at"`
}

func (v *ReceiptValidation) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
