package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Approval records a single approver's decision on one request at one level.
// The composite unique index guarantees at most one row per (request, level).
// A row is created lazily on the first approve/reject action for its level
// and is immutable once its status leaves pending.
type Approval struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_approvals_request_level;index" json:"request_id"`
	Level     int       `gorm:"not null;uniqueIndex:idx_approvals_request_level" json:"level"` // 1 or 2

	ApproverID uuid.UUID `gorm:"type:uuid;not null" json:"approver_id"`
	Approver   *User     `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`

	Status  string `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Comment string `gorm:"type:text" json:"comment"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Approval) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Decided reports whether the approval has been finalized.
func (a *Approval) Decided() bool {
	return a.Status != StatusPending
}
