package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Request status enum constants. Transitions only ever leave pending;
// approved and rejected are terminal.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// PurchaseRequest is a staff purchase request moving through the two-level
// approval workflow. Documents (proforma, generated PO, receipt) are stored
// on disk and referenced by relative path, namespaced by request id.
type PurchaseRequest struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string          `gorm:"type:varchar(200);not null" json:"title"`
	Description string          `gorm:"type:text" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Status      string          `gorm:"type:varchar(20);not null;default:'pending';index:idx_requests_status_created" json:"status"`

	CreatedBy uuid.UUID `gorm:"type:uuid;not null;index" json:"created_by"`
	Creator   *User     `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`

	// File references, relative to the upload root
	ProformaFile      string `gorm:"type:varchar(500)" json:"proforma_file"`
	PurchaseOrderFile string `gorm:"type:varchar(500)" json:"purchase_order_file"`
	ReceiptFile       string `gorm:"type:varchar(500)" json:"receipt_file"`

	Items             []RequestItem      `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"items"`
	Approvals         []Approval         `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"approvals"`
	ReceiptValidation *ReceiptValidation `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"receipt_validation,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_requests_status_created" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *PurchaseRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// CanBeEdited reports whether the request is still open for changes.
func (r *PurchaseRequest) CanBeEdited() bool {
	return r.Status == StatusPending
}

// CanBeActedOn reports whether approvers may still approve or reject.
func (r *PurchaseRequest) CanBeActedOn() bool {
	return r.Status == StatusPending
}

// ApprovalByLevel returns the approval row for the given level, if present.
func (r *PurchaseRequest) ApprovalByLevel(level int) *Approval {
	for i := range r.Approvals {
		if r.Approvals[i].Level == level {
			return &r.Approvals[i]
		}
	}
	return nil
}

// RequestItem is a single line of a purchase request. Total is always
// quantity x price and is recomputed on every write.
type RequestItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID uuid.UUID       `gorm:"type:uuid;not null;index" json:"request_id"`
	ItemName  string          `gorm:"type:varchar(200);not null" json:"item_name"`
	Quantity  int             `gorm:"not null;default:1" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Total     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total"`
	CreatedAt time.Time       `json:"created_at"`
}

func (i *RequestItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// BeforeSave keeps the line total consistent with quantity and price.
func (i *RequestItem) BeforeSave(tx *gorm.DB) error {
	i.Total = i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
	return nil
}
