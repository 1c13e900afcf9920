package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Request is a procurement or inventory-change request moving through its approval chain.
// Status is never written on its own; it is recomputed from Steps inside the same transaction.
type Request struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	RequestNo   string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"request_no"`
	Type        RequestType     `gorm:"type:varchar(30);not null;index" json:"type"`
	RequesterID uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_requests_client_token,priority:1" json:"requester_id"`
	ClientToken *string         `gorm:"type:varchar(100);uniqueIndex:idx_requests_client_token,priority:2" json:"client_token,omitempty"`
	ItemName    string          `gorm:"type:varchar(255);not null" json:"item_name"`
	SKU         string          `gorm:"type:varchar(100);index" json:"sku,omitempty"`
	Vendor      string          `gorm:"type:varchar(255)" json:"vendor,omitempty"`
	Amount      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	Quantity    int             `gorm:"type:int;not null" json:"quantity"`
	Priority    Priority        `gorm:"type:varchar(20);not null" json:"priority"`
	Description string          `gorm:"type:text" json:"description"`
	Status      RequestStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	Steps       []ApprovalStep  `gorm:"foreignKey:RequestID" json:"steps,omitempty"`

	// CreatedNotifiedAt is set once the "new request" notices have been persisted.
	CreatedNotifiedAt *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (r *Request) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ApprovalStep is one required role's decision on a request. (RequestID, Role) is unique.
type ApprovalStep struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID  uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_steps_request_role,priority:1" json:"request_id"`
	Role       Role       `gorm:"type:varchar(30);not null;uniqueIndex:idx_steps_request_role,priority:2;index" json:"approver_role"`
	Position   int        `gorm:"type:int;not null" json:"position"`
	Decision   Decision   `gorm:"type:varchar(20);not null;index" json:"decision"`
	ApproverID *uuid.UUID `gorm:"type:uuid" json:"approver_id"`
	DecidedAt  *time.Time `json:"decided_at"`
	Comments   string     `gorm:"type:text" json:"comments"`

	// NotifiedAt is set once the dispatcher has persisted notices for this decision.
	NotifiedAt *time.Time `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (s *ApprovalStep) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
