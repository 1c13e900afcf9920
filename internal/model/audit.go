package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionSubmitRequest       = "SUBMIT_REQUEST"
	ActionApproveStep         = "APPROVE_STEP"
	ActionRejectStep          = "REJECT_STEP"
	ActionCreatePurchaseOrder = "CREATE_PURCHASE_ORDER"
	ActionActivateInventory   = "ACTIVATE_INVENTORY"
	ActionDiscardInventory    = "DISCARD_INVENTORY"
)

// AuditLog tracks Who, What, and When for every workflow transition
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable gracefully if automated bot
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`        // Reference string (uuid/code)
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string     `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
