package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InventoryStatus string

const (
	// InventoryPending is a placeholder row awaiting approval; its quantity stays 0.
	InventoryPending   InventoryStatus = "pending"
	InventoryActive    InventoryStatus = "active"
	InventoryDiscarded InventoryStatus = "discarded"
)

// InventoryItem represents a stock-keeping unit
type InventoryItem struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SKU              string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"sku"`
	Name             string          `gorm:"type:varchar(255);not null" json:"name"`
	Quantity         int             `gorm:"type:int;default:0;not null" json:"quantity"`
	Status           InventoryStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	PendingRequestID *uuid.UUID      `gorm:"type:uuid;index" json:"pending_request_id"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (i *InventoryItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// TransactionType Enum Simulation
const (
	TxTypeIn  = "IN"
	TxTypeOut = "OUT"
)

// InventoryTransaction records every stock change applied by an approved request
type InventoryTransaction struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	InventoryItemID uuid.UUID  `gorm:"type:uuid;not null;index" json:"inventory_item_id"`
	RequestID       *uuid.UUID `gorm:"type:uuid;index" json:"request_id"`                 // Nullable in case of manual adjustments
	TransactionType string     `gorm:"type:varchar(10);not null" json:"transaction_type"` // IN, OUT
	QuantityChanged int        `gorm:"type:int;not null" json:"quantity_changed"`
	StockAfter      int        `gorm:"type:int;not null" json:"stock_after"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (t *InventoryTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
