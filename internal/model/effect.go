package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type EffectType string

const (
	EffectPurchaseOrder       EffectType = "purchase_order"
	EffectInventoryActivation EffectType = "inventory_activation"
)

// DownstreamEffect records that a request's side effect has happened.
// Its existence is the only authority for that fact; (RequestID, EffectType) is unique.
type DownstreamEffect struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_effects_request_type,priority:1" json:"request_id"`
	EffectType     EffectType `gorm:"type:varchar(30);not null;uniqueIndex:idx_effects_request_type,priority:2" json:"effect_type"`
	IdempotencyKey string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"idempotency_key"`
	ResourceID     uuid.UUID  `gorm:"type:uuid;not null" json:"resource_id"`
	ExecutedAt     time.Time  `gorm:"not null" json:"executed_at"`
}

func (e *DownstreamEffect) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// IdempotencyKey is the key under which the effect of the given type for a request is recorded.
func IdempotencyKey(requestID uuid.UUID, effectType EffectType) string {
	return requestID.String() + ":" + string(effectType)
}

type PurchaseOrderStatus string

const (
	PurchaseOrderPendingProcurement PurchaseOrderStatus = "pending_procurement"
	PurchaseOrderOrdered            PurchaseOrderStatus = "ordered"
	PurchaseOrderReceived           PurchaseOrderStatus = "received"
	PurchaseOrderCancelled          PurchaseOrderStatus = "cancelled"
)

// PurchaseOrder is created exactly once when a purchase request is fully approved.
type PurchaseOrder struct {
	ID          uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNo     string              `gorm:"type:varchar(30);uniqueIndex;not null" json:"order_no"`
	RequestID   uuid.UUID           `gorm:"type:uuid;uniqueIndex;not null" json:"request_id"`
	RequesterID uuid.UUID           `gorm:"type:uuid;not null;index" json:"requester_id"`
	ItemName    string              `gorm:"type:varchar(255);not null" json:"item_name"`
	Vendor      string              `gorm:"type:varchar(255)" json:"vendor"`
	Quantity    int                 `gorm:"type:int;not null" json:"quantity"`
	Amount      decimal.Decimal     `gorm:"type:decimal(14,2);not null" json:"amount"`
	Status      PurchaseOrderStatus `gorm:"type:varchar(30);not null;index" json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func (o *PurchaseOrder) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
