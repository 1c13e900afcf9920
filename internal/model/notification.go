package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationKind string

const (
	NotificationRequestCreated  NotificationKind = "request_created"
	NotificationAwaitingYou     NotificationKind = "awaiting_approval"
	NotificationRequestApproved NotificationKind = "request_approved"
	NotificationRequestRejected NotificationKind = "request_rejected"
)

// Notification is immutable apart from IsRead/ReadAt.
// DedupeKey makes re-dispatch of the same transition to the same recipient a no-op.
type Notification struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID      uuid.UUID        `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Kind             NotificationKind `gorm:"type:varchar(30);not null" json:"kind"`
	Title            string           `gorm:"type:varchar(255);not null" json:"title"`
	Message          string           `gorm:"type:text;not null" json:"message"`
	RelatedRequestID *uuid.UUID       `gorm:"type:uuid;index" json:"related_request_id"`
	DedupeKey        string           `gorm:"type:varchar(200);uniqueIndex;not null" json:"-"`
	IsRead           bool             `gorm:"not null;default:false;index" json:"is_read"`
	ReadAt           *time.Time       `json:"read_at,omitempty"`
	CreatedAt        time.Time        `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
