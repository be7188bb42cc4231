package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storelane/storelane-backend/pkg/enums"
)

// Payment records one tenant-billing charge attempt. Retried charges create
// a new row; only the pending→paid/failed resolution mutates an existing one.
type Payment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TenantID      uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;index"`
	UserID        *uuid.UUID          `gorm:"column:user_id;type:uuid"`
	Type          enums.PaymentType   `gorm:"column:type;not null"`
	AmountCents   int64               `gorm:"column:amount_cents;not null"`
	Status        enums.PaymentStatus `gorm:"column:status;not null;default:'pending'"`
	TransactionID *string             `gorm:"column:transaction_id;index"`
	Metadata      JSONMap             `gorm:"column:metadata;serializer:json"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
