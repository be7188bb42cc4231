package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cart holds a storefront visitor's pending items, keyed by the anonymous
// session token issued to the browser.
type Cart struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	TenantID  uuid.UUID  `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:idx_carts_tenant_session"`
	SessionID string     `gorm:"column:session_id;not null;uniqueIndex:idx_carts_tenant_session"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// CartItem references live catalog rows; prices are resolved at checkout,
// not stored here.
type CartItem struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	CartID    uuid.UUID  `gorm:"column:cart_id;type:uuid;not null;index"`
	ProductID uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	Qty       int        `gorm:"column:qty;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (i *CartItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
