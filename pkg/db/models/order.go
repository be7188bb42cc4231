package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storelane/storelane-backend/pkg/enums"
)

// Order is one checkout attempt. PaymentStatus transitions only
// pending→paid or pending→failed, applied by the payment reconciler with
// compare-and-set updates; fulfillment Status never touches PaymentStatus.
type Order struct {
	ID             uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	TenantID       uuid.UUID                `gorm:"column:tenant_id;type:uuid;not null;index"`
	OrderNumber    string                   `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerName   string                   `gorm:"column:customer_name;not null"`
	CustomerEmail  string                   `gorm:"column:customer_email;not null"`
	CustomerPhone  string                   `gorm:"column:customer_phone"`
	ShippingAddr   string                   `gorm:"column:shipping_addr"`
	TotalCents     int64                    `gorm:"column:total_cents;not null"`
	Status         enums.OrderStatus        `gorm:"column:status;not null;default:'pending'"`
	PaymentStatus  enums.OrderPaymentStatus `gorm:"column:payment_status;not null;default:'pending'"`
	GatewayOrderID *string                  `gorm:"column:gateway_order_id;index"`
	Items          []OrderItem              `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderItem is an immutable snapshot of a purchased line. The catalog row
// may change or disappear later; this record keeps what was sold.
type OrderItem struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID      *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	Title          string     `gorm:"column:title;not null"`
	Qty            int        `gorm:"column:qty;not null"`
	UnitPriceCents int64      `gorm:"column:unit_price_cents;not null"`
	VariantOptions JSONMap    `gorm:"column:variant_options;serializer:json"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
