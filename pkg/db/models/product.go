package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storelane/storelane-backend/pkg/enums"
)

// Product is a catalog item. Stock applies when no variant is selected;
// variants track their own stock.
type Product struct {
	ID         uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TenantID   uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;index"`
	Title      string              `gorm:"column:title;not null"`
	Status     enums.ProductStatus `gorm:"column:status;not null;default:'draft'"`
	PriceCents int64               `gorm:"column:price_cents;not null"`
	Stock      int                 `gorm:"column:stock;not null;default:0"`
	Variants   []ProductVariant    `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time           `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt  gorm.DeletedAt      `gorm:"column:deleted_at;index"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// ProductVariant is a purchasable variation of a product (size, color...).
type ProductVariant struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID      `gorm:"column:product_id;type:uuid;not null;index"`
	Title      string         `gorm:"column:title;not null"`
	PriceCents int64          `gorm:"column:price_cents;not null"`
	Stock      int            `gorm:"column:stock;not null;default:0"`
	Options    JSONMap        `gorm:"column:options;serializer:json"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt  gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}

// JSONMap stores loosely structured option data (e.g. {"size":"M"}).
type JSONMap map[string]string
