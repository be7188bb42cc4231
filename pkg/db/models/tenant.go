package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant is a storefront owner. IsActive gates whether the storefront is
// allowed to serve traffic; it is flipped only by the payment reconciler,
// the subscription service, and the expiry sweeper.
type Tenant struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name       string    `gorm:"column:name;not null"`
	Subdomain  string    `gorm:"column:subdomain;not null;uniqueIndex"`
	OwnerEmail string    `gorm:"column:owner_email;not null"`
	IsActive   bool      `gorm:"column:is_active;not null;default:false"`
	// BillingTokenRef is the provider-side handle for the tenant's stored
	// payment method, used for merchant-initiated recurring charges.
	BillingTokenRef string    `gorm:"column:billing_token_ref"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *Tenant) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
