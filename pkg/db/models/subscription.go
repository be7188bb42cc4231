package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storelane/storelane-backend/pkg/enums"
)

// Subscription is the tenant's recurring billing state; at most one row per
// tenant, enforced by the unique index. Invariant maintained by the
// subscription service: CurrentPeriodEnd == NextBillingDate - 24h.
type Subscription struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	TenantID           uuid.UUID                `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:idx_subscriptions_tenant"`
	Status             enums.SubscriptionStatus `gorm:"column:status;not null;default:'active'"`
	CurrentPeriodStart time.Time                `gorm:"column:current_period_start;not null"`
	CurrentPeriodEnd   time.Time                `gorm:"column:current_period_end;not null"`
	NextBillingDate    time.Time                `gorm:"column:next_billing_date;not null"`
	CancelledAt        *time.Time               `gorm:"column:cancelled_at"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
