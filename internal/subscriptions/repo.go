package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storelane/storelane-backend/pkg/db/models"
	"github.com/storelane/storelane-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a subscriptions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *repository) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) Update(ctx context.Context, tenantID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("tenant_id = ?", tenantID).
		Updates(updates).Error
}

// FindExpiredCancelled returns cancelled subscriptions whose paid-for period
// has lapsed; the expiry sweep deactivates their tenants.
func (r *repository) FindExpiredCancelled(ctx context.Context) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND current_period_end < ?", enums.SubscriptionStatusCancelled, time.Now().UTC()).
		Order("current_period_end ASC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
