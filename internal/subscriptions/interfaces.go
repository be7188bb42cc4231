package subscriptions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storelane/storelane-backend/pkg/db/models"
)

// Repository defines persistence operations for subscriptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sub *models.Subscription) (*models.Subscription, error)
	FindByTenant(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
	Update(ctx context.Context, tenantID uuid.UUID, updates map[string]any) error
	FindExpiredCancelled(ctx context.Context) ([]models.Subscription, error)
}

// Service drives the subscription lifecycle for tenant billing.
type Service interface {
	Create(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
	Renew(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
	Cancel(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
	Reactivate(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
	Get(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
	Entitled(ctx context.Context, tenantID uuid.UUID) (bool, error)
}
