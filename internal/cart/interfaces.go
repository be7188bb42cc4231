package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storelane/storelane-backend/pkg/db/models"
)

// Repository defines persistence operations for visitor carts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindBySession(ctx context.Context, tenantID uuid.UUID, sessionID string) (*models.Cart, error)
	Clear(ctx context.Context, cartID uuid.UUID) error
}
