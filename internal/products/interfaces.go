package products

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storelane/storelane-backend/pkg/db/models"
)

// Repository defines persistence operations for the catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindVariantByID(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error)
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	DecrementVariantStock(ctx context.Context, variantID uuid.UUID, qty int) (bool, error)
}
