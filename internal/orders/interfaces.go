package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storelane/storelane-backend/pkg/db/models"
	"github.com/storelane/storelane-backend/pkg/enums"
	"github.com/storelane/storelane-backend/pkg/pagination"
)

// Repository defines persistence operations for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByNumber(ctx context.Context, tenantID uuid.UUID, orderNumber string) (*models.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	SetGatewayOrderID(ctx context.Context, orderID uuid.UUID, gatewayOrderID string) error
	ResolvePayment(ctx context.Context, orderID uuid.UUID, to enums.OrderPaymentStatus, status enums.OrderStatus) (bool, error)
	MarkRefunded(ctx context.Context, orderID uuid.UUID) (bool, error)
	List(ctx context.Context, tenantID uuid.UUID, params pagination.Params) (*OrderList, error)
}

// Service exposes buyer- and owner-facing order reads.
type Service interface {
	GetStatus(ctx context.Context, tenantID uuid.UUID, orderNumber string) (*OrderStatusView, error)
	List(ctx context.Context, tenantID uuid.UUID, params pagination.Params) (*OrderList, error)
}
