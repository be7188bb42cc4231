package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storelane/storelane-backend/pkg/db/models"
	"github.com/storelane/storelane-backend/pkg/enums"
)

// Repository defines persistence operations for tenant-billing payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	HasPendingSetupFee(ctx context.Context, tenantID uuid.UUID) (bool, error)
	Resolve(ctx context.Context, id uuid.UUID, to enums.PaymentStatus) (bool, error)
	SetTransactionID(ctx context.Context, id uuid.UUID, transactionID string) error
}

// Reconciler decides the fate of pending orders and billing payments from
// gateway callbacks and polling results.
type Reconciler interface {
	ProcessCallback(ctx context.Context, rawBody []byte, signatureHeader string) (*ReconcileOutcome, error)
	ReconcileByPoll(ctx context.Context, gatewayOrderID string) (*ReconcileOutcome, error)
	Refund(ctx context.Context, input RefundInput) (*RefundOutcome, error)
}
