package payments

import "github.com/google/uuid"

// ReconcileResult states what a callback or poll did to the internal record.
type ReconcileResult string

const (
	// ReconcileResultFinalized means the pending record transitioned to paid.
	ReconcileResultFinalized ReconcileResult = "finalized"
	// ReconcileResultFailed means the pending record transitioned to failed.
	ReconcileResultFailed ReconcileResult = "failed"
	// ReconcileResultAlreadyResolved means a concurrent or earlier delivery won.
	ReconcileResultAlreadyResolved ReconcileResult = "already_resolved"
	// ReconcileResultIgnored means the event was recognized but required no action.
	ReconcileResultIgnored ReconcileResult = "ignored"
	// ReconcileResultUnrecognized means no internal record matches the event.
	ReconcileResultUnrecognized ReconcileResult = "unrecognized"
)

// ReconcileOutcome reports what reconciliation decided.
type ReconcileOutcome struct {
	Result         ReconcileResult `json:"result"`
	GatewayOrderID string          `json:"gateway_order_id,omitempty"`
	OrderID        *uuid.UUID      `json:"order_id,omitempty"`
	PaymentID      *uuid.UUID      `json:"payment_id,omitempty"`
	Verified       bool            `json:"verified"`
}

// RefundInput asks for a full or partial refund of a paid order.
type RefundInput struct {
	TenantID    uuid.UUID `validate:"required"`
	OrderID     uuid.UUID `validate:"required"`
	AmountCents *int64    `validate:"omitempty,gt=0"`
}

// RefundOutcome confirms a processed refund.
type RefundOutcome struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}
