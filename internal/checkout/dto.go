package checkout

import (
	"github.com/google/uuid"

	"github.com/storelane/storelane-backend/pkg/db/models"
)

// CheckoutInput is everything a storefront submits to place an order.
type CheckoutInput struct {
	TenantID      uuid.UUID `validate:"required"`
	CartSessionID string    `validate:"required"`
	BuyerName     string    `validate:"required,max=200"`
	BuyerEmail    string    `validate:"required,email"`
	BuyerPhone    string    `validate:"omitempty,max=32"`
	ShippingAddr  string    `validate:"omitempty,max=500"`
}

// CheckoutResult is the durable order created by a successful checkout.
type CheckoutResult struct {
	Order *models.Order `json:"order"`
}

// InitiateInput asks the gateway to open payment for an existing pending
// order. Retrying after a gateway failure is safe; the order stays pending.
type InitiateInput struct {
	TenantID uuid.UUID `validate:"required"`
	OrderID  uuid.UUID `validate:"required"`
}

// InitiateResult carries the redirect the buyer must follow.
type InitiateResult struct {
	GatewayOrderID string `json:"gateway_order_id"`
	RedirectURL    string `json:"redirect_url"`
}

// UnavailableItem names a cart line that can no longer be purchased.
type UnavailableItem struct {
	ProductID uuid.UUID  `json:"product_id"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Title     string     `json:"title,omitempty"`
	Reason    string     `json:"reason"`
}
