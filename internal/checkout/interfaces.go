package checkout

import "context"

// Service turns a visitor cart into a durable pending order and opens the
// hosted payment flow for it.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
	InitiatePayment(ctx context.Context, input InitiateInput) (*InitiateResult, error)
}
