package gateway

import "time"

// OrderParams carries everything needed to open a hosted-payment order with
// the provider. Amounts are cents; the wire format wants decimal strings.
type OrderParams struct {
	OrderID        string
	OrderNumber    string
	AmountCents    int64
	Currency       string
	BuyerName      string
	BuyerEmail     string
	BuyerPhone     string
	Items          []OrderItemParams
	IdempotencyKey string
}

// OrderItemParams is one basket line on the gateway order.
type OrderItemParams struct {
	Title          string
	Qty            int
	UnitPriceCents int64
}

// CreatedOrder is the provider's handle for a newly opened order.
type CreatedOrder struct {
	GatewayOrderID string `json:"orderId"`
	RedirectURL    string `json:"redirectUrl"`
}

// PaymentDetails is the provider's receipt for an order, fetched via the
// polling fallback when no callback has arrived.
type PaymentDetails struct {
	GatewayOrderID string     `json:"orderId"`
	Status         string     `json:"status"`
	ResultCode     string     `json:"resultCode"`
	Amount         string     `json:"amount"`
	Currency       string     `json:"currency"`
	PaidAt         *time.Time `json:"paidAt"`
}

// ParsedCallback is the distilled view of an inbound webhook body.
type ParsedCallback struct {
	GatewayOrderID string
	EventID        string
	Status         string
	ResultCode     string
}

// RefundReceipt confirms a processed refund.
type RefundReceipt struct {
	RefundID string `json:"refundId"`
	Status   string `json:"status"`
	Amount   string `json:"amount"`
}

// ChargeParams describes a merchant-initiated recurring charge against the
// payment method stored with the provider.
type ChargeParams struct {
	ReferenceID    string
	StoredTokenRef string
	AmountCents    int64
	Currency       string
	Description    string
}

// ChargeResult is the provider's response to a recurring charge.
type ChargeResult struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	ResultCode    string `json:"resultCode"`
}
