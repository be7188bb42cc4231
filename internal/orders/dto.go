package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/storelane/storelane-backend/pkg/db/models"
	"github.com/storelane/storelane-backend/pkg/enums"
)

// OrderList is one page of orders plus the cursor for the next page.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// OrderStatusView is the buyer-facing polling surface for an order's fate.
type OrderStatusView struct {
	OrderID       uuid.UUID                `json:"order_id"`
	OrderNumber   string                   `json:"order_number"`
	Status        enums.OrderStatus        `json:"status"`
	PaymentStatus enums.OrderPaymentStatus `json:"payment_status"`
	TotalCents    int64                    `json:"total_cents"`
	CreatedAt     time.Time                `json:"created_at"`
}
