package checkout

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storelane/storelane-backend/internal/cart"
	"github.com/storelane/storelane-backend/internal/notifications"
	"github.com/storelane/storelane-backend/internal/orders"
	"github.com/storelane/storelane-backend/internal/products"
	"github.com/storelane/storelane-backend/internal/tenants"
	"github.com/storelane/storelane-backend/pkg/db"
	"github.com/storelane/storelane-backend/pkg/db/models"
	"github.com/storelane/storelane-backend/pkg/enums"
	pkgerrors "github.com/storelane/storelane-backend/pkg/errors"
	"github.com/storelane/storelane-backend/pkg/gateway"
	"github.com/storelane/storelane-backend/pkg/logger"
)

const orderNumberConstraint = "idx_orders_order_number"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gatewayOrders interface {
	CreateOrder(ctx context.Context, params gateway.OrderParams) (*gateway.CreatedOrder, error)
}

// ServiceParams configure the checkout service.
type ServiceParams struct {
	Orders   orders.Repository
	Carts    cart.Repository
	Products products.Repository
	Tenants  tenants.Repository
	Tx       txRunner
	Gateway  gatewayOrders
	Mailer   notifications.Mailer
	Logger   *logger.Logger
}

type service struct {
	orders   orders.Repository
	carts    cart.Repository
	products products.Repository
	tenants  tenants.Repository
	tx       txRunner
	gateway  gatewayOrders
	mailer   notifications.Mailer
	logg     *logger.Logger
	validate *validator.Validate
}

// NewService builds the checkout service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if params.Tenants == nil {
		return nil, fmt.Errorf("tenants repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		orders:   params.Orders,
		carts:    params.Carts,
		products: params.Products,
		tenants:  params.Tenants,
		tx:       params.Tx,
		gateway:  params.Gateway,
		mailer:   params.Mailer,
		logg:     params.Logger,
		validate: validator.New(),
	}, nil
}

// Checkout creates a pending order from the visitor's cart. Order, items,
// stock decrement, and cart clearing commit or roll back as one unit.
func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid checkout input").
			WithDetails(err.Error())
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		cartsRepo := s.carts.WithTx(tx)
		productsRepo := s.products.WithTx(tx)

		visitorCart, err := cartsRepo.FindBySession(ctx, input.TenantID, input.CartSessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty").
					WithDetails(map[string]any{"reason": "EMPTY_CART"})
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart")
		}
		if len(visitorCart.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty").
				WithDetails(map[string]any{"reason": "EMPTY_CART"})
		}

		lines, unavailable, err := s.resolveLines(ctx, productsRepo, visitorCart.Items)
		if err != nil {
			return err
		}
		if len(unavailable) > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "some items are unavailable").
				WithDetails(map[string]any{"reason": "ITEM_UNAVAILABLE", "items": unavailable})
		}

		var total int64
		for _, line := range lines {
			total += line.unitPriceCents * int64(line.qty)
		}

		order := &models.Order{
			TenantID:      input.TenantID,
			OrderNumber:   newOrderNumber(),
			CustomerName:  input.BuyerName,
			CustomerEmail: input.BuyerEmail,
			CustomerPhone: input.BuyerPhone,
			ShippingAddr:  input.ShippingAddr,
			TotalCents:    total,
			Status:        enums.OrderStatusPending,
			PaymentStatus: enums.OrderPaymentStatusPending,
		}
		if _, err := ordersRepo.Create(ctx, order); err != nil {
			if db.IsUniqueViolation(err, orderNumberConstraint) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order number collision").
					WithDetails(map[string]any{"retryable": true})
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating order")
		}

		items := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			items = append(items, models.OrderItem{
				OrderID:        order.ID,
				ProductID:      line.productID,
				VariantID:      line.variantID,
				Title:          line.title,
				Qty:            line.qty,
				UnitPriceCents: line.unitPriceCents,
				VariantOptions: line.options,
			})
		}
		if err := ordersRepo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating order items")
		}

		for _, line := range lines {
			if err := s.decrementStock(ctx, productsRepo, line); err != nil {
				return err
			}
		}

		if err := cartsRepo.Clear(ctx, visitorCart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing cart")
		}

		order.Items = items
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sendConfirmations(ctx, created)
	return &CheckoutResult{Order: created}, nil
}

// InitiatePayment opens the hosted payment flow for a pending order. The
// idempotency key is derived from the order id, so retries after a gateway
// failure cannot open a second payment.
func (s *service) InitiatePayment(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid initiate input").
			WithDetails(err.Error())
	}

	order, err := s.orders.FindByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	if order.TenantID != input.TenantID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.PaymentStatus != enums.OrderPaymentStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order payment already resolved")
	}

	items := make([]gateway.OrderItemParams, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, gateway.OrderItemParams{
			Title:          item.Title,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
		})
	}

	created, err := s.gateway.CreateOrder(ctx, gateway.OrderParams{
		OrderID:        order.ID.String(),
		OrderNumber:    order.OrderNumber,
		AmountCents:    order.TotalCents,
		BuyerName:      order.CustomerName,
		BuyerEmail:     order.CustomerEmail,
		BuyerPhone:     order.CustomerPhone,
		Items:          items,
		IdempotencyKey: "order-" + order.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.orders.SetGatewayOrderID(ctx, order.ID, created.GatewayOrderID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving gateway order id")
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(s.logg.WithField(ctx, "gateway_order_id", created.GatewayOrderID), "payment initiated")
	return &InitiateResult{
		GatewayOrderID: created.GatewayOrderID,
		RedirectURL:    created.RedirectURL,
	}, nil
}

type resolvedLine struct {
	productID      uuid.UUID
	variantID      *uuid.UUID
	title          string
	qty            int
	unitPriceCents int64
	options        models.JSONMap
}

func (s *service) resolveLines(ctx context.Context, repo products.Repository, items []models.CartItem) ([]resolvedLine, []UnavailableItem, error) {
	var lines []resolvedLine
	var unavailable []UnavailableItem

	for _, item := range items {
		product, err := repo.FindByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				unavailable = append(unavailable, UnavailableItem{
					ProductID: item.ProductID,
					VariantID: item.VariantID,
					Reason:    "product no longer exists",
				})
				continue
			}
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product")
		}
		if product.Status != enums.ProductStatusActive {
			unavailable = append(unavailable, UnavailableItem{
				ProductID: product.ID,
				VariantID: item.VariantID,
				Title:     product.Title,
				Reason:    "product is not active",
			})
			continue
		}

		line := resolvedLine{
			productID:      product.ID,
			title:          product.Title,
			qty:            item.Qty,
			unitPriceCents: product.PriceCents,
		}
		available := product.Stock

		if item.VariantID != nil {
			variant, err := repo.FindVariantByID(ctx, *item.VariantID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					unavailable = append(unavailable, UnavailableItem{
						ProductID: product.ID,
						VariantID: item.VariantID,
						Title:     product.Title,
						Reason:    "variant no longer exists",
					})
					continue
				}
				return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading variant")
			}
			line.variantID = &variant.ID
			line.title = product.Title + " - " + variant.Title
			line.unitPriceCents = variant.PriceCents
			line.options = variant.Options
			available = variant.Stock
		}

		if available < item.Qty {
			return nil, nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
				WithDetails(map[string]any{
					"reason":     "INSUFFICIENT_STOCK",
					"product_id": product.ID,
					"title":      line.title,
					"requested":  item.Qty,
					"available":  available,
				})
		}
		lines = append(lines, line)
	}
	return lines, unavailable, nil
}

// decrementStock prefers the variant's stock row when one was selected. The
// conditional update re-checks availability, which closes the race between
// the validation read and this write.
func (s *service) decrementStock(ctx context.Context, repo products.Repository, line resolvedLine) error {
	var (
		ok  bool
		err error
	)
	if line.variantID != nil {
		ok, err = repo.DecrementVariantStock(ctx, *line.variantID, line.qty)
	} else {
		ok, err = repo.DecrementStock(ctx, line.productID, line.qty)
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrementing stock")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
			WithDetails(map[string]any{
				"reason":     "INSUFFICIENT_STOCK",
				"product_id": line.productID,
				"title":      line.title,
				"requested":  line.qty,
			})
	}
	return nil
}

// sendConfirmations runs after the checkout transaction commits: the buyer
// gets a confirmation and the tenant owner a new-order notification. Both are
// best effort; a mail failure never unwinds the order.
func (s *service) sendConfirmations(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	buyer := notifications.Message{
		To:      order.CustomerEmail,
		Subject: fmt.Sprintf("Order %s received", order.OrderNumber),
		Body:    fmt.Sprintf("Thanks! Your order %s totaling %d cents is awaiting payment.", order.OrderNumber, order.TotalCents),
	}
	if err := s.mailer.Send(ctx, buyer); err != nil {
		s.logg.Warn(ctx, "order confirmation email failed")
	}

	tenant, err := s.tenants.FindByID(ctx, order.TenantID)
	if err != nil {
		s.logg.Warn(ctx, "loading tenant for new-order notification failed")
		return
	}
	if tenant.OwnerEmail == "" {
		return
	}
	owner := notifications.Message{
		To:      tenant.OwnerEmail,
		Subject: fmt.Sprintf("New order %s", order.OrderNumber),
		Body:    fmt.Sprintf("Order %s from %s for %d cents is awaiting payment.", order.OrderNumber, order.CustomerName, order.TotalCents),
	}
	if err := s.mailer.Send(ctx, owner); err != nil {
		s.logg.Warn(ctx, "new-order notification email failed")
	}
}

func newOrderNumber() string {
	return fmt.Sprintf("SL-%s-%04d", time.Now().UTC().Format("20060102150405"), rand.IntN(10000))
}
