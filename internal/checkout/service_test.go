package checkout

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/storelane/storelane-backend/internal/cart"
	"github.com/storelane/storelane-backend/internal/notifications"
	"github.com/storelane/storelane-backend/internal/orders"
	"github.com/storelane/storelane-backend/internal/products"
	"github.com/storelane/storelane-backend/internal/tenants"
	"github.com/storelane/storelane-backend/pkg/db/models"
	"github.com/storelane/storelane-backend/pkg/enums"
	pkgerrors "github.com/storelane/storelane-backend/pkg/errors"
	"github.com/storelane/storelane-backend/pkg/gateway"
	"github.com/storelane/storelane-backend/pkg/logger"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubGateway struct {
	created []gateway.OrderParams
	err     error
}

func (g *stubGateway) CreateOrder(_ context.Context, params gateway.OrderParams) (*gateway.CreatedOrder, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.created = append(g.created, params)
	return &gateway.CreatedOrder{GatewayOrderID: "gw-" + params.OrderNumber, RedirectURL: "https://pay.example/redirect"}, nil
}

type recordingMailer struct {
	sent []notifications.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg notifications.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type checkoutFixture struct {
	db      *gorm.DB
	svc     Service
	gateway *stubGateway
	mailer  *recordingMailer
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Tenant{},
		&models.Product{},
		&models.ProductVariant{},
		&models.Cart{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
	))

	gw := &stubGateway{}
	mailer := &recordingMailer{}
	svc, err := NewService(ServiceParams{
		Orders:   orders.NewRepository(db),
		Carts:    cart.NewRepository(db),
		Products: products.NewRepository(db),
		Tenants:  tenants.NewRepository(db),
		Tx:       testTxRunner{db: db},
		Gateway:  gw,
		Mailer:   mailer,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)

	return &checkoutFixture{db: db, svc: svc, gateway: gw, mailer: mailer}
}

func (f *checkoutFixture) seedTenant(t *testing.T, ownerEmail string) *models.Tenant {
	t.Helper()

	tenant := &models.Tenant{
		Name:       "Lane & Co",
		Subdomain:  "lane-" + uuid.NewString()[:8],
		OwnerEmail: ownerEmail,
		IsActive:   true,
	}
	require.NoError(t, f.db.Create(tenant).Error)
	return tenant
}

func (f *checkoutFixture) seedProduct(t *testing.T, tenantID uuid.UUID, stock int, priceCents int64) *models.Product {
	t.Helper()

	product := &models.Product{
		TenantID:   tenantID,
		Title:      "Canvas Tote",
		Status:     enums.ProductStatusActive,
		PriceCents: priceCents,
		Stock:      stock,
	}
	require.NoError(t, f.db.Create(product).Error)
	return product
}

func (f *checkoutFixture) seedVariant(t *testing.T, productID uuid.UUID, stock int, priceCents int64) *models.ProductVariant {
	t.Helper()

	variant := &models.ProductVariant{
		ProductID:  productID,
		Title:      "Large",
		PriceCents: priceCents,
		Stock:      stock,
		Options:    models.JSONMap{"size": "L"},
	}
	require.NoError(t, f.db.Create(variant).Error)
	return variant
}

func (f *checkoutFixture) seedCart(t *testing.T, tenantID uuid.UUID, sessionID string, items ...models.CartItem) *models.Cart {
	t.Helper()

	visitorCart := &models.Cart{TenantID: tenantID, SessionID: sessionID}
	require.NoError(t, f.db.Create(visitorCart).Error)
	for i := range items {
		items[i].CartID = visitorCart.ID
		require.NoError(t, f.db.Create(&items[i]).Error)
	}
	return visitorCart
}

func validInput(tenantID uuid.UUID, session string) CheckoutInput {
	return CheckoutInput{
		TenantID:      tenantID,
		CartSessionID: session,
		BuyerName:     "Dana Buyer",
		BuyerEmail:    "dana@example.com",
		ShippingAddr:  "1 Main St",
	}
}

func TestCheckoutCreatesOrderAtomically(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	tenantID := f.seedTenant(t, "owner@example.com").ID

	product := f.seedProduct(t, tenantID, 5, 2500)
	variant := f.seedVariant(t, product.ID, 3, 2900)
	f.seedCart(t, tenantID, "sess-1",
		models.CartItem{ProductID: product.ID, Qty: 2},
		models.CartItem{ProductID: product.ID, VariantID: &variant.ID, Qty: 1},
	)

	result, err := f.svc.Checkout(ctx, validInput(tenantID, "sess-1"))
	require.NoError(t, err)
	require.NotNil(t, result.Order)

	order := result.Order
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.OrderPaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, int64(2*2500+2900), order.TotalCents)
	assert.NotEmpty(t, order.OrderNumber)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "Canvas Tote - Large", order.Items[1].Title)
	assert.Equal(t, models.JSONMap{"size": "L"}, order.Items[1].VariantOptions)

	var reloadedProduct models.Product
	require.NoError(t, f.db.First(&reloadedProduct, "id = ?", product.ID).Error)
	assert.Equal(t, 3, reloadedProduct.Stock)

	var reloadedVariant models.ProductVariant
	require.NoError(t, f.db.First(&reloadedVariant, "id = ?", variant.ID).Error)
	assert.Equal(t, 2, reloadedVariant.Stock)

	var remaining int64
	require.NoError(t, f.db.Model(&models.CartItem{}).Count(&remaining).Error)
	assert.Zero(t, remaining, "cart must be cleared on success")

	// Buyer confirmation plus the tenant owner's new-order notification.
	require.Len(t, f.mailer.sent, 2)
	assert.Equal(t, "dana@example.com", f.mailer.sent[0].To)
	assert.Equal(t, "owner@example.com", f.mailer.sent[1].To)
	assert.Contains(t, f.mailer.sent[1].Subject, order.OrderNumber)
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	tenantID := uuid.New()

	// No cart at all for this session.
	_, err := f.svc.Checkout(ctx, validInput(tenantID, "sess-missing"))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	// Cart exists but holds nothing.
	f.seedCart(t, tenantID, "sess-empty")
	_, err = f.svc.Checkout(ctx, validInput(tenantID, "sess-empty"))
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestCheckoutUnavailableItems(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	tenantID := uuid.New()

	inactive := &models.Product{
		TenantID:   tenantID,
		Title:      "Retired Mug",
		Status:     enums.ProductStatusArchived,
		PriceCents: 900,
		Stock:      10,
	}
	require.NoError(t, f.db.Create(inactive).Error)
	f.seedCart(t, tenantID, "sess-2",
		models.CartItem{ProductID: inactive.ID, Qty: 1},
		models.CartItem{ProductID: uuid.New(), Qty: 1},
	)

	_, err := f.svc.Checkout(ctx, validInput(tenantID, "sess-2"))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())

	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ITEM_UNAVAILABLE", details["reason"])
	assert.Len(t, details["items"], 2)
}

func TestCheckoutInsufficientStockRollsBack(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	tenantID := uuid.New()

	product := f.seedProduct(t, tenantID, 1, 2500)
	f.seedCart(t, tenantID, "sess-3",
		models.CartItem{ProductID: product.ID, Qty: 2},
	)

	_, err := f.svc.Checkout(ctx, validInput(tenantID, "sess-3"))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())

	// Nothing may survive the rollback: no order, untouched stock, full cart.
	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)

	var reloaded models.Product
	require.NoError(t, f.db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, 1, reloaded.Stock)

	var itemCount int64
	require.NoError(t, f.db.Model(&models.CartItem{}).Count(&itemCount).Error)
	assert.Equal(t, int64(1), itemCount)

	assert.Empty(t, f.mailer.sent)
}

func TestCheckoutSequentialNoOversell(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	tenantID := uuid.New()

	product := f.seedProduct(t, tenantID, 1, 2500)
	f.seedCart(t, tenantID, "sess-first", models.CartItem{ProductID: product.ID, Qty: 1})
	f.seedCart(t, tenantID, "sess-second", models.CartItem{ProductID: product.ID, Qty: 1})

	_, err := f.svc.Checkout(ctx, validInput(tenantID, "sess-first"))
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, validInput(tenantID, "sess-second"))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())

	var reloaded models.Product
	require.NoError(t, f.db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, 0, reloaded.Stock, "stock never goes negative")

	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Equal(t, int64(1), orderCount, "only the first checkout may win the unit")
}

// staleStockProducts reports one more unit than is actually on hand, standing
// in for a concurrent checkout that sold the last unit between the
// availability read and the decrement.
type staleStockProducts struct {
	products.Repository
}

func (p staleStockProducts) WithTx(tx *gorm.DB) products.Repository {
	return staleStockProducts{Repository: p.Repository.WithTx(tx)}
}

func (p staleStockProducts) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := p.Repository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	product.Stock++
	return product, nil
}

func TestCheckoutStaleStockReadRollsBack(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	tenantID := uuid.New()

	svc, err := NewService(ServiceParams{
		Orders:   orders.NewRepository(f.db),
		Carts:    cart.NewRepository(f.db),
		Products: staleStockProducts{Repository: products.NewRepository(f.db)},
		Tenants:  tenants.NewRepository(f.db),
		Tx:       testTxRunner{db: f.db},
		Gateway:  f.gateway,
		Mailer:   f.mailer,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)

	product := f.seedProduct(t, tenantID, 0, 2500)
	f.seedCart(t, tenantID, "sess-stale", models.CartItem{ProductID: product.ID, Qty: 1})

	// The availability read claims one unit; the conditional decrement must
	// catch the truth and unwind the whole checkout.
	_, err = svc.Checkout(ctx, validInput(tenantID, "sess-stale"))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())

	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "INSUFFICIENT_STOCK", details["reason"])

	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)

	var reloaded models.Product
	require.NoError(t, f.db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, 0, reloaded.Stock)

	var itemCount int64
	require.NoError(t, f.db.Model(&models.CartItem{}).Count(&itemCount).Error)
	assert.Equal(t, int64(1), itemCount, "cart survives the rollback")
	assert.Empty(t, f.mailer.sent)
}

func TestCheckoutVariantOutOfStockNamesLine(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	tenantID := uuid.New()

	product := f.seedProduct(t, tenantID, 1, 2500)
	variant := f.seedVariant(t, product.ID, 0, 2900)
	f.seedCart(t, tenantID, "sess-two-lines",
		models.CartItem{ProductID: product.ID, Qty: 1},
		models.CartItem{ProductID: product.ID, VariantID: &variant.ID, Qty: 1},
	)

	_, err := f.svc.Checkout(ctx, validInput(tenantID, "sess-two-lines"))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())

	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "INSUFFICIENT_STOCK", details["reason"])
	assert.Equal(t, "Canvas Tote - Large", details["title"], "the failing variant line is named")
	assert.Equal(t, 0, details["available"])

	// The sellable base-product line must not have been decremented.
	var reloaded models.Product
	require.NoError(t, f.db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, 1, reloaded.Stock)

	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)

	var itemCount int64
	require.NoError(t, f.db.Model(&models.CartItem{}).Count(&itemCount).Error)
	assert.Equal(t, int64(2), itemCount)
}

func TestCheckoutValidatesInput(t *testing.T) {
	f := newCheckoutFixture(t)

	input := validInput(uuid.New(), "sess-4")
	input.BuyerEmail = "not-an-email"
	_, err := f.svc.Checkout(context.Background(), input)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestInitiatePaymentOpensHostedFlow(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	tenantID := uuid.New()

	product := f.seedProduct(t, tenantID, 5, 2500)
	f.seedCart(t, tenantID, "sess-5", models.CartItem{ProductID: product.ID, Qty: 1})
	result, err := f.svc.Checkout(ctx, validInput(tenantID, "sess-5"))
	require.NoError(t, err)
	order := result.Order

	initiated, err := f.svc.InitiatePayment(ctx, InitiateInput{TenantID: tenantID, OrderID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/redirect", initiated.RedirectURL)
	assert.NotEmpty(t, initiated.GatewayOrderID)

	require.Len(t, f.gateway.created, 1)
	assert.Equal(t, "order-"+order.ID.String(), f.gateway.created[0].IdempotencyKey)
	assert.Equal(t, order.TotalCents, f.gateway.created[0].AmountCents)

	var reloaded models.Order
	require.NoError(t, f.db.First(&reloaded, "id = ?", order.ID).Error)
	require.NotNil(t, reloaded.GatewayOrderID)
	assert.Equal(t, initiated.GatewayOrderID, *reloaded.GatewayOrderID)
}

func TestInitiatePaymentRejectsResolvedOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	tenantID := uuid.New()

	product := f.seedProduct(t, tenantID, 5, 2500)
	f.seedCart(t, tenantID, "sess-6", models.CartItem{ProductID: product.ID, Qty: 1})
	result, err := f.svc.Checkout(ctx, validInput(tenantID, "sess-6"))
	require.NoError(t, err)

	_, err = orders.NewRepository(f.db).ResolvePayment(ctx, result.Order.ID, enums.OrderPaymentStatusPaid, enums.OrderStatusConfirmed)
	require.NoError(t, err)

	_, err = f.svc.InitiatePayment(ctx, InitiateInput{TenantID: tenantID, OrderID: result.Order.ID})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestInitiatePaymentHidesForeignOrders(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	tenantID := uuid.New()

	product := f.seedProduct(t, tenantID, 5, 2500)
	f.seedCart(t, tenantID, "sess-7", models.CartItem{ProductID: product.ID, Qty: 1})
	result, err := f.svc.Checkout(ctx, validInput(tenantID, "sess-7"))
	require.NoError(t, err)

	_, err = f.svc.InitiatePayment(ctx, InitiateInput{TenantID: uuid.New(), OrderID: result.Order.ID})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
