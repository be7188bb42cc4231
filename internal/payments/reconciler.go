package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storelane/storelane-backend/internal/notifications"
	"github.com/storelane/storelane-backend/internal/orders"
	"github.com/storelane/storelane-backend/pkg/db/models"
	"github.com/storelane/storelane-backend/pkg/enums"
	pkgerrors "github.com/storelane/storelane-backend/pkg/errors"
	"github.com/storelane/storelane-backend/pkg/gateway"
	"github.com/storelane/storelane-backend/pkg/logger"
)

type gatewayAPI interface {
	VerifyCallbackSignature(rawBody []byte, signatureHeader string) bool
	GetPaymentDetails(ctx context.Context, gatewayOrderID string) (*gateway.PaymentDetails, error)
	Refund(ctx context.Context, gatewayOrderID string, amountCents *int64) (*gateway.RefundReceipt, error)
}

// subscriptionLifecycle is the slice of the subscription service the
// reconciler drives after a billing payment resolves.
type subscriptionLifecycle interface {
	Create(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
	Renew(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
}

// ReconcilerParams configure the payment reconciler.
type ReconcilerParams struct {
	Orders        orders.Repository
	Payments      Repository
	Gateway       gatewayAPI
	Subscriptions subscriptionLifecycle
	Mailer        notifications.Mailer
	Logger        *logger.Logger
}

type reconciler struct {
	orders        orders.Repository
	payments      Repository
	gateway       gatewayAPI
	subscriptions subscriptionLifecycle
	mailer        notifications.Mailer
	logg          *logger.Logger
	validate      *validator.Validate
}

// NewReconciler builds the payment reconciler.
func NewReconciler(params ReconcilerParams) (Reconciler, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription lifecycle required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &reconciler{
		orders:        params.Orders,
		payments:      params.Payments,
		gateway:       params.Gateway,
		subscriptions: params.Subscriptions,
		mailer:        params.Mailer,
		logg:          params.Logger,
		validate:      validator.New(),
	}, nil
}

// ProcessCallback reconciles one inbound gateway callback. The raw bytes are
// verified before parsing; a failed verification is logged and the callback
// still processed, since dropping a legitimate confirmation is worse than
// accepting an occasional unverified one.
func (r *reconciler) ProcessCallback(ctx context.Context, rawBody []byte, signatureHeader string) (*ReconcileOutcome, error) {
	parsed := gateway.ParseCallback(rawBody)
	if parsed == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unparsable callback body")
	}

	ctx = r.logg.WithFields(ctx, map[string]any{
		"gateway_order_id": parsed.GatewayOrderID,
		"event_id":         parsed.EventID,
	})

	verified := r.gateway.VerifyCallbackSignature(rawBody, signatureHeader)
	if !verified {
		r.logg.Warn(ctx, "callback signature verification failed; processing anyway")
	}

	outcome, err := r.apply(ctx, parsed.GatewayOrderID, gateway.IsSuccessful(parsed), gateway.IsRejected(parsed))
	if err != nil {
		return nil, err
	}
	outcome.Verified = verified
	return outcome, nil
}

// ReconcileByPoll is the fail-page fallback: fetch the receipt directly and
// apply the same transitions a callback would.
func (r *reconciler) ReconcileByPoll(ctx context.Context, gatewayOrderID string) (*ReconcileOutcome, error) {
	if gatewayOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id required")
	}
	details, err := r.gateway.GetPaymentDetails(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}
	if details == nil {
		return &ReconcileOutcome{Result: ReconcileResultUnrecognized, GatewayOrderID: gatewayOrderID, Verified: true}, nil
	}

	outcome, err := r.apply(ctx, gatewayOrderID, gateway.DetailsSuccessful(details), gateway.DetailsRejected(details))
	if err != nil {
		return nil, err
	}
	outcome.Verified = true
	return outcome, nil
}

func (r *reconciler) apply(ctx context.Context, gatewayOrderID string, success, rejected bool) (*ReconcileOutcome, error) {
	outcome := &ReconcileOutcome{GatewayOrderID: gatewayOrderID}
	if !success && !rejected {
		outcome.Result = ReconcileResultIgnored
		r.logg.Info(ctx, "callback recognized but unhandled")
		return outcome, nil
	}

	order, err := r.orders.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err == nil {
		return r.applyToOrder(ctx, order, success, outcome)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving order")
	}

	payment, err := r.payments.FindByTransactionID(ctx, gatewayOrderID)
	if err == nil {
		return r.applyToPayment(ctx, payment, success, outcome)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving payment")
	}

	outcome.Result = ReconcileResultUnrecognized
	r.logg.Warn(ctx, "callback references no known order or payment")
	return outcome, nil
}

// applyToOrder finalizes or fails a storefront order. Only pending orders
// move; any other current state short-circuits, which makes duplicate and
// racing deliveries idempotent.
func (r *reconciler) applyToOrder(ctx context.Context, order *models.Order, success bool, outcome *ReconcileOutcome) (*ReconcileOutcome, error) {
	outcome.OrderID = &order.ID
	ctx = r.logg.WithOrderID(ctx, order.ID.String())

	to := enums.OrderPaymentStatusFailed
	status := enums.OrderStatusCancelled
	result := ReconcileResultFailed
	if success {
		to = enums.OrderPaymentStatusPaid
		status = enums.OrderStatusConfirmed
		result = ReconcileResultFinalized
	}

	won, err := r.orders.ResolvePayment(ctx, order.ID, to, status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving order payment")
	}
	if !won {
		outcome.Result = ReconcileResultAlreadyResolved
		r.logg.Info(ctx, "order already resolved; ignoring delivery")
		return outcome, nil
	}

	outcome.Result = result
	r.logg.Info(r.logg.WithField(ctx, "payment_status", to.String()), "order payment resolved")

	if success {
		r.notifyPaid(ctx, order)
	}
	return outcome, nil
}

// applyToPayment resolves a tenant-billing payment and drives the
// subscription lifecycle for the winning delivery only.
func (r *reconciler) applyToPayment(ctx context.Context, payment *models.Payment, success bool, outcome *ReconcileOutcome) (*ReconcileOutcome, error) {
	outcome.PaymentID = &payment.ID
	ctx = r.logg.WithTenantID(ctx, payment.TenantID.String())

	to := enums.PaymentStatusFailed
	result := ReconcileResultFailed
	if success {
		to = enums.PaymentStatusPaid
		result = ReconcileResultFinalized
	}

	won, err := r.payments.Resolve(ctx, payment.ID, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving payment")
	}
	if !won {
		outcome.Result = ReconcileResultAlreadyResolved
		r.logg.Info(ctx, "payment already resolved; ignoring delivery")
		return outcome, nil
	}

	outcome.Result = result
	r.logg.Info(r.logg.WithField(ctx, "payment_status", to.String()), "billing payment resolved")

	if !success {
		return outcome, nil
	}

	switch payment.Type {
	case enums.PaymentTypeSetupFee:
		if _, err := r.subscriptions.Create(ctx, payment.TenantID); err != nil {
			return nil, err
		}
	case enums.PaymentTypeMonthlySubscription:
		if _, err := r.subscriptions.Renew(ctx, payment.TenantID); err != nil {
			return nil, err
		}
	default:
		r.logg.Warn(ctx, "paid payment has unknown type; no lifecycle action")
	}
	return outcome, nil
}

// Refund reverses a paid order, fully when no amount is given.
func (r *reconciler) Refund(ctx context.Context, input RefundInput) (*RefundOutcome, error) {
	if err := r.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid refund input").
			WithDetails(err.Error())
	}

	order, err := r.orders.FindByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	if order.TenantID != input.TenantID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.PaymentStatus != enums.OrderPaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only paid orders can be refunded")
	}
	if order.GatewayOrderID == nil || *order.GatewayOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no gateway reference")
	}
	if input.AmountCents != nil && *input.AmountCents > order.TotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds order total")
	}

	receipt, err := r.gateway.Refund(ctx, *order.GatewayOrderID, input.AmountCents)
	if err != nil {
		return nil, err
	}

	// Partial refunds leave the order paid; only a full refund flips it.
	if input.AmountCents == nil || *input.AmountCents == order.TotalCents {
		if _, err := r.orders.MarkRefunded(ctx, order.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking order refunded")
		}
	}

	ctx = r.logg.WithOrderID(ctx, order.ID.String())
	r.logg.Info(r.logg.WithField(ctx, "refund_id", receipt.RefundID), "refund processed")
	return &RefundOutcome{RefundID: receipt.RefundID, Status: receipt.Status}, nil
}

func (r *reconciler) notifyPaid(ctx context.Context, order *models.Order) {
	msg := notifications.Message{
		To:      order.CustomerEmail,
		Subject: fmt.Sprintf("Payment confirmed for order %s", order.OrderNumber),
		Body:    fmt.Sprintf("Your payment for order %s was confirmed. We're getting it ready.", order.OrderNumber),
	}
	if err := r.mailer.Send(ctx, msg); err != nil {
		r.logg.Warn(ctx, "payment confirmation email failed")
	}
}
