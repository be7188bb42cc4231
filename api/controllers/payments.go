package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/storelane/storelane-backend/api/middleware"
	"github.com/storelane/storelane-backend/api/responses"
	"github.com/storelane/storelane-backend/internal/payments"
	pkgerrors "github.com/storelane/storelane-backend/pkg/errors"
	"github.com/storelane/storelane-backend/pkg/logger"
)

type reconcilePollRequest struct {
	GatewayOrderID string `json:"gateway_order_id"`
}

// ReconcilePoll is the fail-page fallback: the buyer landed on the failure
// redirect without a callback having arrived, so we ask the gateway directly.
func ReconcilePoll(svc payments.Reconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req reconcilePollRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
			return
		}

		outcome, err := svc.ReconcileByPoll(ctx, req.GatewayOrderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}

type refundRequest struct {
	AmountCents *int64 `json:"amount_cents,omitempty"`
}

// Refund reverses a paid order for the authenticated tenant.
func Refund(svc payments.Reconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tenantID, ok := middleware.TenantIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant context missing"))
			return
		}
		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}

		var req refundRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
				return
			}
		}

		outcome, err := svc.Refund(ctx, payments.RefundInput{
			TenantID:    tenantID,
			OrderID:     orderID,
			AmountCents: req.AmountCents,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}
