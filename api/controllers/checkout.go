package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/storelane/storelane-backend/api/responses"
	"github.com/storelane/storelane-backend/internal/checkout"
	pkgerrors "github.com/storelane/storelane-backend/pkg/errors"
	"github.com/storelane/storelane-backend/pkg/logger"
)

type checkoutRequest struct {
	CartSessionID string `json:"cart_session_id"`
	BuyerName     string `json:"buyer_name"`
	BuyerEmail    string `json:"buyer_email"`
	BuyerPhone    string `json:"buyer_phone"`
	ShippingAddr  string `json:"shipping_addr"`
}

// Checkout places an order from the visitor's cart.
func Checkout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tenantID, err := uuid.Parse(chi.URLParam(r, "tenantId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid tenant id"))
			return
		}

		var req checkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
			return
		}

		result, err := svc.Checkout(ctx, checkout.CheckoutInput{
			TenantID:      tenantID,
			CartSessionID: req.CartSessionID,
			BuyerName:     req.BuyerName,
			BuyerEmail:    req.BuyerEmail,
			BuyerPhone:    req.BuyerPhone,
			ShippingAddr:  req.ShippingAddr,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// InitiatePayment opens the hosted payment flow for a pending order.
func InitiatePayment(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tenantID, err := uuid.Parse(chi.URLParam(r, "tenantId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid tenant id"))
			return
		}
		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}

		result, err := svc.InitiatePayment(ctx, checkout.InitiateInput{TenantID: tenantID, OrderID: orderID})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
