package controllers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/storelane/storelane-backend/api/middleware"
	"github.com/storelane/storelane-backend/api/responses"
	"github.com/storelane/storelane-backend/internal/orders"
	pkgerrors "github.com/storelane/storelane-backend/pkg/errors"
	"github.com/storelane/storelane-backend/pkg/logger"
	"github.com/storelane/storelane-backend/pkg/pagination"
)

// OrderStatus is the public polling surface buyers hit while waiting for a
// payment to resolve.
func OrderStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tenantID, err := uuid.Parse(chi.URLParam(r, "tenantId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid tenant id"))
			return
		}
		orderNumber := chi.URLParam(r, "orderNumber")

		view, err := svc.GetStatus(ctx, tenantID, orderNumber)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// ListOrders returns the authenticated tenant's orders, newest first.
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tenantID, ok := middleware.TenantIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant context missing"))
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		list, err := svc.List(ctx, tenantID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
