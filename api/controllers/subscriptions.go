package controllers

import (
	"net/http"

	"github.com/storelane/storelane-backend/api/middleware"
	"github.com/storelane/storelane-backend/api/responses"
	"github.com/storelane/storelane-backend/internal/subscriptions"
	pkgerrors "github.com/storelane/storelane-backend/pkg/errors"
	"github.com/storelane/storelane-backend/pkg/logger"
)

// SubscriptionFetch returns the authenticated tenant's subscription.
func SubscriptionFetch(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID, ok := middleware.TenantIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant context missing"))
			return
		}
		sub, err := svc.Get(ctx, tenantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

// SubscriptionEntitlement reports whether the tenant may currently serve
// storefront traffic under its billing state.
func SubscriptionEntitlement(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID, ok := middleware.TenantIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant context missing"))
			return
		}
		entitled, err := svc.Entitled(ctx, tenantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"entitled": entitled})
	}
}

// SubscriptionCancel schedules an end-of-period cancellation.
func SubscriptionCancel(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID, ok := middleware.TenantIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant context missing"))
			return
		}
		sub, err := svc.Cancel(ctx, tenantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

// SubscriptionReactivate resumes a cancelled subscription, charging a fresh
// month when the paid-for period already lapsed.
func SubscriptionReactivate(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID, ok := middleware.TenantIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant context missing"))
			return
		}
		sub, err := svc.Reactivate(ctx, tenantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}
