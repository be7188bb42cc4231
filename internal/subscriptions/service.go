package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storelane/storelane-backend/internal/payments"
	"github.com/storelane/storelane-backend/internal/tenants"
	"github.com/storelane/storelane-backend/pkg/config"
	"github.com/storelane/storelane-backend/pkg/db"
	"github.com/storelane/storelane-backend/pkg/db/models"
	"github.com/storelane/storelane-backend/pkg/enums"
	pkgerrors "github.com/storelane/storelane-backend/pkg/errors"
	"github.com/storelane/storelane-backend/pkg/gateway"
	"github.com/storelane/storelane-backend/pkg/logger"
)

const tenantConstraint = "idx_subscriptions_tenant"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gatewayCharger interface {
	ChargeStored(ctx context.Context, params gateway.ChargeParams) (*gateway.ChargeResult, error)
}

// ServiceParams configure the subscription service.
type ServiceParams struct {
	Repo     Repository
	Tenants  tenants.Repository
	Payments payments.Repository
	Tx       txRunner
	Gateway  gatewayCharger
	Billing  config.BillingConfig
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	tenants  tenants.Repository
	payments payments.Repository
	tx       txRunner
	gateway  gatewayCharger
	billing  config.BillingConfig
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the subscription service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscriptions repository required")
	}
	if params.Tenants == nil {
		return nil, fmt.Errorf("tenants repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		tenants:  params.Tenants,
		payments: params.Payments,
		tx:       params.Tx,
		gateway:  params.Gateway,
		billing:  params.Billing,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

// billingPeriod derives the period fields from a start instant. The period
// end sits one day before the next billing date so renewal charges land
// before access lapses.
func billingPeriod(start time.Time) (end, nextBilling time.Time) {
	nextBilling = start.AddDate(0, 1, 0)
	end = nextBilling.Add(-24 * time.Hour)
	return end, nextBilling
}

// Create starts the tenant's subscription after its first paid setup fee.
// Idempotent: an existing subscription is returned as-is, including when a
// concurrent trigger wins the unique-constraint race.
func (s *service) Create(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	ctx = s.logg.WithTenantID(ctx, tenantID.String())

	if existing, err := s.repo.FindByTenant(ctx, tenantID); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}

	now := s.now().UTC()
	end, next := billingPeriod(now)
	sub := &models.Subscription{
		TenantID:           tenantID,
		Status:             enums.SubscriptionStatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   end,
		NextBillingDate:    next,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.WithTx(tx).Create(ctx, sub); err != nil {
			return err
		}
		return s.tenants.WithTx(tx).SetActive(ctx, tenantID, true)
	})
	if err != nil {
		if db.IsUniqueViolation(err, tenantConstraint) {
			winner, findErr := s.repo.FindByTenant(ctx, tenantID)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "loading racing subscription")
			}
			return winner, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating subscription")
	}

	s.logg.Info(ctx, "subscription created")
	return sub, nil
}

// Renew advances the billing period after a successful monthly payment.
func (s *service) Renew(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	ctx = s.logg.WithTenantID(ctx, tenantID.String())

	sub, err := s.repo.FindByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}

	start := sub.NextBillingDate
	end, next := billingPeriod(start)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(ctx, tenantID, map[string]any{
			"status":               enums.SubscriptionStatusActive,
			"current_period_start": start,
			"current_period_end":   end,
			"next_billing_date":    next,
			"cancelled_at":         nil,
		}); err != nil {
			return err
		}
		return s.tenants.WithTx(tx).SetActive(ctx, tenantID, true)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "renewing subscription")
	}

	s.logg.Info(ctx, "subscription renewed")
	return s.repo.FindByTenant(ctx, tenantID)
}

// Cancel schedules an end-of-period cancellation. Period fields stay put;
// the tenant keeps serving until the paid-for period ends.
func (s *service) Cancel(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	ctx = s.logg.WithTenantID(ctx, tenantID.String())

	sub, err := s.repo.FindByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}
	if sub.Status == enums.SubscriptionStatusCancelled {
		return sub, nil
	}

	cancelledAt := s.now().UTC()
	if err := s.repo.Update(ctx, tenantID, map[string]any{
		"status":       enums.SubscriptionStatusCancelled,
		"cancelled_at": cancelledAt,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling subscription")
	}

	s.logg.Info(ctx, "subscription cancelled")
	return s.repo.FindByTenant(ctx, tenantID)
}

// Reactivate resumes a cancelled subscription. Inside the paid-for period it
// just clears the cancellation; after the period lapsed it charges a fresh
// monthly fee and starts a new period from now.
func (s *service) Reactivate(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	ctx = s.logg.WithTenantID(ctx, tenantID.String())

	sub, err := s.repo.FindByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}

	if sub.Status == enums.SubscriptionStatusActive {
		return sub, nil
	}

	now := s.now().UTC()
	if now.Before(sub.CurrentPeriodEnd) {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.WithTx(tx).Update(ctx, tenantID, map[string]any{
				"status":       enums.SubscriptionStatusActive,
				"cancelled_at": nil,
			}); err != nil {
				return err
			}
			return s.tenants.WithTx(tx).SetActive(ctx, tenantID, true)
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reactivating subscription")
		}
		s.logg.Info(ctx, "subscription reactivated within paid period")
		return s.repo.FindByTenant(ctx, tenantID)
	}

	return s.reactivateLapsed(ctx, tenantID, now)
}

// reactivateLapsed charges a new monthly fee and opens a fresh period. The
// charge gets its own Payment row; the subscription only moves when the
// provider confirms the charge.
func (s *service) reactivateLapsed(ctx context.Context, tenantID uuid.UUID, now time.Time) (*models.Subscription, error) {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading tenant")
	}
	if tenant.BillingTokenRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "tenant has no stored payment method")
	}

	payment := &models.Payment{
		TenantID:    tenantID,
		Type:        enums.PaymentTypeMonthlySubscription,
		AmountCents: s.billing.MonthlyFeeCents,
		Status:      enums.PaymentStatusPending,
		Metadata:    models.JSONMap{"trigger": "reactivation"},
	}
	if _, err := s.payments.Create(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating reactivation payment")
	}

	result, err := s.gateway.ChargeStored(ctx, gateway.ChargeParams{
		ReferenceID:    payment.ID.String(),
		StoredTokenRef: tenant.BillingTokenRef,
		AmountCents:    s.billing.MonthlyFeeCents,
		Description:    "subscription reactivation",
	})
	if err != nil {
		if _, resolveErr := s.payments.Resolve(ctx, payment.ID, enums.PaymentStatusFailed); resolveErr != nil {
			s.logg.Error(ctx, "failed to mark reactivation payment failed", resolveErr)
		}
		return nil, err
	}
	if err := s.payments.SetTransactionID(ctx, payment.ID, result.TransactionID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving transaction id")
	}
	if !gateway.ChargeSuccessful(result) {
		if _, resolveErr := s.payments.Resolve(ctx, payment.ID, enums.PaymentStatusFailed); resolveErr != nil {
			s.logg.Error(ctx, "failed to mark reactivation payment failed", resolveErr)
		}
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "reactivation charge declined").
			WithDetails(map[string]any{"result_code": result.ResultCode})
	}

	end, next := billingPeriod(now)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.payments.WithTx(tx).Resolve(ctx, payment.ID, enums.PaymentStatusPaid); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Update(ctx, tenantID, map[string]any{
			"status":               enums.SubscriptionStatusActive,
			"current_period_start": now,
			"current_period_end":   end,
			"next_billing_date":    next,
			"cancelled_at":         nil,
		}); err != nil {
			return err
		}
		return s.tenants.WithTx(tx).SetActive(ctx, tenantID, true)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "applying reactivation")
	}

	s.logg.Info(s.logg.WithField(ctx, "transaction_id", result.TransactionID), "subscription reactivated with new charge")
	return s.repo.FindByTenant(ctx, tenantID)
}

func (s *service) Get(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	sub, err := s.repo.FindByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}
	return sub, nil
}

// Entitled reports whether the tenant may serve storefront traffic: either
// it is still in the setup-fee grace window, or its subscription is active,
// or cancelled with time left in the paid-for period.
func (s *service) Entitled(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	if tenantID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}

	sub, err := s.repo.FindByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			pending, feeErr := s.payments.HasPendingSetupFee(ctx, tenantID)
			if feeErr != nil {
				return false, pkgerrors.Wrap(pkgerrors.CodeInternal, feeErr, "checking setup fee")
			}
			return pending, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}

	switch sub.Status {
	case enums.SubscriptionStatusActive:
		return true, nil
	case enums.SubscriptionStatusCancelled:
		return s.now().UTC().Before(sub.CurrentPeriodEnd), nil
	default:
		return false, nil
	}
}
