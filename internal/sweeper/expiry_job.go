package sweeper

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/storelane/storelane-backend/internal/subscriptions"
	"github.com/storelane/storelane-backend/internal/tenants"
	"github.com/storelane/storelane-backend/pkg/logger"
	"github.com/storelane/storelane-backend/pkg/metrics"
)

const expiryJobName = "subscription_expiry"

// ExpiryJob deactivates tenants whose cancelled subscription period has
// lapsed. Each tenant is handled independently; one failure never aborts
// the batch.
type ExpiryJob struct {
	subs    subscriptions.Repository
	tenants tenants.Repository
	metrics *metrics.JobMetrics
	logg    *logger.Logger
}

// NewExpiryJob builds the expiry sweep job.
func NewExpiryJob(subs subscriptions.Repository, tenantRepo tenants.Repository, jobMetrics *metrics.JobMetrics, logg *logger.Logger) (*ExpiryJob, error) {
	if subs == nil {
		return nil, fmt.Errorf("subscriptions repository required")
	}
	if tenantRepo == nil {
		return nil, fmt.Errorf("tenants repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &ExpiryJob{
		subs:    subs,
		tenants: tenantRepo,
		metrics: jobMetrics,
		logg:    logg,
	}, nil
}

// Name identifies the job in logs and metrics.
func (j *ExpiryJob) Name() string {
	return expiryJobName
}

// Run processes every expired cancelled subscription, collecting per-tenant
// failures into one reported error.
func (j *ExpiryJob) Run(ctx context.Context) error {
	expired, err := j.subs.FindExpiredCancelled(ctx)
	if err != nil {
		return fmt.Errorf("listing expired subscriptions: %w", err)
	}
	if len(expired) == 0 {
		j.logg.Info(ctx, "no expired subscriptions")
		return nil
	}

	var errs error
	succeeded := 0
	for _, sub := range expired {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		tenantCtx := j.logg.WithTenantID(ctx, sub.TenantID.String())
		if err := j.tenants.SetActive(tenantCtx, sub.TenantID, false); err != nil {
			j.logg.Error(tenantCtx, "deactivating expired tenant failed", err)
			errs = multierr.Append(errs, fmt.Errorf("tenant %s: %w", sub.TenantID, err))
			continue
		}
		succeeded++
		j.logg.Info(tenantCtx, "expired tenant deactivated")
	}

	j.metrics.AddProcessed(expiryJobName, "deactivated", succeeded)
	j.metrics.AddProcessed(expiryJobName, "failed", len(expired)-succeeded)
	return errs
}
