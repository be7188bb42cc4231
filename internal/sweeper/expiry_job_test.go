package sweeper

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/storelane/storelane-backend/internal/subscriptions"
	"github.com/storelane/storelane-backend/internal/tenants"
	"github.com/storelane/storelane-backend/pkg/db/models"
	"github.com/storelane/storelane-backend/pkg/enums"
	"github.com/storelane/storelane-backend/pkg/logger"
	"github.com/storelane/storelane-backend/pkg/metrics"
)

func setupSweepTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Tenant{}, &models.Subscription{}))
	return db
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func seedTenantWithSub(t *testing.T, db *gorm.DB, status enums.SubscriptionStatus, periodEnd time.Time) *models.Tenant {
	t.Helper()

	tenant := &models.Tenant{
		Name:       "Shop",
		Subdomain:  "shop-" + uuid.NewString()[:8],
		OwnerEmail: "owner@example.com",
		IsActive:   true,
	}
	require.NoError(t, db.Create(tenant).Error)

	sub := &models.Subscription{
		TenantID:           tenant.ID,
		Status:             status,
		CurrentPeriodStart: periodEnd.AddDate(0, -1, 0),
		CurrentPeriodEnd:   periodEnd,
		NextBillingDate:    periodEnd.Add(24 * time.Hour),
	}
	if status == enums.SubscriptionStatusCancelled {
		cancelledAt := periodEnd.AddDate(0, -1, 0)
		sub.CancelledAt = &cancelledAt
	}
	require.NoError(t, db.Create(sub).Error)
	return tenant
}

func TestExpiryJobDeactivatesLapsedTenants(t *testing.T) {
	db := setupSweepTestDB(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-48 * time.Hour)
	future := time.Now().UTC().Add(72 * time.Hour)

	lapsed := seedTenantWithSub(t, db, enums.SubscriptionStatusCancelled, past)
	inGrace := seedTenantWithSub(t, db, enums.SubscriptionStatusCancelled, future)
	active := seedTenantWithSub(t, db, enums.SubscriptionStatusActive, past)

	job, err := NewExpiryJob(
		subscriptions.NewRepository(db),
		tenants.NewRepository(db),
		metrics.NewJobMetrics(prometheus.NewRegistry()),
		testLogger(),
	)
	require.NoError(t, err)
	require.NoError(t, job.Run(ctx))

	var lapsedTenant models.Tenant
	require.NoError(t, db.First(&lapsedTenant, "id = ?", lapsed.ID).Error)
	assert.False(t, lapsedTenant.IsActive, "lapsed cancelled tenant must be deactivated")

	var inGraceTenant models.Tenant
	require.NoError(t, db.First(&inGraceTenant, "id = ?", inGrace.ID).Error)
	assert.True(t, inGraceTenant.IsActive, "cancelled tenant inside the paid period keeps serving")

	var activeTenant models.Tenant
	require.NoError(t, db.First(&activeTenant, "id = ?", active.ID).Error)
	assert.True(t, activeTenant.IsActive, "active subscriptions are never swept")
}

func TestExpiryJobNoExpired(t *testing.T) {
	db := setupSweepTestDB(t)

	job, err := NewExpiryJob(
		subscriptions.NewRepository(db),
		tenants.NewRepository(db),
		metrics.NewJobMetrics(prometheus.NewRegistry()),
		testLogger(),
	)
	require.NoError(t, err)
	assert.NoError(t, job.Run(context.Background()))
}

type stubSubsRepo struct {
	subscriptions.Repository
	expired []models.Subscription
}

func (s stubSubsRepo) FindExpiredCancelled(context.Context) ([]models.Subscription, error) {
	return s.expired, nil
}

type flakyTenantsRepo struct {
	tenants.Repository
	failID      uuid.UUID
	deactivated []uuid.UUID
}

func (r *flakyTenantsRepo) SetActive(_ context.Context, id uuid.UUID, _ bool) error {
	if id == r.failID {
		return errors.New("deadlock detected")
	}
	r.deactivated = append(r.deactivated, id)
	return nil
}

func TestExpiryJobIsolatesFailures(t *testing.T) {
	failing := uuid.New()
	healthy := uuid.New()
	subsRepo := stubSubsRepo{expired: []models.Subscription{
		{TenantID: failing},
		{TenantID: healthy},
	}}
	tenantsRepo := &flakyTenantsRepo{failID: failing}

	job, err := NewExpiryJob(subsRepo, tenantsRepo, metrics.NewJobMetrics(prometheus.NewRegistry()), testLogger())
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err, "the batch error reports the failed tenant")
	assert.Equal(t, []uuid.UUID{healthy}, tenantsRepo.deactivated,
		"one failing tenant must not abort the rest of the batch")
}
