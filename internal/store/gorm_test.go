package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/adsync/internal/models"
)

// newTestGormStore needs a disposable Postgres database in TEST_DATABASE_URL.
func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Connect(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), url, 4, 0)
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewGormStore(db)
}

func TestGormUpsertsAreIdempotent(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()
	tenant := uuid.NewString()

	c := seedCampaign(t, s, tenant, models.PlatformFacebook, "fb-1")
	again := seedCampaign(t, s, tenant, models.PlatformFacebook, "fb-1")
	assert.Equal(t, c.ID, again.ID)

	for i := 0; i < 2; i++ {
		require.NoError(t, s.UpsertMetric(ctx, models.Metric{
			CampaignID: c.ID, Date: d1,
			Counters: models.Counters{Impressions: int64(100 + i), Clicks: 4, Spend: 12.5},
		}))
	}
	rows, err := s.ListMetrics(ctx, MetricFilter{TenantID: tenant})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 101, rows[0].Impressions)

	sum, err := s.SumMetrics(ctx, MetricFilter{TenantID: tenant}, GroupCampaign)
	require.NoError(t, err)
	require.Len(t, sum, 1)
	assert.InDelta(t, 12.5, sum[0].Spend, 1e-9)
}

func TestGormAlertDedupUsesPartialIndex(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()
	a := models.Alert{
		TenantID: uuid.NewString(), CampaignID: "c1", RuleID: "r1", Type: "LOW_ROAS",
		Severity: models.SeverityWarning, Metadata: map[string]any{"value": 0.4},
	}

	first, created, err := s.CreateAlertIfAbsent(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = s.CreateAlertIfAbsent(ctx, a)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = s.SetAlertStatus(ctx, first.ID, []models.AlertStatus{models.AlertOpen, models.AlertAcknowledged}, models.AlertResolved, d1)
	require.NoError(t, err)

	_, created, err = s.CreateAlertIfAbsent(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestGormAlertStatusChangeIsConditional(t *testing.T) {
	checkConditionalAlertStatus(t, newTestGormStore(t), uuid.NewString())
}

func TestGormConcurrentAlertTransitionsKeepOneUnresolved(t *testing.T) {
	checkConcurrentAlertTransitions(t, newTestGormStore(t), uuid.NewString())
}

func TestGormUpsertAccountWithoutStatusKeepsIt(t *testing.T) {
	checkUpsertAccountKeepsStatus(t, newTestGormStore(t), uuid.NewString())
}

func TestGormUpsertMetricUnknownCampaign(t *testing.T) {
	s := newTestGormStore(t)
	err := s.UpsertMetric(context.Background(), models.Metric{CampaignID: uuid.NewString(), Date: d1})
	assert.ErrorIs(t, err, ErrNotFound)
}
