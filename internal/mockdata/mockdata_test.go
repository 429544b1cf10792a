package mockdata

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/adsync/internal/models"
	"github.com/AngelCh415/adsync/internal/store"
)

var today = time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

func TestAdDayIsDeterministic(t *testing.T) {
	a := AdDay("c1", today)
	b := AdDay("c1", today.Add(3*time.Hour))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, AdDay("c2", today))

	assert.GreaterOrEqual(t, a.Impressions, int64(1000))
	assert.Less(t, a.Impressions, int64(6000))
	assert.InDelta(t, models.Derive(a.Counters).CTR, a.CTR, 1e-9)
	assert.GreaterOrEqual(t, a.CTR, 1.9)
	assert.LessOrEqual(t, a.CTR, 5.0)
}

func TestWebRangeOnePerDay(t *testing.T) {
	r := models.LastNDays(today, 6)
	rows := WebRange("p", r)
	require.Len(t, rows, 7)
	for i, md := range rows {
		require.NotNil(t, md.Web)
		assert.Equal(t, r.Start.AddDate(0, 0, i), md.Date)
		assert.Equal(t, md.Web.Sessions, md.Clicks)
	}
}

func TestCampaignsByPlatform(t *testing.T) {
	assert.Len(t, Campaigns(models.PlatformLineAds), 3)
	assert.Len(t, Campaigns(models.PlatformGoogleAds), 4)
	assert.Empty(t, Campaigns(models.PlatformGoogleAnalytics))
	c := Campaigns(models.PlatformTikTok)[0]
	require.NotNil(t, c.Budget)
	assert.InDelta(t, 40000, *c.Budget, 1e-9)
}

func TestSeedAndClear(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s := NewSeeder(st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return today }

	res, err := s.Seed(ctx, "t1", 6)
	require.NoError(t, err)
	assert.Equal(t, 12, res.Campaigns)
	assert.Equal(t, 12*7, res.MetricRows)
	assert.Equal(t, 7, res.WebRows)

	// reseeding overwrites the same keys
	again, err := s.Seed(ctx, "t1", 6)
	require.NoError(t, err)
	assert.Equal(t, res, again)
	rows, _ := st.ListMetrics(ctx, store.MetricFilter{TenantID: "t1"})
	assert.Len(t, rows, 12*7)

	accs, _ := st.ListAccounts(ctx, store.AccountFilter{TenantID: "t1"})
	for _, a := range accs {
		assert.Equal(t, models.AccountStatusDisabled, a.Status)
	}

	n, err := s.Clear(ctx, "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 12*7+7, n)
	has, _ := st.HasMockMetrics(ctx, "t1")
	assert.False(t, has)
}
