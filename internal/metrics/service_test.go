package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/adsync/internal/models"
	"github.com/AngelCh415/adsync/internal/store"
)

var now = time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

type fixture struct {
	t   *testing.T
	st  *store.MemoryStore
	svc *Service
}

func newFixture(t *testing.T) *fixture {
	st := store.NewMemoryStore()
	return &fixture{t: t, st: st, svc: NewService(st, WithClock(func() time.Time { return now }))}
}

func (f *fixture) campaign(tenant, id string, p models.Platform, status models.CampaignStatus) {
	f.t.Helper()
	_, err := f.st.UpsertCampaign(context.Background(), models.Campaign{
		ID: id, TenantID: tenant, Platform: p, ExternalID: "ext-" + id, Name: "Campaign " + id, Status: status,
	})
	require.NoError(f.t, err)
}

func (f *fixture) metric(campaignID string, day time.Time, c models.Counters, mock bool) {
	f.t.Helper()
	err := f.st.UpsertMetric(context.Background(), models.Metric{
		CampaignID: campaignID, Date: day, Counters: c, Ratios: models.Derive(c), IsMockData: mock,
	})
	require.NoError(f.t, err)
}

func daysAgo(n int) time.Time { return models.DayUTC(now).AddDate(0, 0, -n) }

func TestAggregateSumsBeforeDeriving(t *testing.T) {
	f := newFixture(t)
	f.campaign("t1", "a", models.PlatformGoogleAds, models.CampaignActive)
	f.campaign("t1", "b", models.PlatformFacebook, models.CampaignActive)
	for i := 0; i < 30; i++ {
		f.metric("a", daysAgo(i), models.Counters{Impressions: 1000, Clicks: 50}, false)
		f.metric("b", daysAgo(i), models.Counters{Impressions: 10, Clicks: 5}, false)
	}

	w := models.LastNDays(now, 29)
	got, err := f.svc.GetAggregatedMetrics(context.Background(), "t1", w.Start, w.End, "")
	require.NoError(t, err)

	assert.Equal(t, int64(30300), got.Impressions)
	assert.Equal(t, int64(1650), got.Clicks)
	assert.InDelta(t, 5.4455, got.CTR, 1e-4)
	assert.NotEqual(t, 27.5, got.CTR)

	onlyB, err := f.svc.GetAggregatedMetrics(context.Background(), "t1", w.Start, w.End, models.PlatformFacebook)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, onlyB.CTR, 1e-9)
}

func TestAggregateWithoutDataIsZero(t *testing.T) {
	f := newFixture(t)
	w := models.LastNDays(now, 7)
	got, err := f.svc.GetAggregatedMetrics(context.Background(), "nobody", w.Start, w.End, "")
	require.NoError(t, err)
	assert.Equal(t, Totals{}, got)
}

func TestPercentChange(t *testing.T) {
	cases := []struct {
		cur, prev, want float64
	}{
		{150, 100, 50},
		{50, 100, -50},
		{5, 0, 100},
		{0, 0, 0},
		{0, 10, -100},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, PercentChange(c.cur, c.prev), 1e-9, "%v vs %v", c.cur, c.prev)
	}
}

func TestGetMetricsTrendsComparesPreviousWindow(t *testing.T) {
	f := newFixture(t)
	f.campaign("t1", "a", models.PlatformGoogleAds, models.CampaignActive)
	f.metric("a", daysAgo(2), models.Counters{Impressions: 100, Clicks: 10, Spend: 150, Revenue: 300}, false)
	f.metric("a", daysAgo(10), models.Counters{Impressions: 100, Clicks: 10, Spend: 100, Revenue: 100}, false)
	f.metric("a", daysAgo(40), models.Counters{Spend: 999}, false)

	rep, err := f.svc.GetMetricsTrends(context.Background(), "t1", "7d", true)
	require.NoError(t, err)
	assert.Equal(t, "7d", rep.Period)
	assert.Equal(t, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), rep.StartDate)
	assert.Equal(t, time.Date(2024, 5, 20, 23, 59, 59, int(999*time.Millisecond), time.UTC), rep.EndDate)
	assert.Equal(t, 150.0, rep.Current.Spend)
	require.NotNil(t, rep.Previous)
	assert.Equal(t, 100.0, rep.Previous.Spend)
	require.NotNil(t, rep.Trends)
	assert.InDelta(t, 50.0, rep.Trends.Spend, 1e-9)
	assert.InDelta(t, 100.0, rep.Trends.ROAS, 1e-9)
	assert.Zero(t, rep.Trends.Impressions)

	plain, err := f.svc.GetMetricsTrends(context.Background(), "t1", "bogus", false)
	require.NoError(t, err)
	assert.Nil(t, plain.Previous)
	assert.Nil(t, plain.Trends)
	assert.Equal(t, rep.StartDate, plain.StartDate)
}

func TestGetTopCampaignsOrdersBySpendThenID(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"c", "a", "b", "d"} {
		f.campaign("t1", id, models.PlatformTikTok, models.CampaignActive)
	}
	f.campaign("t2", "other", models.PlatformTikTok, models.CampaignActive)
	f.metric("a", daysAgo(1), models.Counters{Spend: 50}, false)
	f.metric("b", daysAgo(1), models.Counters{Spend: 80}, false)
	f.metric("c", daysAgo(1), models.Counters{Spend: 50}, false)
	f.metric("d", daysAgo(1), models.Counters{Spend: 10}, false)
	f.metric("other", daysAgo(1), models.Counters{Spend: 1000}, false)

	top, err := f.svc.GetTopCampaigns(context.Background(), "t1", 3, 30)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{top[0].ID, top[1].ID, top[2].ID})
	assert.Equal(t, "Campaign b", top[0].Name)
	assert.Equal(t, models.PlatformTikTok, top[0].Platform)
}

func TestGetDailyMetrics(t *testing.T) {
	f := newFixture(t)
	f.campaign("t1", "a", models.PlatformGoogleAds, models.CampaignActive)
	f.campaign("t1", "b", models.PlatformGoogleAds, models.CampaignActive)
	f.metric("a", daysAgo(1), models.Counters{Impressions: 100, Clicks: 1}, false)
	f.metric("b", daysAgo(1), models.Counters{Impressions: 100, Clicks: 3}, false)
	f.metric("a", daysAgo(0), models.Counters{Impressions: 10, Clicks: 1}, false)

	rep, err := f.svc.GetDailyMetrics(context.Background(), "t1", "7d", "")
	require.NoError(t, err)
	require.Len(t, rep.Data, 2)
	assert.Equal(t, "2024-05-19", rep.Data[0].Date)
	assert.InDelta(t, 2.0, rep.Data[0].CTR, 1e-9)
	assert.Equal(t, "2024-05-20", rep.Data[1].Date)
}

func TestGetCampaignPerformance(t *testing.T) {
	f := newFixture(t)
	f.campaign("t1", "a", models.PlatformGoogleAds, models.CampaignActive)
	f.metric("a", daysAgo(1), models.Counters{Spend: 10, Revenue: 30}, false)
	f.metric("a", daysAgo(2), models.Counters{Spend: 30, Revenue: 10}, false)

	w := models.LastNDays(now, 7)
	perf, err := f.svc.GetCampaignPerformance(context.Background(), "t1", "a", w.Start, w.End)
	require.NoError(t, err)
	assert.Equal(t, 40.0, perf.Totals.Spend)
	assert.InDelta(t, 1.0, perf.Totals.ROAS, 1e-9)
	require.Len(t, perf.Daily, 2)
	assert.InDelta(t, 3.0, perf.Daily[1].ROAS, 1e-9)

	_, err = f.svc.GetCampaignPerformance(context.Background(), "t2", "a", w.Start, w.End)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetSummary(t *testing.T) {
	f := newFixture(t)
	f.campaign("t1", "a", models.PlatformGoogleAds, models.CampaignActive)
	f.campaign("t1", "b", models.PlatformFacebook, models.CampaignPaused)
	f.campaign("t1", "c", models.PlatformFacebook, models.CampaignActive)
	f.metric("a", daysAgo(1), models.Counters{Impressions: 200, Spend: 20}, true)
	f.metric("a", daysAgo(20), models.Counters{Impressions: 100, Spend: 10}, false)

	sum, err := f.svc.GetSummary(context.Background(), "t1", 7, "")
	require.NoError(t, err)
	assert.Equal(t, "ALL", sum.Platform)
	assert.Equal(t, int64(3), sum.TotalCampaigns)
	assert.Equal(t, int64(2), sum.ActiveCampaigns)
	assert.True(t, sum.IsMockData)
	assert.Equal(t, 20.0, sum.Spend)
	assert.InDelta(t, 100.0, sum.Trends.Spend, 1e-9)

	fb, err := f.svc.GetSummary(context.Background(), "t1", 7, models.PlatformFacebook)
	require.NoError(t, err)
	assert.Equal(t, "FACEBOOK", fb.Platform)
	assert.Equal(t, int64(2), fb.TotalCampaigns)
	assert.Equal(t, int64(1), fb.ActiveCampaigns)
	assert.Zero(t, fb.Spend)
}

func TestGetPerformanceByPlatformAddsAnalyticsRow(t *testing.T) {
	f := newFixture(t)
	f.campaign("t1", "a", models.PlatformGoogleAds, models.CampaignActive)
	f.campaign("t1", "b", models.PlatformLineAds, models.CampaignActive)
	f.metric("a", daysAgo(1), models.Counters{Impressions: 100, Clicks: 10, Spend: 5}, false)
	f.metric("b", daysAgo(1), models.Counters{Impressions: 50, Clicks: 5, Spend: 7}, false)
	require.NoError(t, f.st.UpsertWebAnalytics(context.Background(), models.WebAnalyticsDaily{
		TenantID: "t1", PropertyID: "p1", Date: daysAgo(1),
		WebCounters: models.WebCounters{Sessions: 40, PageViews: 400},
	}))

	rows, err := f.svc.GetPerformanceByPlatform(context.Background(), "t1", 7)
	require.NoError(t, err)
	require.Len(t, rows, len(models.Platforms))

	by := map[models.Platform]PlatformPerformance{}
	for _, r := range rows {
		by[r.Platform] = r
	}
	assert.Equal(t, 5.0, by[models.PlatformGoogleAds].Spend)
	assert.Equal(t, 7.0, by[models.PlatformLineAds].Spend)
	assert.Zero(t, by[models.PlatformTikTok].Impressions)
	ga := by[models.PlatformGoogleAnalytics]
	assert.Equal(t, int64(400), ga.Impressions)
	assert.Equal(t, int64(40), ga.Clicks)
	assert.InDelta(t, 10.0, ga.CTR, 1e-9)
}

func TestParsePlatformFilter(t *testing.T) {
	p, err := ParsePlatformFilter("all")
	require.NoError(t, err)
	assert.Empty(t, p)
	p, err = ParsePlatformFilter("tiktok")
	require.NoError(t, err)
	assert.Equal(t, models.PlatformTikTok, p)
	_, err = ParsePlatformFilter("myspace")
	assert.Error(t, err)
}
