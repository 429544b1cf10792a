package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/adsync/internal/config"
	"github.com/AngelCh415/adsync/internal/models"
	"github.com/AngelCh415/adsync/internal/platforms"
	"github.com/AngelCh415/adsync/internal/secrets"
	"github.com/AngelCh415/adsync/internal/store"
)

var now = time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

type fakeAdapter struct {
	mu        sync.Mutex
	campaigns []models.CampaignData
	clicks    int64
	fail      map[string]error
	panicFor  string
	block     bool
	tokens    []string
	calls     atomic.Int32
}

func (f *fakeAdapter) ValidateCredentials(context.Context, models.Credentials) (bool, error) {
	return true, nil
}

func (f *fakeAdapter) FetchCampaigns(ctx context.Context, creds models.Credentials) ([]models.CampaignData, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.tokens = append(f.tokens, creds.AccessToken)
	f.mu.Unlock()
	if creds.AccountID == f.panicFor {
		panic("boom")
	}
	if err := f.fail[creds.AccountID]; err != nil {
		return nil, err
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.campaigns, nil
}

func (f *fakeAdapter) FetchMetrics(_ context.Context, _ models.Credentials, id string, r models.DateRange) ([]models.MetricData, error) {
	var out []models.MetricData
	for _, d := range r.Days() {
		md := models.NewMetricData(d, models.Counters{Impressions: 1000, Clicks: f.clicks, Spend: 10, Revenue: 25})
		md.Web = &models.WebCounters{Sessions: 30, ActiveUsers: 20, PageViews: 90}
		out = append(out, md)
	}
	return out, nil
}

func budget(f float64) *float64 { return &f }

func newFixture(t *testing.T, p models.Platform, a platforms.Adapter, opts ...Option) (*Syncer, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	reg := platforms.NewRegistry()
	reg.Register(p, a)
	cfg := config.Config{SyncWindowDays: 2, SyncConcurrency: 2, AdapterTimeout: time.Second}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewSyncer(st, reg, log, cfg, opts...), st
}

func addAccount(t *testing.T, st store.Store, tenant string, p models.Platform, ext, token string) models.ConnectedAccount {
	t.Helper()
	acc, err := st.UpsertAccount(context.Background(), models.ConnectedAccount{
		TenantID: tenant, Platform: p, ExternalID: ext, AccessToken: token,
	})
	require.NoError(t, err)
	return acc
}

func TestSyncAccountIsIdempotent(t *testing.T) {
	fa := &fakeAdapter{clicks: 50, campaigns: []models.CampaignData{
		{ExternalID: "c1", Name: "One", Status: models.CampaignActive, Budget: budget(100)},
		{ExternalID: "c2", Name: "Two", Status: models.CampaignPaused},
	}}
	s, st := newFixture(t, models.PlatformFacebook, fa)
	acc := addAccount(t, st, "t1", models.PlatformFacebook, "act", "tok")
	ctx := context.Background()

	rep, err := s.SyncAccount(ctx, "facebook", acc.ID, "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, StageDone, rep.Stage)
	assert.Equal(t, 2, rep.Campaigns)
	assert.Equal(t, 6, rep.MetricRows)

	fa.clicks = 80
	fa.campaigns[0].Name = "One renamed"
	_, err = s.SyncAccount(ctx, "FACEBOOK", acc.ID, "t1", nil)
	require.NoError(t, err)

	campaigns, err := st.ListCampaigns(ctx, store.CampaignFilter{TenantID: "t1"})
	require.NoError(t, err)
	require.Len(t, campaigns, 2)
	for _, c := range campaigns {
		assert.Equal(t, acc.ID, c.AccountID)
		if c.ExternalID == "c1" {
			assert.Equal(t, "One renamed", c.Name)
		}
	}

	rows, err := st.ListMetrics(ctx, store.MetricFilter{TenantID: "t1"})
	require.NoError(t, err)
	require.Len(t, rows, 6)
	for _, m := range rows {
		assert.Equal(t, int64(80), m.Clicks)
		assert.InDelta(t, 8.0, m.CTR, 1e-9)
		assert.False(t, m.IsMockData)
	}

	got, err := st.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSyncAt)
	assert.True(t, got.LastSyncAt.Equal(now))
}

func TestSyncPlatformIsolatesFailures(t *testing.T) {
	fa := &fakeAdapter{
		clicks:    10,
		campaigns: []models.CampaignData{{ExternalID: "c1", Name: "One", Status: models.CampaignActive}},
		fail:      map[string]error{"acc-2": errors.New("upstream 500")},
	}
	s, st := newFixture(t, models.PlatformTikTok, fa)
	a1 := addAccount(t, st, "t1", models.PlatformTikTok, "acc-1", "tok")
	a2 := addAccount(t, st, "t2", models.PlatformTikTok, "acc-2", "tok")
	a3 := addAccount(t, st, "t3", models.PlatformTikTok, "acc-3", "tok")

	res, err := s.SyncPlatform(context.Background(), "tiktok")
	require.NoError(t, err)
	assert.Equal(t, Result{Success: 2, Failed: 1}, res)

	for _, tenant := range []string{"t1", "t3"} {
		n, err := st.CountCampaigns(context.Background(), store.CampaignFilter{TenantID: tenant})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n, tenant)
	}
	n, err := st.CountCampaigns(context.Background(), store.CampaignFilter{TenantID: "t2"})
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, id := range []string{a1.ID, a3.ID} {
		acc, _ := st.GetAccount(context.Background(), id)
		assert.NotNil(t, acc.LastSyncAt)
	}
	failed, _ := st.GetAccount(context.Background(), a2.ID)
	assert.Nil(t, failed.LastSyncAt)
	assert.Equal(t, models.AccountStatusActive, failed.Status)
}

func TestSyncAccountRecoversPanic(t *testing.T) {
	fa := &fakeAdapter{panicFor: "bad"}
	s, st := newFixture(t, models.PlatformLineAds, fa)
	addAccount(t, st, "t1", models.PlatformLineAds, "bad", "tok")
	addAccount(t, st, "t1", models.PlatformLineAds, "good", "tok")

	res, err := s.SyncPlatform(context.Background(), "line_ads")
	require.NoError(t, err)
	assert.Equal(t, Result{Success: 1, Failed: 1}, res)
}

func TestSyncAccountReportsStage(t *testing.T) {
	fa := &fakeAdapter{fail: map[string]error{"x": errors.New("nope")}}
	s, st := newFixture(t, models.PlatformFacebook, fa)
	acc := addAccount(t, st, "t1", models.PlatformFacebook, "x", "tok")

	_, err := s.SyncAccount(context.Background(), "facebook", acc.ID, "t1", nil)
	var se *SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageFetchingCampaigns, se.Stage)
	assert.Equal(t, acc.ID, se.AccountID)
}

func TestSyncAccountEmptyTokenIsCredentialInvalid(t *testing.T) {
	fa := &fakeAdapter{}
	s, st := newFixture(t, models.PlatformFacebook, fa)
	acc := addAccount(t, st, "t1", models.PlatformFacebook, "x", "")

	_, err := s.SyncAccount(context.Background(), "facebook", acc.ID, "t1", nil)
	assert.ErrorIs(t, err, platforms.ErrCredentialInvalid)
	assert.Zero(t, fa.calls.Load())
}

func TestSyncAccountWrongTenant(t *testing.T) {
	s, st := newFixture(t, models.PlatformFacebook, &fakeAdapter{})
	acc := addAccount(t, st, "t1", models.PlatformFacebook, "x", "tok")

	_, err := s.SyncAccount(context.Background(), "facebook", acc.ID, "other", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSyncAccountUnsupportedPlatform(t *testing.T) {
	s, _ := newFixture(t, models.PlatformFacebook, &fakeAdapter{})
	_, err := s.SyncAccount(context.Background(), "myspace", "id", "t1", nil)
	assert.ErrorIs(t, err, platforms.ErrUnsupportedPlatform)

	_, err = s.SyncPlatform(context.Background(), "tiktok")
	assert.ErrorIs(t, err, platforms.ErrUnsupportedPlatform)
}

func TestSyncAnalyticsWritesPropertyRows(t *testing.T) {
	fa := &fakeAdapter{clicks: 30}
	s, st := newFixture(t, models.PlatformGoogleAnalytics, fa)
	acc := addAccount(t, st, "t1", models.PlatformGoogleAnalytics, "prop-1", "tok")

	rep, err := s.SyncAccount(context.Background(), "google_analytics", acc.ID, "t1", &acc)
	require.NoError(t, err)
	assert.Zero(t, rep.Campaigns)
	assert.Equal(t, 3, rep.MetricRows)

	w := models.LastNDays(now, 2)
	sum, err := st.SumWebAnalytics(context.Background(), "t1", w.Start, w.End)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.Rows)
	assert.Equal(t, int64(90), sum.Sessions)
	assert.Equal(t, int64(270), sum.PageViews)
}

func TestSyncAccountWithoutCampaignsStillTouches(t *testing.T) {
	s, st := newFixture(t, models.PlatformGoogleAds, &fakeAdapter{})
	acc := addAccount(t, st, "t1", models.PlatformGoogleAds, "123", "tok")
	assert.Equal(t, models.AccountStatusEnabled, acc.Status)

	rep, err := s.SyncAccount(context.Background(), "google_ads", acc.ID, "t1", nil)
	require.NoError(t, err)
	assert.Zero(t, rep.MetricRows)

	got, _ := st.GetAccount(context.Background(), acc.ID)
	assert.NotNil(t, got.LastSyncAt)
}

func TestSyncAccountTimesOut(t *testing.T) {
	fa := &fakeAdapter{block: true}
	s, st := newFixture(t, models.PlatformFacebook, fa)
	s.cfg.AdapterTimeout = 20 * time.Millisecond
	acc := addAccount(t, st, "t1", models.PlatformFacebook, "x", "tok")

	_, err := s.SyncAccount(context.Background(), "facebook", acc.ID, "t1", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSyncPlatformSkipsAfterCancel(t *testing.T) {
	s, st := newFixture(t, models.PlatformFacebook, &fakeAdapter{})
	addAccount(t, st, "t1", models.PlatformFacebook, "a", "tok")
	addAccount(t, st, "t1", models.PlatformFacebook, "b", "tok")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.SyncPlatform(ctx, "facebook")
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 2}, res)
}

func TestSyncPlatformIgnoresDisabledAccounts(t *testing.T) {
	fa := &fakeAdapter{}
	s, st := newFixture(t, models.PlatformFacebook, fa)
	acc := addAccount(t, st, "t1", models.PlatformFacebook, "a", "tok")
	require.NoError(t, st.SetAccountStatus(context.Background(), acc.ID, models.AccountStatusDisabled))

	res, err := s.SyncPlatform(context.Background(), "facebook")
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Zero(t, fa.calls.Load())
}

func TestConcurrentSyncsDoNotDuplicate(t *testing.T) {
	fa := &fakeAdapter{clicks: 5, campaigns: []models.CampaignData{{ExternalID: "c1", Name: "One"}}}
	s, st := newFixture(t, models.PlatformFacebook, fa)
	acc := addAccount(t, st, "t1", models.PlatformFacebook, "x", "tok")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SyncAccount(context.Background(), "facebook", acc.ID, "t1", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := st.CountCampaigns(context.Background(), store.CampaignFilter{TenantID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	rows, err := st.ListMetrics(context.Background(), store.MetricFilter{TenantID: "t1"})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestSyncOpensSealedTokens(t *testing.T) {
	c, err := secrets.New("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)
	sealed, err := c.Seal("plain-token")
	require.NoError(t, err)

	fa := &fakeAdapter{}
	s, st := newFixture(t, models.PlatformFacebook, fa, WithCipher(c))
	acc := addAccount(t, st, "t1", models.PlatformFacebook, "x", sealed)

	_, err = s.SyncAccount(context.Background(), "facebook", acc.ID, "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"plain-token"}, fa.tokens)
}

func TestSyncAllSumsPlatforms(t *testing.T) {
	st := store.NewMemoryStore()
	reg := platforms.NewRegistry()
	reg.Register(models.PlatformFacebook, &fakeAdapter{})
	reg.Register(models.PlatformTikTok, &fakeAdapter{fail: map[string]error{"bad": errors.New("x")}})
	s := NewSyncer(st, reg, slog.New(slog.NewTextHandler(io.Discard, nil)), config.Config{SyncWindowDays: 1}, WithClock(func() time.Time { return now }))

	addAccount(t, st, "t1", models.PlatformFacebook, "a", "tok")
	addAccount(t, st, "t1", models.PlatformTikTok, "bad", "tok")
	addAccount(t, st, "t1", models.PlatformTikTok, "good", "tok")

	sum, err := s.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Success: 1}, sum.Platforms[models.PlatformFacebook])
	assert.Equal(t, Result{Success: 1, Failed: 1}, sum.Platforms[models.PlatformTikTok])
	assert.Equal(t, Result{Success: 2, Failed: 1}, sum.Total)
}

func TestSyncMarksMockRows(t *testing.T) {
	s, st := newFixture(t, models.PlatformLineAds, platforms.NewLineAds(nil, "", true))
	acc := addAccount(t, st, "t1", models.PlatformLineAds, "line-acc", "tok")

	rep, err := s.SyncAccount(context.Background(), "line_ads", acc.ID, "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Campaigns)

	mock, err := st.HasMockMetrics(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, mock)
}
