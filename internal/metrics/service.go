// Package metrics builds the dashboard read models. Every ratio is derived
// from summed counters, never averaged across rows.
package metrics

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/AngelCh415/adsync/internal/models"
	"github.com/AngelCh415/adsync/internal/store"
)

type Service struct {
	st  store.Store
	now func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{st: st, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Totals are summed counters plus ratios derived from the sums. Sessions
// comes from analytics rows of the same window.
type Totals struct {
	models.Counters
	models.Ratios
	Sessions int64 `json:"sessions"`
}

func totalsOf(c models.Counters) Totals {
	return Totals{Counters: c, Ratios: models.Derive(c)}
}

// Trends holds the percent change of every Totals field.
type Trends struct {
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	Spend       float64 `json:"spend"`
	Conversions float64 `json:"conversions"`
	Revenue     float64 `json:"revenue"`
	Sessions    float64 `json:"sessions"`
	CTR         float64 `json:"ctr"`
	CPC         float64 `json:"cpc"`
	ROAS        float64 `json:"roas"`
}

// PercentChange is (cur-prev)/prev*100. With nothing to compare against it
// is 100 when cur grew from zero and 0 otherwise.
func PercentChange(cur, prev float64) float64 {
	if prev == 0 {
		if cur > 0 {
			return 100
		}
		return 0
	}
	return (cur - prev) / prev * 100
}

func CalculateTrends(cur, prev Totals) Trends {
	return Trends{
		Impressions: PercentChange(float64(cur.Impressions), float64(prev.Impressions)),
		Clicks:      PercentChange(float64(cur.Clicks), float64(prev.Clicks)),
		Spend:       PercentChange(cur.Spend, prev.Spend),
		Conversions: PercentChange(cur.Conversions, prev.Conversions),
		Revenue:     PercentChange(cur.Revenue, prev.Revenue),
		Sessions:    PercentChange(float64(cur.Sessions), float64(prev.Sessions)),
		CTR:         PercentChange(cur.CTR, prev.CTR),
		CPC:         PercentChange(cur.CPC, prev.CPC),
		ROAS:        PercentChange(cur.ROAS, prev.ROAS),
	}
}

// ParsePlatformFilter maps "", "ALL" or a platform name to a filter value.
func ParsePlatformFilter(s string) (models.Platform, error) {
	if s == "" || strings.EqualFold(s, "ALL") {
		return "", nil
	}
	p, ok := models.ParsePlatform(s)
	if !ok {
		return "", errors.New("unknown platform " + s)
	}
	return p, nil
}

// GetAggregatedMetrics sums every metric row of the tenant (optionally one
// platform) dated inside [from, to]. No rows yields zero totals.
func (s *Service) GetAggregatedMetrics(ctx context.Context, tenantID string, from, to time.Time, platform models.Platform) (Totals, error) {
	bs, err := s.st.SumMetrics(ctx, store.MetricFilter{TenantID: tenantID, Platform: platform, From: from, To: to}, store.GroupNone)
	if err != nil {
		return Totals{}, err
	}
	var c models.Counters
	for _, b := range bs {
		c = c.Add(b.Counters)
	}
	t := totalsOf(c)
	if platform == "" || platform.IsAnalytics() {
		web, err := s.st.SumWebAnalytics(ctx, tenantID, from, to)
		if err != nil {
			return Totals{}, err
		}
		t.Sessions = web.Sessions
	}
	return t, nil
}

// TrendReport is the shape the export layer consumes; keep it stable.
type TrendReport struct {
	Period    string    `json:"period"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Current   Totals    `json:"current"`
	Previous  *Totals   `json:"previous"`
	Trends    *Trends   `json:"trends"`
}

// GetMetricsTrends aggregates the trailing period ("7d", "30d") and, when
// compare is set, the period right before it.
func (s *Service) GetMetricsTrends(ctx context.Context, tenantID, period string, compare bool) (TrendReport, error) {
	days := models.ParsePeriodDays(period)
	w := models.LastNDays(s.now(), days)
	cur, err := s.GetAggregatedMetrics(ctx, tenantID, w.Start, w.End, "")
	if err != nil {
		return TrendReport{}, err
	}
	rep := TrendReport{Period: period, StartDate: w.Start, EndDate: w.End, Current: cur}
	if !compare {
		return rep, nil
	}
	pw := models.PreviousPeriod(w.Start, days)
	prev, err := s.GetAggregatedMetrics(ctx, tenantID, pw.Start, pw.End, "")
	if err != nil {
		return TrendReport{}, err
	}
	tr := CalculateTrends(cur, prev)
	rep.Previous, rep.Trends = &prev, &tr
	return rep, nil
}

type CampaignMetrics struct {
	ID       string                `json:"id"`
	Name     string                `json:"name"`
	Platform models.Platform       `json:"platform"`
	Status   models.CampaignStatus `json:"status"`
	Budget   *float64              `json:"budget"`
	Metrics  Totals                `json:"metrics"`
}

// GetTopCampaigns ranks campaigns by summed spend over the trailing window,
// ties broken by campaign id.
func (s *Service) GetTopCampaigns(ctx context.Context, tenantID string, limit, days int) ([]CampaignMetrics, error) {
	w := models.LastNDays(s.now(), days)
	bs, err := s.st.SumMetrics(ctx, store.MetricFilter{TenantID: tenantID, From: w.Start, To: w.End}, store.GroupCampaign)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(bs, func(i, j int) bool {
		if bs[i].Spend != bs[j].Spend {
			return bs[i].Spend > bs[j].Spend
		}
		return bs[i].CampaignID < bs[j].CampaignID
	})
	limit, _ = clampLimitOffset(limit, 0, len(bs))
	bs = paginate(bs, limit, 0)

	ids := make([]string, 0, len(bs))
	for _, b := range bs {
		ids = append(ids, b.CampaignID)
	}
	byID := map[string]models.Campaign{}
	if len(ids) > 0 {
		cs, err := s.st.ListCampaigns(ctx, store.CampaignFilter{TenantID: tenantID, IDs: ids})
		if err != nil {
			return nil, err
		}
		for _, c := range cs {
			byID[c.ID] = c
		}
	}

	out := make([]CampaignMetrics, 0, len(bs))
	for _, b := range bs {
		c := byID[b.CampaignID]
		out = append(out, CampaignMetrics{
			ID:       b.CampaignID,
			Name:     c.Name,
			Platform: c.Platform,
			Status:   c.Status,
			Budget:   c.Budget,
			Metrics:  totalsOf(b.Counters),
		})
	}
	return out, nil
}

type DailyPoint struct {
	Date string `json:"date"`
	Totals
}

type DailyReport struct {
	Period    string       `json:"period"`
	StartDate time.Time    `json:"startDate"`
	EndDate   time.Time    `json:"endDate"`
	Data      []DailyPoint `json:"data"`
}

// GetDailyMetrics returns one summed point per day with data, oldest first.
func (s *Service) GetDailyMetrics(ctx context.Context, tenantID, period string, platform models.Platform) (DailyReport, error) {
	w := models.LastNDays(s.now(), models.ParsePeriodDays(period))
	bs, err := s.st.SumMetrics(ctx, store.MetricFilter{TenantID: tenantID, Platform: platform, From: w.Start, To: w.End}, store.GroupDate)
	if err != nil {
		return DailyReport{}, err
	}
	return DailyReport{Period: period, StartDate: w.Start, EndDate: w.End, Data: dailyPoints(bs)}, nil
}

func dailyPoints(bs []store.Bucket) []DailyPoint {
	out := make([]DailyPoint, 0, len(bs))
	for _, b := range bs {
		out = append(out, DailyPoint{Date: b.Date.UTC().Format(models.DateLayout), Totals: totalsOf(b.Counters)})
	}
	return out
}

type CampaignPerformance struct {
	Campaign  models.Campaign `json:"campaign"`
	StartDate time.Time       `json:"startDate"`
	EndDate   time.Time       `json:"endDate"`
	Totals    Totals          `json:"totals"`
	Daily     []DailyPoint    `json:"daily"`
}

// GetCampaignPerformance returns totals and the daily series of one campaign.
// A campaign of another tenant is reported as not found.
func (s *Service) GetCampaignPerformance(ctx context.Context, tenantID, campaignID string, from, to time.Time) (CampaignPerformance, error) {
	c, err := s.st.GetCampaign(ctx, campaignID)
	if err != nil {
		return CampaignPerformance{}, err
	}
	if c.TenantID != tenantID {
		return CampaignPerformance{}, store.ErrNotFound
	}
	f := store.MetricFilter{TenantID: tenantID, CampaignID: campaignID, From: from, To: to}
	daily, err := s.st.SumMetrics(ctx, f, store.GroupDate)
	if err != nil {
		return CampaignPerformance{}, err
	}
	var sum models.Counters
	for _, b := range daily {
		sum = sum.Add(b.Counters)
	}
	return CampaignPerformance{
		Campaign:  c,
		StartDate: from,
		EndDate:   to,
		Totals:    totalsOf(sum),
		Daily:     dailyPoints(daily),
	}, nil
}

type Summary struct {
	Platform        string `json:"platform"`
	TotalCampaigns  int64  `json:"totalCampaigns"`
	ActiveCampaigns int64  `json:"activeCampaigns"`
	Totals
	IsMockData bool   `json:"isMockData"`
	Trends     Trends `json:"trends"`
}

// GetSummary is the dashboard header: campaign counts, window totals and
// trends against the previous window. An empty platform means all.
func (s *Service) GetSummary(ctx context.Context, tenantID string, days int, platform models.Platform) (Summary, error) {
	w := models.LastNDays(s.now(), days)
	pw := models.PreviousPeriod(w.Start, days)

	cf := store.CampaignFilter{TenantID: tenantID, Platform: platform}
	total, err := s.st.CountCampaigns(ctx, cf)
	if err != nil {
		return Summary{}, err
	}
	cf.Status = models.CampaignActive
	active, err := s.st.CountCampaigns(ctx, cf)
	if err != nil {
		return Summary{}, err
	}
	cur, err := s.GetAggregatedMetrics(ctx, tenantID, w.Start, w.End, platform)
	if err != nil {
		return Summary{}, err
	}
	prev, err := s.GetAggregatedMetrics(ctx, tenantID, pw.Start, pw.End, platform)
	if err != nil {
		return Summary{}, err
	}
	mock, err := s.st.HasMockMetrics(ctx, tenantID)
	if err != nil {
		return Summary{}, err
	}
	name := string(platform)
	if name == "" {
		name = "ALL"
	}
	return Summary{
		Platform:        name,
		TotalCampaigns:  total,
		ActiveCampaigns: active,
		Totals:          cur,
		IsMockData:      mock,
		Trends:          CalculateTrends(cur, prev),
	}, nil
}

type PlatformPerformance struct {
	Platform models.Platform `json:"platform"`
	Totals
}

// GetPerformanceByPlatform sums every ad platform plus one analytics row in
// which page views stand in for impressions and sessions for clicks.
func (s *Service) GetPerformanceByPlatform(ctx context.Context, tenantID string, days int) ([]PlatformPerformance, error) {
	w := models.LastNDays(s.now(), days)
	bs, err := s.st.SumMetrics(ctx, store.MetricFilter{TenantID: tenantID, From: w.Start, To: w.End}, store.GroupPlatform)
	if err != nil {
		return nil, err
	}
	byPlatform := map[models.Platform]models.Counters{}
	for _, b := range bs {
		byPlatform[b.Platform] = byPlatform[b.Platform].Add(b.Counters)
	}

	var out []PlatformPerformance
	for _, p := range models.Platforms {
		if p.IsAnalytics() {
			continue
		}
		out = append(out, PlatformPerformance{Platform: p, Totals: totalsOf(byPlatform[p])})
	}

	web, err := s.st.SumWebAnalytics(ctx, tenantID, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	ga := totalsOf(models.Counters{
		Impressions: web.PageViews,
		Clicks:      web.Sessions,
		Conversions: web.Conversions,
		Revenue:     web.Revenue,
	})
	ga.Sessions = web.Sessions
	out = append(out, PlatformPerformance{Platform: models.PlatformGoogleAnalytics, Totals: ga})
	return out, nil
}

func paginate[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func clampLimitOffset(limit, offset, n int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 5
	}
	if limit > 100 {
		limit = 100
	}
	if offset > n {
		offset = n
	}
	return limit, offset
}
