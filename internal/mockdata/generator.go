// Package mockdata produces deterministic demo campaigns and daily metrics.
// The same seed and day always yield the same numbers, so re-seeding or
// re-syncing a mock account is idempotent.
package mockdata

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"github.com/AngelCh415/adsync/internal/models"
)

type Template struct {
	Platform   models.Platform
	ExternalID string
	Name       string
	Status     models.CampaignStatus
	Budget     float64
}

var templates = []Template{
	{models.PlatformGoogleAds, "gads-001", "Google Search - Brand Keywords", models.CampaignActive, 50000},
	{models.PlatformGoogleAds, "gads-002", "Google Search - Generic Keywords", models.CampaignActive, 80000},
	{models.PlatformGoogleAds, "gads-003", "Display Remarketing", models.CampaignActive, 30000},
	{models.PlatformGoogleAds, "gads-004", "Google Shopping", models.CampaignPaused, 45000},
	{models.PlatformFacebook, "fb-001", "Facebook Lead Gen - Form", models.CampaignActive, 35000},
	{models.PlatformFacebook, "fb-002", "Facebook Video Views", models.CampaignActive, 25000},
	{models.PlatformFacebook, "fb-003", "Facebook Conversions - Website", models.CampaignPaused, 60000},
	{models.PlatformTikTok, "tiktok-001", "TikTok Awareness - Reach", models.CampaignActive, 40000},
	{models.PlatformTikTok, "tiktok-002", "TikTok Traffic - Website Visits", models.CampaignActive, 55000},
	{models.PlatformLineAds, "line-001", "LINE Ads - Brand Awareness", models.CampaignActive, 50000},
	{models.PlatformLineAds, "line-002", "LINE Ads - Lead Generation", models.CampaignActive, 75000},
	{models.PlatformLineAds, "line-003", "LINE Ads - Retargeting", models.CampaignPaused, 30000},
}

// Templates returns the campaign templates of one platform.
func Templates(p models.Platform) []Template {
	var out []Template
	for _, t := range templates {
		if t.Platform == p {
			out = append(out, t)
		}
	}
	return out
}

// Campaigns returns the templates of p in adapter form.
func Campaigns(p models.Platform) []models.CampaignData {
	ts := Templates(p)
	out := make([]models.CampaignData, 0, len(ts))
	for _, t := range ts {
		b := t.Budget
		out = append(out, models.CampaignData{
			ExternalID: t.ExternalID,
			Name:       t.Name,
			Status:     t.Status,
			Budget:     &b,
		})
	}
	return out
}

func rng(seed string, day time.Time) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(seed))
	return rand.New(rand.NewPCG(h.Sum64(), uint64(day.Unix())))
}

// AdDay generates one day of ad counters: 2-5% CTR, 2-5% conversion rate.
func AdDay(seed string, day time.Time) models.MetricData {
	day = models.DayUTC(day)
	r := rng(seed, day)
	impressions := int64(r.IntN(5000) + 1000)
	ctr := 0.02 + r.Float64()*0.03
	clicks := int64(float64(impressions) * ctr)
	spend := float64(r.IntN(500) + 100)
	conversions := math.Floor(float64(clicks) * (0.02 + r.Float64()*0.03))
	revenue := round2(conversions * (50 + r.Float64()*100))
	return models.NewMetricData(day, models.Counters{
		Impressions: impressions,
		Clicks:      clicks,
		Spend:       spend,
		Conversions: conversions,
		Revenue:     revenue,
	})
}

// WebDay generates one day of analytics counters.
func WebDay(seed string, day time.Time) models.MetricData {
	day = models.DayUTC(day)
	r := rng(seed, day)
	active := int64(r.IntN(1000) + 100)
	newUsers := int64(float64(active) * (0.3 + r.Float64()*0.2))
	sessions := int64(float64(active) * (1.2 + r.Float64()*0.5))
	views := int64(float64(sessions) * (2 + r.Float64()*3))
	engagement := round2(0.4 + r.Float64()*0.3)
	conversions := math.Floor(float64(sessions) * 0.01)
	revenue := round2(conversions * (40 + r.Float64()*60))

	md := models.NewMetricData(day, models.Counters{
		Impressions: active,
		Clicks:      sessions,
		Conversions: conversions,
		Revenue:     revenue,
	})
	md.Web = &models.WebCounters{
		Sessions:       sessions,
		ActiveUsers:    active,
		NewUsers:       newUsers,
		PageViews:      views,
		EngagementRate: engagement,
	}
	return md
}

// AdRange returns one AdDay per day of r.
func AdRange(seed string, r models.DateRange) []models.MetricData {
	days := r.Days()
	out := make([]models.MetricData, 0, len(days))
	for _, d := range days {
		out = append(out, AdDay(seed, d))
	}
	return out
}

// WebRange returns one WebDay per day of r.
func WebRange(seed string, r models.DateRange) []models.MetricData {
	days := r.Days()
	out := make([]models.MetricData, 0, len(days))
	for _, d := range days {
		out = append(out, WebDay(seed, d))
	}
	return out
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
