package mockdata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AngelCh415/adsync/internal/models"
	"github.com/AngelCh415/adsync/internal/store"
)

// DefaultProperty is used for analytics rows when the tenant has no connected
// Google Analytics property.
const DefaultProperty = "mock-property"

type SeedResult struct {
	Campaigns  int `json:"campaigns"`
	MetricRows int `json:"metricRows"`
	WebRows    int `json:"webRows"`
}

type Seeder struct {
	st  store.Store
	log *slog.Logger
	now func() time.Time
}

func NewSeeder(st store.Store, log *slog.Logger) *Seeder {
	return &Seeder{st: st, log: log, now: time.Now}
}

// Seed writes mock daily rows over the trailing window for every campaign and
// analytics property of the tenant. A tenant without campaigns first gets the
// demo catalog under disabled demo accounts, which the sync never picks up.
func (s *Seeder) Seed(ctx context.Context, tenantID string, days int) (SeedResult, error) {
	var res SeedResult
	campaigns, err := s.st.ListCampaigns(ctx, store.CampaignFilter{TenantID: tenantID})
	if err != nil {
		return res, err
	}
	if len(campaigns) == 0 {
		if campaigns, err = s.seedCatalog(ctx, tenantID); err != nil {
			return res, err
		}
	}
	res.Campaigns = len(campaigns)

	window := models.LastNDays(s.now(), days)
	for _, c := range campaigns {
		for _, md := range AdRange(c.ID, window) {
			err := s.st.UpsertMetric(ctx, models.Metric{
				CampaignID: c.ID,
				Date:       md.Date,
				Counters:   md.Counters,
				Ratios:     md.Ratios,
				IsMockData: true,
			})
			if err != nil {
				return res, fmt.Errorf("seed metrics for campaign %s: %w", c.ID, err)
			}
			res.MetricRows++
		}
	}

	props, err := s.properties(ctx, tenantID)
	if err != nil {
		return res, err
	}
	for _, p := range props {
		for _, md := range WebRange(tenantID+"/"+p, window) {
			err := s.st.UpsertWebAnalytics(ctx, models.WebAnalyticsDaily{
				TenantID:    tenantID,
				PropertyID:  p,
				Date:        md.Date,
				WebCounters: *md.Web,
				Conversions: md.Conversions,
				Revenue:     md.Revenue,
				IsMockData:  true,
			})
			if err != nil {
				return res, fmt.Errorf("seed analytics for property %s: %w", p, err)
			}
			res.WebRows++
		}
	}
	s.log.InfoContext(ctx, "mock data seeded",
		slog.String("tenant_id", tenantID),
		slog.Int("campaigns", res.Campaigns),
		slog.Int("metric_rows", res.MetricRows),
		slog.Int("web_rows", res.WebRows))
	return res, nil
}

// Clear removes only rows flagged as mock data.
func (s *Seeder) Clear(ctx context.Context, tenantID string) (int64, error) {
	n, err := s.st.DeleteMockData(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	s.log.InfoContext(ctx, "mock data cleared", slog.String("tenant_id", tenantID), slog.Int64("rows", n))
	return n, nil
}

func (s *Seeder) seedCatalog(ctx context.Context, tenantID string) ([]models.Campaign, error) {
	var out []models.Campaign
	for _, p := range models.Platforms {
		ts := Templates(p)
		if len(ts) == 0 {
			continue
		}
		acc, err := s.st.UpsertAccount(ctx, models.ConnectedAccount{
			TenantID:   tenantID,
			Platform:   p,
			ExternalID: "mock-" + strings.ToLower(string(p)),
			Name:       "Demo " + string(p),
			Status:     models.AccountStatusDisabled,
		})
		if err != nil {
			return nil, err
		}
		for _, t := range ts {
			budget := t.Budget
			c, err := s.st.UpsertCampaign(ctx, models.Campaign{
				TenantID:   tenantID,
				Platform:   p,
				ExternalID: t.ExternalID,
				AccountID:  acc.ID,
				Name:       t.Name,
				Status:     t.Status,
				Budget:     &budget,
			})
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Seeder) properties(ctx context.Context, tenantID string) ([]string, error) {
	accs, err := s.st.ListAccounts(ctx, store.AccountFilter{TenantID: tenantID, Platform: models.PlatformGoogleAnalytics})
	if err != nil {
		return nil, err
	}
	if len(accs) == 0 {
		return []string{DefaultProperty}, nil
	}
	out := make([]string, 0, len(accs))
	for _, a := range accs {
		out = append(out, a.ExternalID)
	}
	return out, nil
}
