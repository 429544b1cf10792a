package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/AngelCh415/adsync/internal/models"
)

// GoogleAds talks to the Google Ads REST search endpoint with GAQL queries.
type GoogleAds struct {
	c              HTTPClient
	baseURL        string
	developerToken string
}

func NewGoogleAds(c HTTPClient, baseURL, developerToken string) *GoogleAds {
	return &GoogleAds{c: c, baseURL: strings.TrimRight(baseURL, "/"), developerToken: developerToken}
}

type gadsSearchResp struct {
	Results []struct {
		Campaign struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Status    string `json:"status"`
			StartDate string `json:"startDate"`
			EndDate   string `json:"endDate"`
		} `json:"campaign"`
		CampaignBudget struct {
			AmountMicros int64 `json:"amountMicros,string"`
		} `json:"campaignBudget"`
		Segments struct {
			Date string `json:"date"`
		} `json:"segments"`
		Metrics struct {
			Impressions      int64   `json:"impressions,string"`
			Clicks           int64   `json:"clicks,string"`
			CostMicros       int64   `json:"costMicros,string"`
			Conversions      float64 `json:"conversions"`
			ConversionsValue float64 `json:"conversionsValue"`
		} `json:"metrics"`
	} `json:"results"`
	NextPageToken string `json:"nextPageToken"`
}

const micros = 1e6

func (g *GoogleAds) header(creds models.Credentials) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+creds.AccessToken)
	h.Set("developer-token", g.developerToken)
	h.Set("Content-Type", "application/json")
	return h
}

func customerID(s string) string { return strings.ReplaceAll(strings.TrimSpace(s), "-", "") }

func (g *GoogleAds) ValidateCredentials(ctx context.Context, creds models.Credentials) (bool, error) {
	if creds.AccessToken == "" {
		return false, nil
	}
	err := getJSON(ctx, g.c, models.PlatformGoogleAds, g.baseURL+"/customers:listAccessibleCustomers", g.header(creds), nil)
	if err != nil {
		return rejected(err)
	}
	return true, nil
}

// search pages through a GAQL query and hands every page to fn.
func (g *GoogleAds) search(ctx context.Context, creds models.Credentials, query string, fn func(*gadsSearchResp)) error {
	url := fmt.Sprintf("%s/customers/%s/googleAds:search", g.baseURL, customerID(creds.AccountID))
	token := ""
	for {
		body, _ := json.Marshal(map[string]string{"query": query, "pageToken": token})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header = g.header(creds)
		var page gadsSearchResp
		if err := doJSON(g.c, models.PlatformGoogleAds, req, &page); err != nil {
			return err
		}
		fn(&page)
		if page.NextPageToken == "" {
			return nil
		}
		token = page.NextPageToken
	}
}

func (g *GoogleAds) FetchCampaigns(ctx context.Context, creds models.Credentials) ([]models.CampaignData, error) {
	const q = `SELECT campaign.id, campaign.name, campaign.status, campaign.start_date, campaign.end_date, campaign_budget.amount_micros FROM campaign`
	var out []models.CampaignData
	err := g.search(ctx, creds, q, func(p *gadsSearchResp) {
		for _, r := range p.Results {
			var budget *float64
			if r.CampaignBudget.AmountMicros > 0 {
				budget = optFloat(float64(r.CampaignBudget.AmountMicros) / micros)
			}
			out = append(out, models.CampaignData{
				ExternalID: r.Campaign.ID,
				Name:       r.Campaign.Name,
				Status:     googleAdsStatus(r.Campaign.Status),
				Budget:     budget,
				StartDate:  optTime(r.Campaign.StartDate),
				EndDate:    optTime(r.Campaign.EndDate),
			})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("google ads campaigns: %w", err)
	}
	return out, nil
}

func (g *GoogleAds) FetchMetrics(ctx context.Context, creds models.Credentials, id string, r models.DateRange) ([]models.MetricData, error) {
	q := fmt.Sprintf(`SELECT segments.date, metrics.impressions, metrics.clicks, metrics.cost_micros, metrics.conversions, metrics.conversions_value FROM campaign WHERE campaign.id = %s AND segments.date BETWEEN '%s' AND '%s'`,
		gaqlID(id), day(r.Start), day(r.End))
	var rows []models.MetricData
	err := g.search(ctx, creds, q, func(p *gadsSearchResp) {
		for _, res := range p.Results {
			m := res.Metrics
			rows = append(rows, models.NewMetricData(parseTime(res.Segments.Date), models.Counters{
				Impressions: m.Impressions,
				Clicks:      m.Clicks,
				Spend:       float64(m.CostMicros) / micros,
				Conversions: m.Conversions,
				Revenue:     m.ConversionsValue,
			}))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("google ads metrics for campaign %s: %w", id, err)
	}
	return clip(rows, r), nil
}

// gaqlID keeps only digits so an id can be inlined into a query.
func gaqlID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "0"
	}
	return b.String()
}

func googleAdsStatus(s string) models.CampaignStatus {
	switch strings.ToUpper(s) {
	case "ENABLED":
		return models.CampaignActive
	case "PAUSED":
		return models.CampaignPaused
	case "REMOVED":
		return models.CampaignDeleted
	default:
		return models.CampaignPaused
	}
}
