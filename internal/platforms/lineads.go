package platforms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/AngelCh415/adsync/internal/mockdata"
	"github.com/AngelCh415/adsync/internal/models"
)

// LineAds serves the mock catalog while useMock is set, otherwise it reads
// the LINE Ads v3 REST API with a bearer token.
type LineAds struct {
	c       HTTPClient
	baseURL string
	useMock bool
}

func NewLineAds(c HTTPClient, baseURL string, useMock bool) *LineAds {
	return &LineAds{c: c, baseURL: strings.TrimRight(baseURL, "/"), useMock: useMock}
}

type lineCampaignsResp struct {
	Datas []struct {
		ID            string  `json:"id"`
		Name          string  `json:"name"`
		ConfiguredSts string  `json:"configuredStatus"`
		BudgetAmount  float64 `json:"budgetAmount"`
		StartDate     string  `json:"startDate"`
		EndDate       string  `json:"endDate"`
	} `json:"datas"`
	Paging struct {
		Page       int `json:"page"`
		TotalPages int `json:"totalPages"`
	} `json:"paging"`
}

type lineReportResp struct {
	Datas []struct {
		Date        string  `json:"date"`
		Impressions int64   `json:"imp"`
		Clicks      int64   `json:"click"`
		Spend       float64 `json:"cost"`
		Conversions float64 `json:"cv"`
		Revenue     float64 `json:"conversionValue"`
	} `json:"datas"`
}

func (l *LineAds) header(creds models.Credentials) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+creds.AccessToken)
	return h
}

func (l *LineAds) ValidateCredentials(ctx context.Context, creds models.Credentials) (bool, error) {
	if creds.AccessToken == "" {
		return false, nil
	}
	if l.useMock {
		return true, nil
	}
	u := fmt.Sprintf("%s/v3/adaccounts/%s", l.baseURL, url.PathEscape(creds.AccountID))
	if err := getJSON(ctx, l.c, models.PlatformLineAds, u, l.header(creds), nil); err != nil {
		return rejected(err)
	}
	return true, nil
}

func (l *LineAds) FetchCampaigns(ctx context.Context, creds models.Credentials) ([]models.CampaignData, error) {
	if l.useMock {
		return mockdata.Campaigns(models.PlatformLineAds), nil
	}
	var out []models.CampaignData
	for page := 1; ; page++ {
		u := fmt.Sprintf("%s/v3/adaccounts/%s/campaigns?page=%d&size=100", l.baseURL, url.PathEscape(creds.AccountID), page)
		var resp lineCampaignsResp
		if err := getJSON(ctx, l.c, models.PlatformLineAds, u, l.header(creds), &resp); err != nil {
			return nil, fmt.Errorf("line ads campaigns: %w", err)
		}
		for _, c := range resp.Datas {
			var budget *float64
			if c.BudgetAmount > 0 {
				budget = optFloat(c.BudgetAmount)
			}
			out = append(out, models.CampaignData{
				ExternalID: c.ID,
				Name:       c.Name,
				Status:     lineStatus(c.ConfiguredSts),
				Budget:     budget,
				StartDate:  optTime(c.StartDate),
				EndDate:    optTime(c.EndDate),
			})
		}
		if page >= resp.Paging.TotalPages {
			return out, nil
		}
	}
}

func (l *LineAds) FetchMetrics(ctx context.Context, creds models.Credentials, id string, r models.DateRange) ([]models.MetricData, error) {
	if l.useMock {
		return clip(mockdata.AdRange(creds.AccountID+"/"+id, r), r), nil
	}
	q := url.Values{
		"since":       {day(r.Start)},
		"until":       {day(r.End)},
		"campaignIds": {id},
		"groupBy":     {"DAY"},
	}
	u := fmt.Sprintf("%s/v3/adaccounts/%s/reports/online/campaign?%s", l.baseURL, url.PathEscape(creds.AccountID), q.Encode())
	var resp lineReportResp
	if err := getJSON(ctx, l.c, models.PlatformLineAds, u, l.header(creds), &resp); err != nil {
		return nil, fmt.Errorf("line ads report for campaign %s: %w", id, err)
	}
	rows := make([]models.MetricData, 0, len(resp.Datas))
	for _, d := range resp.Datas {
		rows = append(rows, models.NewMetricData(parseTime(d.Date), models.Counters{
			Impressions: d.Impressions,
			Clicks:      d.Clicks,
			Spend:       d.Spend,
			Conversions: d.Conversions,
			Revenue:     d.Revenue,
		}))
	}
	return clip(rows, r), nil
}

func lineStatus(s string) models.CampaignStatus {
	switch strings.ToUpper(s) {
	case "ACTIVE":
		return models.CampaignActive
	case "PAUSED":
		return models.CampaignPaused
	case "ENDED":
		return models.CampaignEnded
	case "DELETED", "REMOVED":
		return models.CampaignDeleted
	default:
		return models.CampaignPaused
	}
}

// Mock reports whether rows come from the demo generator.
func (l *LineAds) Mock() bool { return l.useMock }
