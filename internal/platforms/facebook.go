package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/AngelCh415/adsync/internal/models"
)

// Facebook reads campaigns and daily insights from the Graph Marketing API.
type Facebook struct {
	c       HTTPClient
	baseURL string
	version string
}

func NewFacebook(c HTTPClient, baseURL, version string) *Facebook {
	return &Facebook{c: c, baseURL: strings.TrimRight(baseURL, "/"), version: version}
}

type fbPaging struct {
	Next string `json:"next"`
}

type fbAction struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value"`
}

type fbCampaignsResp struct {
	Data []struct {
		ID             string `json:"id"`
		Name           string `json:"name"`
		Status         string `json:"status"`
		StartTime      string `json:"start_time"`
		StopTime       string `json:"stop_time"`
		DailyBudget    string `json:"daily_budget"`
		LifetimeBudget string `json:"lifetime_budget"`
	} `json:"data"`
	Paging fbPaging `json:"paging"`
}

type fbInsightsResp struct {
	Data []struct {
		DateStart    string     `json:"date_start"`
		Impressions  string     `json:"impressions"`
		Clicks       string     `json:"clicks"`
		Spend        string     `json:"spend"`
		Conversions  []fbAction `json:"conversions"`
		PurchaseROAS []fbAction `json:"purchase_roas"`
	} `json:"data"`
	Paging fbPaging `json:"paging"`
}

func (f *Facebook) endpoint(path string, q url.Values) string {
	return fmt.Sprintf("%s/%s/%s?%s", f.baseURL, f.version, strings.TrimLeft(path, "/"), q.Encode())
}

// adAccount adds the act_ prefix the Graph API expects on ad account ids.
func adAccount(id string) string {
	if strings.HasPrefix(id, "act_") {
		return id
	}
	return "act_" + id
}

func (f *Facebook) ValidateCredentials(ctx context.Context, creds models.Credentials) (bool, error) {
	if creds.AccessToken == "" {
		return false, nil
	}
	q := url.Values{"access_token": {creds.AccessToken}, "fields": {"id"}}
	if err := getJSON(ctx, f.c, models.PlatformFacebook, f.endpoint("me", q), nil, nil); err != nil {
		var apiErr *APIError
		// Graph answers 400 with an OAuthException for bad tokens.
		if errors.As(err, &apiErr) && apiErr.Status == 400 && strings.Contains(apiErr.Body, "OAuthException") {
			return false, nil
		}
		return rejected(err)
	}
	return true, nil
}

func (f *Facebook) FetchCampaigns(ctx context.Context, creds models.Credentials) ([]models.CampaignData, error) {
	q := url.Values{
		"access_token": {creds.AccessToken},
		"fields":       {"id,name,status,objective,start_time,stop_time,daily_budget,lifetime_budget"},
		"limit":        {"100"},
	}
	var out []models.CampaignData
	next := f.endpoint(adAccount(creds.AccountID)+"/campaigns", q)
	for next != "" {
		var page fbCampaignsResp
		if err := getJSON(ctx, f.c, models.PlatformFacebook, next, nil, &page); err != nil {
			return nil, fmt.Errorf("facebook campaigns: %w", err)
		}
		for _, c := range page.Data {
			out = append(out, models.CampaignData{
				ExternalID: c.ID,
				Name:       c.Name,
				Status:     facebookStatus(c.Status),
				Budget:     facebookBudget(c.DailyBudget, c.LifetimeBudget),
				StartDate:  optTime(c.StartTime),
				EndDate:    optTime(c.StopTime),
			})
		}
		next = page.Paging.Next
	}
	return out, nil
}

func (f *Facebook) FetchMetrics(ctx context.Context, creds models.Credentials, id string, r models.DateRange) ([]models.MetricData, error) {
	tr, _ := json.Marshal(map[string]string{"since": day(r.Start), "until": day(r.End)})
	q := url.Values{
		"access_token":   {creds.AccessToken},
		"fields":         {"impressions,clicks,spend,conversions,purchase_roas"},
		"time_range":     {string(tr)},
		"time_increment": {"1"},
		"limit":          {"500"},
	}
	var rows []models.MetricData
	next := f.endpoint(id+"/insights", q)
	for next != "" {
		var page fbInsightsResp
		if err := getJSON(ctx, f.c, models.PlatformFacebook, next, nil, &page); err != nil {
			return nil, fmt.Errorf("facebook insights for campaign %s: %w", id, err)
		}
		for _, m := range page.Data {
			spend := num(m.Spend)
			var roas float64
			if len(m.PurchaseROAS) > 0 {
				roas = num(m.PurchaseROAS[0].Value)
			}
			var conversions float64
			for _, a := range m.Conversions {
				conversions += num(a.Value)
			}
			rows = append(rows, models.NewMetricData(parseTime(m.DateStart), models.Counters{
				Impressions: integer(m.Impressions),
				Clicks:      integer(m.Clicks),
				Spend:       spend,
				Conversions: conversions,
				Revenue:     spend * roas,
			}))
		}
		next = page.Paging.Next
	}
	return clip(rows, r), nil
}

// facebookBudget converts minor currency units; daily wins over lifetime.
func facebookBudget(daily, lifetime string) *float64 {
	for _, v := range []string{daily, lifetime} {
		if n := num(v); n > 0 {
			return optFloat(n / 100)
		}
	}
	return nil
}

func facebookStatus(s string) models.CampaignStatus {
	switch strings.ToUpper(s) {
	case "ACTIVE":
		return models.CampaignActive
	case "PAUSED":
		return models.CampaignPaused
	case "DELETED", "ARCHIVED":
		return models.CampaignDeleted
	default:
		return models.CampaignPaused
	}
}
