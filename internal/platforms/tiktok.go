package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/AngelCh415/adsync/internal/models"
)

const (
	TikTokProductionURL = "https://business-api.tiktok.com/open_api/v1.3"
	TikTokSandboxURL    = "https://sandbox-ads.tiktok.com/open_api/v1.3"
)

// TikTok reads campaigns and integrated reports from the TikTok Business API.
// The API answers 200 with a non-zero code on failure.
type TikTok struct {
	c       HTTPClient
	baseURL string
}

func NewTikTok(c HTTPClient, baseURL string) *TikTok {
	return &TikTok{c: c, baseURL: strings.TrimRight(baseURL, "/")}
}

type ttEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type ttPageInfo struct {
	Page      int `json:"page"`
	TotalPage int `json:"total_page"`
}

type ttCampaigns struct {
	List []struct {
		CampaignID      string  `json:"campaign_id"`
		CampaignName    string  `json:"campaign_name"`
		OperationStatus string  `json:"operation_status"`
		Budget          float64 `json:"budget"`
		BudgetMode      string  `json:"budget_mode"`
	} `json:"list"`
	PageInfo ttPageInfo `json:"page_info"`
}

type ttReport struct {
	List []struct {
		Dimensions map[string]string `json:"dimensions"`
		Metrics    map[string]string `json:"metrics"`
	} `json:"list"`
	PageInfo ttPageInfo `json:"page_info"`
}

// auth failures reported in the envelope code
var ttAuthCodes = map[int]bool{40001: true, 40100: true, 40102: true, 40104: true, 40105: true}

func (t *TikTok) call(ctx context.Context, creds models.Credentials, path string, q url.Values, v any) error {
	h := http.Header{}
	h.Set("Access-Token", creds.AccessToken)
	var env ttEnvelope
	if err := getJSON(ctx, t.c, models.PlatformTikTok, t.baseURL+path+"?"+q.Encode(), h, &env); err != nil {
		return err
	}
	if env.Code != 0 {
		status := http.StatusOK
		if ttAuthCodes[env.Code] {
			status = http.StatusUnauthorized
		}
		return &APIError{Platform: models.PlatformTikTok, Status: status, Code: env.Code, Body: env.Message}
	}
	if v == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, v)
}

func (t *TikTok) ValidateCredentials(ctx context.Context, creds models.Credentials) (bool, error) {
	if creds.AccessToken == "" {
		return false, nil
	}
	ids, _ := json.Marshal([]string{creds.AccountID})
	if err := t.call(ctx, creds, "/advertiser/info/", url.Values{"advertiser_ids": {string(ids)}}, nil); err != nil {
		return rejected(err)
	}
	return true, nil
}

func (t *TikTok) FetchCampaigns(ctx context.Context, creds models.Credentials) ([]models.CampaignData, error) {
	var out []models.CampaignData
	for page := 1; ; page++ {
		q := url.Values{
			"advertiser_id": {creds.AccountID},
			"page":          {strconv.Itoa(page)},
			"page_size":     {"100"},
		}
		var data ttCampaigns
		if err := t.call(ctx, creds, "/campaign/get/", q, &data); err != nil {
			return nil, fmt.Errorf("tiktok campaigns: %w", err)
		}
		for _, c := range data.List {
			var budget *float64
			if c.BudgetMode != "BUDGET_MODE_INFINITE" && c.Budget > 0 {
				budget = optFloat(c.Budget)
			}
			out = append(out, models.CampaignData{
				ExternalID: c.CampaignID,
				Name:       c.CampaignName,
				Status:     tiktokStatus(c.OperationStatus),
				Budget:     budget,
			})
		}
		if page >= data.PageInfo.TotalPage {
			return out, nil
		}
	}
}

func (t *TikTok) FetchMetrics(ctx context.Context, creds models.Credentials, id string, r models.DateRange) ([]models.MetricData, error) {
	dims, _ := json.Marshal([]string{"campaign_id", "stat_time_day"})
	mets, _ := json.Marshal([]string{"spend", "impressions", "clicks", "conversion", "complete_payment_roas"})
	filter, _ := json.Marshal([]map[string]string{{
		"field_name":   "campaign_ids",
		"filter_type":  "IN",
		"filter_value": fmt.Sprintf("[%q]", id),
	}})
	var rows []models.MetricData
	for page := 1; ; page++ {
		q := url.Values{
			"advertiser_id": {creds.AccountID},
			"report_type":   {"BASIC"},
			"data_level":    {"AUCTION_CAMPAIGN"},
			"dimensions":    {string(dims)},
			"metrics":       {string(mets)},
			"filtering":     {string(filter)},
			"start_date":    {day(r.Start)},
			"end_date":      {day(r.End)},
			"page":          {strconv.Itoa(page)},
			"page_size":     {"1000"},
		}
		var data ttReport
		if err := t.call(ctx, creds, "/report/integrated/get/", q, &data); err != nil {
			return nil, fmt.Errorf("tiktok report for campaign %s: %w", id, err)
		}
		for _, row := range data.List {
			m := row.Metrics
			spend := num(m["spend"])
			rows = append(rows, models.NewMetricData(parseTime(row.Dimensions["stat_time_day"]), models.Counters{
				Impressions: integer(m["impressions"]),
				Clicks:      integer(m["clicks"]),
				Spend:       spend,
				Conversions: num(m["conversion"]),
				Revenue:     spend * num(m["complete_payment_roas"]),
			}))
		}
		if page >= data.PageInfo.TotalPage {
			break
		}
	}
	return clip(rows, r), nil
}

func tiktokStatus(s string) models.CampaignStatus {
	switch strings.ToUpper(s) {
	case "ENABLE":
		return models.CampaignActive
	case "DISABLE":
		return models.CampaignPaused
	case "DELETE":
		return models.CampaignDeleted
	default:
		return models.CampaignPaused
	}
}
