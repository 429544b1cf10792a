package store

import (
	"time"

	"gorm.io/datatypes"

	"github.com/AngelCh415/adsync/internal/models"
)

type accountRow struct {
	ID           string     `gorm:"primaryKey;size:64"`
	TenantID     string     `gorm:"size:64;not null;uniqueIndex:idx_account_identity,priority:1"`
	Platform     string     `gorm:"size:32;not null;uniqueIndex:idx_account_identity,priority:2"`
	ExternalID   string     `gorm:"size:128;not null;uniqueIndex:idx_account_identity,priority:3"`
	Name         string
	AccessToken  string
	RefreshToken string
	Status       string `gorm:"size:32;index"`
	LastSyncAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (accountRow) TableName() string { return "connected_accounts" }

type campaignRow struct {
	ID         string   `gorm:"primaryKey;size:64"`
	TenantID   string   `gorm:"size:64;not null;uniqueIndex:idx_campaign_identity,priority:1"`
	Platform   string   `gorm:"size:32;not null;uniqueIndex:idx_campaign_identity,priority:2"`
	ExternalID string   `gorm:"size:128;not null;uniqueIndex:idx_campaign_identity,priority:3"`
	AccountID  string   `gorm:"size:64;not null;index"`
	Name       string   `gorm:"not null"`
	Status     string   `gorm:"size:16;not null"`
	Budget     *float64 `gorm:"type:numeric(14,2)"`
	StartDate  *time.Time
	EndDate    *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (campaignRow) TableName() string { return "campaigns" }

type metricRow struct {
	ID          string    `gorm:"primaryKey;size:64"`
	CampaignID  string    `gorm:"size:64;not null;uniqueIndex:idx_metric_day,priority:1"`
	Date        time.Time `gorm:"type:date;not null;uniqueIndex:idx_metric_day,priority:2;index"`
	Impressions int64
	Clicks      int64
	Spend       float64
	Conversions float64
	Revenue     float64
	CTR         float64
	CPC         float64
	CPM         float64
	ROAS        float64
	IsMockData  bool `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Campaign campaignRow `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE"`
}

func (metricRow) TableName() string { return "metrics" }

type webAnalyticsRow struct {
	ID             string    `gorm:"primaryKey;size:64"`
	TenantID       string    `gorm:"size:64;not null;uniqueIndex:idx_web_day,priority:1"`
	PropertyID     string    `gorm:"size:128;not null;uniqueIndex:idx_web_day,priority:2"`
	Date           time.Time `gorm:"type:date;not null;uniqueIndex:idx_web_day,priority:3"`
	Sessions       int64
	ActiveUsers    int64
	NewUsers       int64
	PageViews      int64
	EngagementRate float64
	Conversions    float64
	Revenue        float64
	IsMockData     bool `gorm:"not null;default:false"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (webAnalyticsRow) TableName() string { return "web_analytics_daily" }

type ruleRow struct {
	ID             string `gorm:"primaryKey;size:64"`
	TenantID       string `gorm:"size:64;not null;uniqueIndex:idx_rule_name,priority:1"`
	Name           string `gorm:"not null;uniqueIndex:idx_rule_name,priority:2"`
	Description    string
	Type           string `gorm:"size:16;not null"`
	Metric         string `gorm:"size:32;not null"`
	Operator       string `gorm:"size:8;not null"`
	Threshold      float64
	BudgetRelative bool
	Severity       string `gorm:"size:16;not null"`
	IsActive       bool   `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ruleRow) TableName() string { return "alert_rules" }

// alertRow dedup lives in a partial unique index created by Migrate, gorm
// tags cannot express the WHERE clause.
type alertRow struct {
	ID         string `gorm:"primaryKey;size:64"`
	TenantID   string `gorm:"size:64;not null;index"`
	RuleID     string `gorm:"size:64;not null"`
	CampaignID string `gorm:"size:64;not null"`
	Type       string `gorm:"size:64;not null"`
	Severity   string `gorm:"size:16;not null"`
	Status     string `gorm:"size:16;not null;index"`
	Title      string
	Message    string
	Metadata   datatypes.JSONMap
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time
}

func (alertRow) TableName() string { return "alerts" }

func fromAccount(a models.ConnectedAccount) accountRow {
	return accountRow{
		ID: a.ID, TenantID: a.TenantID, Platform: string(a.Platform), ExternalID: a.ExternalID,
		Name: a.Name, AccessToken: a.AccessToken, RefreshToken: a.RefreshToken,
		Status: a.Status, LastSyncAt: a.LastSyncAt, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func (r accountRow) model() models.ConnectedAccount {
	return models.ConnectedAccount{
		ID: r.ID, TenantID: r.TenantID, Platform: models.Platform(r.Platform), ExternalID: r.ExternalID,
		Name: r.Name, AccessToken: r.AccessToken, RefreshToken: r.RefreshToken,
		Status: r.Status, LastSyncAt: r.LastSyncAt, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func fromCampaign(c models.Campaign) campaignRow {
	return campaignRow{
		ID: c.ID, TenantID: c.TenantID, Platform: string(c.Platform), ExternalID: c.ExternalID,
		AccountID: c.AccountID, Name: c.Name, Status: string(c.Status), Budget: c.Budget,
		StartDate: c.StartDate, EndDate: c.EndDate, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func (r campaignRow) model() models.Campaign {
	return models.Campaign{
		ID: r.ID, TenantID: r.TenantID, Platform: models.Platform(r.Platform), ExternalID: r.ExternalID,
		AccountID: r.AccountID, Name: r.Name, Status: models.CampaignStatus(r.Status), Budget: r.Budget,
		StartDate: r.StartDate, EndDate: r.EndDate, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func fromMetric(m models.Metric) metricRow {
	return metricRow{
		ID: m.ID, CampaignID: m.CampaignID, Date: day(m.Date),
		Impressions: m.Impressions, Clicks: m.Clicks, Spend: m.Spend,
		Conversions: m.Conversions, Revenue: m.Revenue,
		CTR: m.CTR, CPC: m.CPC, CPM: m.CPM, ROAS: m.ROAS,
		IsMockData: m.IsMockData, UpdatedAt: m.UpdatedAt,
	}
}

func (r metricRow) model() models.Metric {
	return models.Metric{
		ID: r.ID, CampaignID: r.CampaignID, Date: day(r.Date),
		Counters: models.Counters{
			Impressions: r.Impressions, Clicks: r.Clicks, Spend: r.Spend,
			Conversions: r.Conversions, Revenue: r.Revenue,
		},
		Ratios:     models.Ratios{CTR: r.CTR, CPC: r.CPC, CPM: r.CPM, ROAS: r.ROAS},
		IsMockData: r.IsMockData,
		UpdatedAt:  r.UpdatedAt,
	}
}

func fromWeb(w models.WebAnalyticsDaily) webAnalyticsRow {
	return webAnalyticsRow{
		ID: w.ID, TenantID: w.TenantID, PropertyID: w.PropertyID, Date: day(w.Date),
		Sessions: w.Sessions, ActiveUsers: w.ActiveUsers, NewUsers: w.NewUsers, PageViews: w.PageViews,
		EngagementRate: w.EngagementRate, Conversions: w.Conversions, Revenue: w.Revenue,
		IsMockData: w.IsMockData, UpdatedAt: w.UpdatedAt,
	}
}

func fromRule(r models.AlertRule) ruleRow {
	return ruleRow{
		ID: r.ID, TenantID: r.TenantID, Name: r.Name, Description: r.Description,
		Type: string(r.Type), Metric: r.Metric, Operator: string(r.Operator),
		Threshold: r.Threshold, BudgetRelative: r.BudgetRelative,
		Severity: string(r.Severity), IsActive: r.IsActive,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (r ruleRow) model() models.AlertRule {
	return models.AlertRule{
		ID: r.ID, TenantID: r.TenantID, Name: r.Name, Description: r.Description,
		Type: models.RuleType(r.Type), Metric: r.Metric, Operator: models.Operator(r.Operator),
		Threshold: r.Threshold, BudgetRelative: r.BudgetRelative,
		Severity: models.Severity(r.Severity), IsActive: r.IsActive,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func fromAlert(a models.Alert) alertRow {
	var meta datatypes.JSONMap
	if a.Metadata != nil {
		meta = datatypes.JSONMap(cloneMeta(a.Metadata))
	}
	return alertRow{
		ID: a.ID, TenantID: a.TenantID, RuleID: a.RuleID, CampaignID: a.CampaignID,
		Type: a.Type, Severity: string(a.Severity), Status: string(a.Status),
		Title: a.Title, Message: a.Message, Metadata: meta,
		CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt, ResolvedAt: a.ResolvedAt,
	}
}

func (r alertRow) model() models.Alert {
	var meta map[string]any
	if r.Metadata != nil {
		meta = map[string]any(r.Metadata)
	}
	return models.Alert{
		ID: r.ID, TenantID: r.TenantID, RuleID: r.RuleID, CampaignID: r.CampaignID,
		Type: r.Type, Severity: models.Severity(r.Severity), Status: models.AlertStatus(r.Status),
		Title: r.Title, Message: r.Message, Metadata: meta,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, ResolvedAt: r.ResolvedAt,
	}
}
