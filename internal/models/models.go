package models

import (
	"strings"
	"time"
)

type Platform string

const (
	PlatformGoogleAds       Platform = "GOOGLE_ADS"
	PlatformFacebook        Platform = "FACEBOOK"
	PlatformGoogleAnalytics Platform = "GOOGLE_ANALYTICS"
	PlatformTikTok          Platform = "TIKTOK"
	PlatformLineAds         Platform = "LINE_ADS"
)

// Platforms lists every supported platform in sync order.
var Platforms = []Platform{
	PlatformGoogleAds,
	PlatformFacebook,
	PlatformGoogleAnalytics,
	PlatformTikTok,
	PlatformLineAds,
}

// ParsePlatform normalizes a user supplied identifier ("facebook", " Google_Ads ").
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Platforms {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// IsAnalytics reports whether the platform has no campaign concept and syncs
// property level metrics instead.
func (p Platform) IsAnalytics() bool { return p == PlatformGoogleAnalytics }

// ActiveStatus is the account status that marks a connection as syncable.
// Google Ads keeps its native "ENABLED" wording.
func (p Platform) ActiveStatus() string {
	if p == PlatformGoogleAds {
		return AccountStatusEnabled
	}
	return AccountStatusActive
}

const (
	AccountStatusEnabled  = "ENABLED"
	AccountStatusActive   = "ACTIVE"
	AccountStatusDisabled = "DISABLED"
)

type CampaignStatus string

const (
	CampaignDraft   CampaignStatus = "DRAFT"
	CampaignActive  CampaignStatus = "ACTIVE"
	CampaignPaused  CampaignStatus = "PAUSED"
	CampaignEnded   CampaignStatus = "ENDED"
	CampaignDeleted CampaignStatus = "DELETED"
)

// ConnectedAccount is one OAuth connection to an ad or analytics platform.
// ExternalID holds the platform native identity: customer id for Google Ads,
// ad account id for Facebook, advertiser id for TikTok and LINE, property id
// for Google Analytics.
type ConnectedAccount struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenantId"`
	Platform     Platform   `json:"platform"`
	ExternalID   string     `json:"externalId"`
	Name         string     `json:"name"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	Status       string     `json:"status"`
	LastSyncAt   *time.Time `json:"lastSyncAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Credentials is the platform agnostic shape handed to adapters. For
// analytics platforms AccountID carries the property id.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	AccountID    string
}

// Campaign is the unified campaign row. AccountID points at the
// ConnectedAccount that owns it; the account platform equals Platform.
type Campaign struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenantId"`
	Platform   Platform       `json:"platform"`
	ExternalID string         `json:"externalId"`
	AccountID  string         `json:"accountId"`
	Name       string         `json:"name"`
	Status     CampaignStatus `json:"status"`
	Budget     *float64       `json:"budget"`
	StartDate  *time.Time     `json:"startDate"`
	EndDate    *time.Time     `json:"endDate"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// CampaignData is what an adapter returns for a campaign, already mapped to
// the unified status space and decimal budget units.
type CampaignData struct {
	ExternalID string
	Name       string
	Status     CampaignStatus
	Budget     *float64
	StartDate  *time.Time
	EndDate    *time.Time
}

// Metric is the daily snapshot of one campaign.
type Metric struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaignId"`
	Date       time.Time `json:"date"`
	Counters
	Ratios
	IsMockData bool      `json:"isMockData"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// WebCounters are the analytics fields a property level adapter reports.
type WebCounters struct {
	Sessions       int64   `json:"sessions"`
	ActiveUsers    int64   `json:"activeUsers"`
	NewUsers       int64   `json:"newUsers"`
	PageViews      int64   `json:"pageViews"`
	EngagementRate float64 `json:"engagementRate"`
}

// MetricData is one day returned by an adapter. Web is only set by analytics
// adapters.
type MetricData struct {
	Date time.Time
	Counters
	Ratios
	Web *WebCounters
}

// WebAnalyticsDaily is the daily snapshot of one analytics property.
type WebAnalyticsDaily struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	PropertyID string    `json:"propertyId"`
	Date       time.Time `json:"date"`
	WebCounters
	Conversions float64   `json:"conversions"`
	Revenue     float64   `json:"revenue"`
	IsMockData  bool      `json:"isMockData"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// WebTotals sums WebAnalyticsDaily rows.
type WebTotals struct {
	Sessions    int64 `json:"sessions"`
	ActiveUsers int64 `json:"activeUsers"`
	NewUsers    int64 `json:"newUsers"`
	PageViews   int64 `json:"pageViews"`
}

type RuleType string

const (
	RulePreset RuleType = "PRESET"
	RuleCustom RuleType = "CUSTOM"
)

type Operator string

const (
	OpGT  Operator = "gt"
	OpLT  Operator = "lt"
	OpEQ  Operator = "eq"
	OpGTE Operator = "gte"
	OpLTE Operator = "lte"
)

func (o Operator) Valid() bool {
	switch o {
	case OpGT, OpLT, OpEQ, OpGTE, OpLTE:
		return true
	}
	return false
}

type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// AlertRule is a threshold check on an aggregated campaign metric. When
// BudgetRelative is set the threshold is a multiplier on the campaign budget.
type AlertRule struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenantId"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Type           RuleType  `json:"type"`
	Metric         string    `json:"metric"`
	Operator       Operator  `json:"operator"`
	Threshold      float64   `json:"threshold"`
	BudgetRelative bool      `json:"budgetRelative"`
	Severity       Severity  `json:"severity"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type AlertStatus string

const (
	AlertOpen         AlertStatus = "OPEN"
	AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertResolved     AlertStatus = "RESOLVED"
)

type Alert struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenantId"`
	RuleID     string         `json:"ruleId"`
	CampaignID string         `json:"campaignId"`
	Type       string         `json:"type"`
	Severity   Severity       `json:"severity"`
	Status     AlertStatus    `json:"status"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	ResolvedAt *time.Time     `json:"resolvedAt"`
}
