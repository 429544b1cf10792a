package store

import (
	"context"
	"errors"
	"time"

	"github.com/AngelCh415/adsync/internal/models"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
	// ErrInvalidTransition is returned when an alert is not in any of the
	// statuses a status change expects.
	ErrInvalidTransition = errors.New("invalid alert status transition")
)

type AccountFilter struct {
	TenantID string
	Platform models.Platform
	Status   string
}

type CampaignFilter struct {
	TenantID  string
	Platform  models.Platform
	AccountID string
	Status    models.CampaignStatus
	IDs       []string
}

// MetricFilter selects metric rows through their campaign. Zero From/To leave
// that side of the window open.
type MetricFilter struct {
	TenantID   string
	Platform   models.Platform
	CampaignID string
	From       time.Time
	To         time.Time
}

type GroupBy int

const (
	GroupNone GroupBy = iota
	GroupDate
	GroupCampaign
	GroupPlatform
)

// Bucket is one SUM(...) GROUP BY row. Only the key matching the GroupBy is
// populated. Rows is the number of metric rows summed.
type Bucket struct {
	Date       time.Time
	CampaignID string
	Platform   models.Platform
	Rows       int64
	models.Counters
}

type WebSum struct {
	models.WebTotals
	Conversions float64
	Revenue     float64
	Rows        int64
}

type RuleFilter struct {
	TenantID   string
	Type       models.RuleType
	ActiveOnly bool
}

type AlertFilter struct {
	TenantID   string
	Status     models.AlertStatus
	Severity   models.Severity
	CampaignID string
	Limit      int
}

// Store is the persistence contract. Upserts are keyed by natural identity:
// accounts by (tenant, platform, externalId), campaigns by
// (tenant, platform, externalId), metrics by (campaign, day) and analytics
// rows by (tenant, property, day). A lost insert race is an update, never an
// error.
type Store interface {
	UpsertAccount(ctx context.Context, a models.ConnectedAccount) (models.ConnectedAccount, error)
	GetAccount(ctx context.Context, id string) (models.ConnectedAccount, error)
	ListAccounts(ctx context.Context, f AccountFilter) ([]models.ConnectedAccount, error)
	SetAccountStatus(ctx context.Context, id, status string) error
	TouchAccountSync(ctx context.Context, id string, at time.Time) error

	UpsertCampaign(ctx context.Context, c models.Campaign) (models.Campaign, error)
	GetCampaign(ctx context.Context, id string) (models.Campaign, error)
	ListCampaigns(ctx context.Context, f CampaignFilter) ([]models.Campaign, error)
	CountCampaigns(ctx context.Context, f CampaignFilter) (int64, error)

	UpsertMetric(ctx context.Context, m models.Metric) error
	ListMetrics(ctx context.Context, f MetricFilter) ([]models.Metric, error)
	SumMetrics(ctx context.Context, f MetricFilter, g GroupBy) ([]Bucket, error)
	HasMockMetrics(ctx context.Context, tenantID string) (bool, error)

	UpsertWebAnalytics(ctx context.Context, w models.WebAnalyticsDaily) error
	SumWebAnalytics(ctx context.Context, tenantID string, from, to time.Time) (WebSum, error)

	// DeleteMockData removes mock metric and analytics rows of a tenant and
	// reports how many rows went away.
	DeleteMockData(ctx context.Context, tenantID string) (int64, error)

	CreateRule(ctx context.Context, r models.AlertRule) (models.AlertRule, error)
	GetRule(ctx context.Context, id string) (models.AlertRule, error)
	ListRules(ctx context.Context, f RuleFilter) ([]models.AlertRule, error)
	UpdateRule(ctx context.Context, r models.AlertRule) (models.AlertRule, error)
	DeleteRule(ctx context.Context, id string) error
	ListTenantsWithRules(ctx context.Context) ([]string, error)

	// CreateAlertIfAbsent inserts a unless a non resolved alert already exists
	// for (tenant, campaign, type). created is false when a was deduplicated;
	// the returned alert is then the existing one.
	CreateAlertIfAbsent(ctx context.Context, a models.Alert) (alert models.Alert, created bool, err error)
	GetAlert(ctx context.Context, id string) (models.Alert, error)
	ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error)
	// SetAlertStatus moves an alert to status only while its current status is
	// one of from, atomically. Otherwise it returns ErrInvalidTransition.
	SetAlertStatus(ctx context.Context, id string, from []models.AlertStatus, status models.AlertStatus, at time.Time) (models.Alert, error)
	ResolveAlerts(ctx context.Context, tenantID string, at time.Time) (int64, error)
	CountOpenAlerts(ctx context.Context, tenantID string) (map[models.Severity]int64, error)
}

func inWindow(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
