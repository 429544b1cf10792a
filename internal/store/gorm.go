package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AngelCh415/adsync/internal/models"
	"github.com/AngelCh415/adsync/internal/utils"
)

// GormStore is the Postgres implementation of Store.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Connect opens a pooled Postgres connection, retrying the initial ping with
// exponential backoff while the database comes up.
func Connect(ctx context.Context, log *slog.Logger, databaseURL string, maxConns, retries int) (*gorm.DB, error) {
	var db *gorm.DB
	err := utils.NewBackoff(500*time.Millisecond, retries).Do(ctx, func(i int) error {
		var err error
		db, err = open(ctx, databaseURL, maxConns)
		if err != nil {
			log.Warn("postgres connect failed", slog.Int("attempt", i+1), slog.String("err", err.Error()))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info("postgres connected")
	return db, nil
}

func open(ctx context.Context, databaseURL string, maxConns int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns / 2)
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(ctx context.Context, db *gorm.DB) error {
	db = db.WithContext(ctx)
	if err := db.AutoMigrate(&accountRow{}, &campaignRow{}, &metricRow{}, &webAnalyticsRow{}, &ruleRow{}, &alertRow{}); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_alert_unresolved
		ON alerts (tenant_id, campaign_id, type) WHERE status <> 'RESOLVED'`).Error; err != nil {
		return fmt.Errorf("alert dedup index: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func orphan(err error) error {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return ErrNotFound
	}
	return err
}

func conflict(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return err
}

func (s *GormStore) UpsertAccount(ctx context.Context, a models.ConnectedAccount) (models.ConnectedAccount, error) {
	now := s.now()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	set := map[string]any{
		"name":          a.Name,
		"access_token":  a.AccessToken,
		"refresh_token": a.RefreshToken,
		"updated_at":    now,
	}
	if a.Status != "" {
		set["status"] = a.Status
	} else {
		a.Status = a.Platform.ActiveStatus()
	}
	a.CreatedAt, a.UpdatedAt = now, now
	row := fromAccount(a)
	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "platform"}, {Name: "external_id"}},
		DoUpdates: clause.Assignments(set),
	}).Create(&row).Error
	if err != nil {
		return models.ConnectedAccount{}, err
	}
	var out accountRow
	err = db.Where("tenant_id = ? AND platform = ? AND external_id = ?", row.TenantID, row.Platform, row.ExternalID).
		First(&out).Error
	return out.model(), notFound(err)
}

func (s *GormStore) GetAccount(ctx context.Context, id string) (models.ConnectedAccount, error) {
	var row accountRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return models.ConnectedAccount{}, notFound(err)
	}
	return row.model(), nil
}

func (s *GormStore) ListAccounts(ctx context.Context, f AccountFilter) ([]models.ConnectedAccount, error) {
	q := s.db.WithContext(ctx).Model(&accountRow{})
	if f.TenantID != "" {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if f.Platform != "" {
		q = q.Where("platform = ?", string(f.Platform))
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var rows []accountRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.ConnectedAccount, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *GormStore) SetAccountStatus(ctx context.Context, id, status string) error {
	return s.updateAccount(ctx, id, map[string]any{"status": status, "updated_at": s.now()})
}

func (s *GormStore) TouchAccountSync(ctx context.Context, id string, at time.Time) error {
	return s.updateAccount(ctx, id, map[string]any{"last_sync_at": at.UTC(), "updated_at": s.now()})
}

func (s *GormStore) updateAccount(ctx context.Context, id string, set map[string]any) error {
	res := s.db.WithContext(ctx).Model(&accountRow{}).Where("id = ?", id).Updates(set)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) UpsertCampaign(ctx context.Context, c models.Campaign) (models.Campaign, error) {
	now := s.now()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt, c.UpdatedAt = now, now
	row := fromCampaign(c)
	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "platform"}, {Name: "external_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"account_id": row.AccountID,
			"name":       row.Name,
			"status":     row.Status,
			"budget":     row.Budget,
			"start_date": row.StartDate,
			"end_date":   row.EndDate,
			"updated_at": now,
		}),
	}).Create(&row).Error
	if err != nil {
		return models.Campaign{}, err
	}
	var out campaignRow
	err = db.Where("tenant_id = ? AND platform = ? AND external_id = ?", row.TenantID, row.Platform, row.ExternalID).
		First(&out).Error
	return out.model(), notFound(err)
}

func (s *GormStore) GetCampaign(ctx context.Context, id string) (models.Campaign, error) {
	var row campaignRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return models.Campaign{}, notFound(err)
	}
	return row.model(), nil
}

func (s *GormStore) campaignQuery(ctx context.Context, f CampaignFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&campaignRow{})
	if f.TenantID != "" {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if f.Platform != "" {
		q = q.Where("platform = ?", string(f.Platform))
	}
	if f.AccountID != "" {
		q = q.Where("account_id = ?", f.AccountID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	return q
}

func (s *GormStore) ListCampaigns(ctx context.Context, f CampaignFilter) ([]models.Campaign, error) {
	var rows []campaignRow
	if err := s.campaignQuery(ctx, f).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Campaign, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *GormStore) CountCampaigns(ctx context.Context, f CampaignFilter) (int64, error) {
	var n int64
	err := s.campaignQuery(ctx, f).Count(&n).Error
	return n, err
}

func (s *GormStore) UpsertMetric(ctx context.Context, m models.Metric) error {
	now := s.now()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.UpdatedAt = now
	row := fromMetric(m)
	row.CreatedAt = now
	err := s.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "campaign_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"impressions":  row.Impressions,
			"clicks":       row.Clicks,
			"spend":        row.Spend,
			"conversions":  row.Conversions,
			"revenue":      row.Revenue,
			"ctr":          row.CTR,
			"cpc":          row.CPC,
			"cpm":          row.CPM,
			"roas":         row.ROAS,
			"is_mock_data": row.IsMockData,
			"updated_at":   now,
		}),
	}).Create(&row).Error
	return orphan(err)
}

// metricQuery joins metrics to their campaign so tenant and platform filters
// apply. Aliases are m and c.
func (s *GormStore) metricQuery(ctx context.Context, f MetricFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Table("metrics AS m").Joins("JOIN campaigns AS c ON c.id = m.campaign_id")
	if f.TenantID != "" {
		q = q.Where("c.tenant_id = ?", f.TenantID)
	}
	if f.Platform != "" {
		q = q.Where("c.platform = ?", string(f.Platform))
	}
	if f.CampaignID != "" {
		q = q.Where("m.campaign_id = ?", f.CampaignID)
	}
	if !f.From.IsZero() {
		q = q.Where("m.date >= ?", day(f.From))
	}
	if !f.To.IsZero() {
		q = q.Where("m.date <= ?", day(f.To))
	}
	return q
}

func (s *GormStore) ListMetrics(ctx context.Context, f MetricFilter) ([]models.Metric, error) {
	var rows []metricRow
	if err := s.metricQuery(ctx, f).Select("m.*").Order("m.date, m.campaign_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Metric, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

type bucketRow struct {
	Date        time.Time
	CampaignID  string
	Platform    string
	RowCount    int64
	Impressions int64
	Clicks      int64
	Spend       float64
	Conversions float64
	Revenue     float64
}

const sumColumns = `COUNT(*) AS row_count,
	COALESCE(SUM(m.impressions), 0) AS impressions,
	COALESCE(SUM(m.clicks), 0) AS clicks,
	COALESCE(SUM(m.spend), 0) AS spend,
	COALESCE(SUM(m.conversions), 0) AS conversions,
	COALESCE(SUM(m.revenue), 0) AS revenue`

func (s *GormStore) SumMetrics(ctx context.Context, f MetricFilter, g GroupBy) ([]Bucket, error) {
	q := s.metricQuery(ctx, f)
	switch g {
	case GroupDate:
		q = q.Select("m.date AS date, " + sumColumns).Group("m.date").Order("m.date")
	case GroupCampaign:
		q = q.Select("m.campaign_id AS campaign_id, " + sumColumns).Group("m.campaign_id").Order("m.campaign_id")
	case GroupPlatform:
		q = q.Select("c.platform AS platform, " + sumColumns).Group("c.platform").Order("c.platform")
	default:
		q = q.Select(sumColumns)
	}
	var rows []bucketRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Bucket, 0, len(rows))
	for _, r := range rows {
		b := Bucket{
			CampaignID: r.CampaignID,
			Platform:   models.Platform(r.Platform),
			Rows:       r.RowCount,
			Counters: models.Counters{
				Impressions: r.Impressions, Clicks: r.Clicks, Spend: r.Spend,
				Conversions: r.Conversions, Revenue: r.Revenue,
			},
		}
		if g == GroupDate {
			b.Date = day(r.Date)
		}
		out = append(out, b)
	}
	if g == GroupNone && len(out) == 0 {
		out = append(out, Bucket{})
	}
	return out, nil
}

func (s *GormStore) HasMockMetrics(ctx context.Context, tenantID string) (bool, error) {
	var n int64
	err := s.metricQuery(ctx, MetricFilter{TenantID: tenantID}).Where("m.is_mock_data = ?", true).Count(&n).Error
	return n > 0, err
}

func (s *GormStore) UpsertWebAnalytics(ctx context.Context, w models.WebAnalyticsDaily) error {
	now := s.now()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w.UpdatedAt = now
	row := fromWeb(w)
	row.CreatedAt = now
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "property_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"sessions":        row.Sessions,
			"active_users":    row.ActiveUsers,
			"new_users":       row.NewUsers,
			"page_views":      row.PageViews,
			"engagement_rate": row.EngagementRate,
			"conversions":     row.Conversions,
			"revenue":         row.Revenue,
			"is_mock_data":    row.IsMockData,
			"updated_at":      now,
		}),
	}).Create(&row).Error
}

func (s *GormStore) SumWebAnalytics(ctx context.Context, tenantID string, from, to time.Time) (WebSum, error) {
	q := s.db.WithContext(ctx).Model(&webAnalyticsRow{}).Where("tenant_id = ?", tenantID)
	if !from.IsZero() {
		q = q.Where("date >= ?", day(from))
	}
	if !to.IsZero() {
		q = q.Where("date <= ?", day(to))
	}
	var r struct {
		RowCount    int64
		Sessions    int64
		ActiveUsers int64
		NewUsers    int64
		PageViews   int64
		Conversions float64
		Revenue     float64
	}
	err := q.Select(`COUNT(*) AS row_count,
		COALESCE(SUM(sessions), 0) AS sessions,
		COALESCE(SUM(active_users), 0) AS active_users,
		COALESCE(SUM(new_users), 0) AS new_users,
		COALESCE(SUM(page_views), 0) AS page_views,
		COALESCE(SUM(conversions), 0) AS conversions,
		COALESCE(SUM(revenue), 0) AS revenue`).Scan(&r).Error
	if err != nil {
		return WebSum{}, err
	}
	return WebSum{
		WebTotals: models.WebTotals{
			Sessions: r.Sessions, ActiveUsers: r.ActiveUsers, NewUsers: r.NewUsers, PageViews: r.PageViews,
		},
		Conversions: r.Conversions,
		Revenue:     r.Revenue,
		Rows:        r.RowCount,
	}, nil
}

func (s *GormStore) DeleteMockData(ctx context.Context, tenantID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := tx.Model(&campaignRow{}).Select("id").Where("tenant_id = ?", tenantID)
		res := tx.Where("is_mock_data = ? AND campaign_id IN (?)", true, ids).Delete(&metricRow{})
		if res.Error != nil {
			return res.Error
		}
		n += res.RowsAffected
		res = tx.Where("is_mock_data = ? AND tenant_id = ?", true, tenantID).Delete(&webAnalyticsRow{})
		if res.Error != nil {
			return res.Error
		}
		n += res.RowsAffected
		return nil
	})
	return n, err
}

func (s *GormStore) CreateRule(ctx context.Context, r models.AlertRule) (models.AlertRule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	row := fromRule(r)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.AlertRule{}, conflict(err)
	}
	return row.model(), nil
}

func (s *GormStore) GetRule(ctx context.Context, id string) (models.AlertRule, error) {
	var row ruleRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return models.AlertRule{}, notFound(err)
	}
	return row.model(), nil
}

func (s *GormStore) ListRules(ctx context.Context, f RuleFilter) ([]models.AlertRule, error) {
	q := s.db.WithContext(ctx).Model(&ruleRow{})
	if f.TenantID != "" {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", string(f.Type))
	}
	if f.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	var rows []ruleRow
	if err := q.Order("created_at, name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.AlertRule, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *GormStore) UpdateRule(ctx context.Context, r models.AlertRule) (models.AlertRule, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&ruleRow{}).Where("id = ?", r.ID).Updates(map[string]any{
		"name":            r.Name,
		"description":     r.Description,
		"metric":          r.Metric,
		"operator":        string(r.Operator),
		"threshold":       r.Threshold,
		"budget_relative": r.BudgetRelative,
		"severity":        string(r.Severity),
		"is_active":       r.IsActive,
		"updated_at":      s.now(),
	})
	if res.Error != nil {
		return models.AlertRule{}, conflict(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.AlertRule{}, ErrNotFound
	}
	return s.GetRule(ctx, r.ID)
}

func (s *GormStore) DeleteRule(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&ruleRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListTenantsWithRules(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Model(&ruleRow{}).Distinct().Order("tenant_id").Pluck("tenant_id", &out).Error
	return out, err
}

func (s *GormStore) CreateAlertIfAbsent(ctx context.Context, a models.Alert) (models.Alert, bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.AlertOpen
	}
	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	row := fromAlert(a)
	db := s.db.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{
		Columns:     []clause.Column{{Name: "tenant_id"}, {Name: "campaign_id"}, {Name: "type"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "status <> 'RESOLVED'"}}},
		DoNothing:   true,
	}).Create(&row)
	if res.Error != nil {
		return models.Alert{}, false, res.Error
	}
	if res.RowsAffected == 1 {
		return row.model(), true, nil
	}
	var cur alertRow
	err := db.Where("tenant_id = ? AND campaign_id = ? AND type = ? AND status <> ?",
		a.TenantID, a.CampaignID, a.Type, string(models.AlertResolved)).First(&cur).Error
	if err != nil {
		return models.Alert{}, false, notFound(err)
	}
	return cur.model(), false, nil
}

func (s *GormStore) GetAlert(ctx context.Context, id string) (models.Alert, error) {
	var row alertRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return models.Alert{}, notFound(err)
	}
	return row.model(), nil
}

func (s *GormStore) ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error) {
	q := s.db.WithContext(ctx).Model(&alertRow{})
	if f.TenantID != "" {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", string(f.Severity))
	}
	if f.CampaignID != "" {
		q = q.Where("campaign_id = ?", f.CampaignID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []alertRow
	if err := q.Order("created_at DESC, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Alert, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *GormStore) SetAlertStatus(ctx context.Context, id string, from []models.AlertStatus, status models.AlertStatus, at time.Time) (models.Alert, error) {
	set := map[string]any{"status": string(status), "updated_at": s.now()}
	if status == models.AlertResolved {
		set["resolved_at"] = at.UTC()
	}
	allowed := make([]string, 0, len(from))
	for _, f := range from {
		allowed = append(allowed, string(f))
	}
	res := s.db.WithContext(ctx).Model(&alertRow{}).
		Where("id = ? AND status IN ?", id, allowed).
		Updates(set)
	if err := conflict(res.Error); err != nil {
		return models.Alert{}, err
	}
	if res.RowsAffected == 0 {
		cur, err := s.GetAlert(ctx, id)
		if err != nil {
			return models.Alert{}, err
		}
		return models.Alert{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, cur.Status, status)
	}
	return s.GetAlert(ctx, id)
}

func (s *GormStore) ResolveAlerts(ctx context.Context, tenantID string, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&alertRow{}).
		Where("tenant_id = ? AND status <> ?", tenantID, string(models.AlertResolved)).
		Updates(map[string]any{
			"status":      string(models.AlertResolved),
			"resolved_at": at.UTC(),
			"updated_at":  s.now(),
		})
	return res.RowsAffected, res.Error
}

func (s *GormStore) CountOpenAlerts(ctx context.Context, tenantID string) (map[models.Severity]int64, error) {
	var rows []struct {
		Severity string
		N        int64
	}
	err := s.db.WithContext(ctx).Model(&alertRow{}).
		Select("severity, COUNT(*) AS n").
		Where("tenant_id = ? AND status = ?", tenantID, string(models.AlertOpen)).
		Group("severity").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[models.Severity]int64, len(rows))
	for _, r := range rows {
		out[models.Severity(r.Severity)] = r.N
	}
	return out, nil
}

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
