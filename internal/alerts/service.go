package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AngelCh415/adsync/internal/models"
	"github.com/AngelCh415/adsync/internal/notify"
	"github.com/AngelCh415/adsync/internal/store"
	"github.com/AngelCh415/adsync/internal/telemetry"
)

var (
	ErrPresetRule        = errors.New("preset rules can only be disabled")
	ErrInvalidRule       = errors.New("invalid rule")
	ErrInvalidTransition = store.ErrInvalidTransition
)

type Service struct {
	st         store.Store
	pub        notify.Publisher
	log        *slog.Logger
	windowDays int
	now        func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService evaluates over the trailing windowDays. pub may be nil.
func NewService(st store.Store, pub notify.Publisher, log *slog.Logger, windowDays int, opts ...Option) *Service {
	if windowDays <= 0 {
		windowDays = 7
	}
	s := &Service{st: st, pub: pub, log: log, windowDays: windowDays, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SeedPresets creates the preset catalog for a tenant once. A tenant that
// already has preset rules keeps them untouched.
func (s *Service) SeedPresets(ctx context.Context, tenantID string) ([]models.AlertRule, error) {
	existing, err := s.st.ListRules(ctx, store.RuleFilter{TenantID: tenantID, Type: models.RulePreset})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}
	out := make([]models.AlertRule, 0, len(Presets))
	for _, p := range Presets {
		p.TenantID = tenantID
		p.Type = models.RulePreset
		p.IsActive = true
		r, err := s.st.CreateRule(ctx, p)
		if errors.Is(err, store.ErrConflict) {
			// a custom rule already uses the name
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("seed preset %q: %w", p.Name, err)
		}
		out = append(out, r)
	}
	s.log.InfoContext(ctx, "preset rules seeded", slog.String("tenant_id", tenantID), slog.Int("rules", len(out)))
	return out, nil
}

func (s *Service) ListRules(ctx context.Context, tenantID string) ([]models.AlertRule, error) {
	return s.st.ListRules(ctx, store.RuleFilter{TenantID: tenantID})
}

type RuleInput struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Metric         string          `json:"metric"`
	Operator       models.Operator `json:"operator"`
	Threshold      float64         `json:"threshold"`
	BudgetRelative bool            `json:"budgetRelative"`
	Severity       models.Severity `json:"severity"`
}

func (in RuleInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	case !validMetric(in.Metric):
		return fmt.Errorf("%w: unknown metric %q, want one of %s", ErrInvalidRule, in.Metric, strings.Join(Metrics, ", "))
	case !in.Operator.Valid():
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, in.Operator)
	case !in.Severity.Valid():
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidRule, in.Severity)
	}
	return nil
}

// CreateRule adds an active custom rule. Severity defaults to WARNING.
func (s *Service) CreateRule(ctx context.Context, tenantID string, in RuleInput) (models.AlertRule, error) {
	if in.Severity == "" {
		in.Severity = models.SeverityWarning
	}
	in.Metric = strings.ToLower(in.Metric)
	if err := in.validate(); err != nil {
		return models.AlertRule{}, err
	}
	return s.st.CreateRule(ctx, models.AlertRule{
		TenantID:       tenantID,
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		Type:           models.RuleCustom,
		Metric:         in.Metric,
		Operator:       in.Operator,
		Threshold:      in.Threshold,
		BudgetRelative: in.BudgetRelative,
		Severity:       in.Severity,
		IsActive:       true,
	})
}

// RulePatch changes the non nil fields of a rule.
type RulePatch struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Metric      *string          `json:"metric"`
	Operator    *models.Operator `json:"operator"`
	Threshold   *float64         `json:"threshold"`
	Severity    *models.Severity `json:"severity"`
	IsActive    *bool            `json:"isActive"`
}

// UpdateRule applies p. The name, metric and operator of a preset are fixed
// because the name drives alert deduplication.
func (s *Service) UpdateRule(ctx context.Context, tenantID, id string, p RulePatch) (models.AlertRule, error) {
	r, err := s.rule(ctx, tenantID, id)
	if err != nil {
		return r, err
	}
	if r.Type == models.RulePreset && (p.Name != nil || p.Metric != nil || p.Operator != nil) {
		return models.AlertRule{}, ErrPresetRule
	}
	in := RuleInput{Name: r.Name, Metric: r.Metric, Operator: r.Operator, Severity: r.Severity}
	if p.Name != nil {
		in.Name = *p.Name
		r.Name = strings.TrimSpace(*p.Name)
	}
	if p.Metric != nil {
		in.Metric = strings.ToLower(*p.Metric)
		r.Metric = in.Metric
	}
	if p.Operator != nil {
		in.Operator, r.Operator = *p.Operator, *p.Operator
	}
	if p.Severity != nil {
		in.Severity, r.Severity = *p.Severity, *p.Severity
	}
	if err := in.validate(); err != nil {
		return models.AlertRule{}, err
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Threshold != nil {
		r.Threshold = *p.Threshold
	}
	if p.IsActive != nil {
		r.IsActive = *p.IsActive
	}
	return s.st.UpdateRule(ctx, r)
}

func (s *Service) ToggleRule(ctx context.Context, tenantID, id string) (models.AlertRule, error) {
	r, err := s.rule(ctx, tenantID, id)
	if err != nil {
		return r, err
	}
	r.IsActive = !r.IsActive
	return s.st.UpdateRule(ctx, r)
}

// DeleteRule removes a custom rule. Presets return ErrPresetRule.
func (s *Service) DeleteRule(ctx context.Context, tenantID, id string) error {
	r, err := s.rule(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if r.Type == models.RulePreset {
		return ErrPresetRule
	}
	return s.st.DeleteRule(ctx, id)
}

func (s *Service) rule(ctx context.Context, tenantID, id string) (models.AlertRule, error) {
	r, err := s.st.GetRule(ctx, id)
	if err != nil {
		return models.AlertRule{}, err
	}
	if r.TenantID != tenantID {
		return models.AlertRule{}, store.ErrNotFound
	}
	return r, nil
}

// CheckAlerts evaluates every active rule of the tenant against each
// campaign's sums over the trailing window and returns the alerts it created.
// Campaigns with no rows in the window are skipped. Failures to store one
// alert do not stop the others; they are joined into the returned error.
func (s *Service) CheckAlerts(ctx context.Context, tenantID string) ([]models.Alert, error) {
	rules, err := s.st.ListRules(ctx, store.RuleFilter{TenantID: tenantID, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}
	w := models.LastNDays(s.now(), s.windowDays)
	buckets, err := s.st.SumMetrics(ctx, store.MetricFilter{TenantID: tenantID, From: w.Start, To: w.End}, store.GroupCampaign)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(buckets))
	for _, b := range buckets {
		ids = append(ids, b.CampaignID)
	}
	campaigns := map[string]models.Campaign{}
	if len(ids) > 0 {
		cs, err := s.st.ListCampaigns(ctx, store.CampaignFilter{TenantID: tenantID, IDs: ids})
		if err != nil {
			return nil, err
		}
		for _, c := range cs {
			campaigns[c.ID] = c
		}
	}

	var created []models.Alert
	var errs []error
	for _, b := range buckets {
		c, ok := campaigns[b.CampaignID]
		if !ok || b.Rows == 0 {
			continue
		}
		for _, rule := range rules {
			ev, ok := Evaluate(rule, b.Counters, c.Budget)
			if !ok || !ev.Violated {
				continue
			}
			a, isNew, err := s.st.CreateAlertIfAbsent(ctx, models.Alert{
				TenantID:   tenantID,
				RuleID:     rule.ID,
				CampaignID: c.ID,
				Type:       AlertType(rule.Name),
				Severity:   rule.Severity,
				Status:     models.AlertOpen,
				Title:      rule.Name + ": " + c.Name,
				Message:    message(rule, c.Name, ev),
				Metadata: map[string]any{
					"metric":      rule.Metric,
					"value":       ev.Value,
					"threshold":   ev.Threshold,
					"windowStart": w.Start.Format(models.DateLayout),
					"windowEnd":   w.End.Format(models.DateLayout),
				},
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("rule %q campaign %s: %w", rule.Name, c.ID, err))
				continue
			}
			if !isNew {
				continue
			}
			telemetry.AlertsCreatedTotal.WithLabelValues(string(a.Severity)).Inc()
			s.publish(ctx, a)
			created = append(created, a)
		}
	}
	s.log.InfoContext(ctx, "alerts checked",
		slog.String("tenant_id", tenantID),
		slog.Int("rules", len(rules)),
		slog.Int("campaigns", len(buckets)),
		slog.Int("created", len(created)))
	return created, errors.Join(errs...)
}

func (s *Service) publish(ctx context.Context, a models.Alert) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, a); err != nil {
		telemetry.AlertPublishFailures.Inc()
		s.log.WarnContext(ctx, "publish alert",
			slog.String("alert_id", a.ID),
			slog.String("tenant_id", a.TenantID),
			slog.String("err", err.Error()))
	}
}

// CheckAllTenants runs CheckAlerts for every tenant that has rules and
// returns the number of alerts created.
func (s *Service) CheckAllTenants(ctx context.Context) (int, error) {
	tenants, err := s.st.ListTenantsWithRules(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	var errs []error
	for _, t := range tenants {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		created, err := s.CheckAlerts(ctx, t)
		n += len(created)
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", t, err))
		}
	}
	return n, errors.Join(errs...)
}

// ListAlerts returns newest first, 50 by default.
func (s *Service) ListAlerts(ctx context.Context, f store.AlertFilter) ([]models.Alert, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	return s.st.ListAlerts(ctx, f)
}

// Acknowledge moves an OPEN alert to ACKNOWLEDGED.
func (s *Service) Acknowledge(ctx context.Context, tenantID, id string) (models.Alert, error) {
	a, err := s.alert(ctx, tenantID, id)
	if err != nil {
		return a, err
	}
	if a.Status != models.AlertOpen {
		return models.Alert{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, a.Status, models.AlertAcknowledged)
	}
	return s.st.SetAlertStatus(ctx, id, []models.AlertStatus{models.AlertOpen}, models.AlertAcknowledged, s.now())
}

// Resolve closes an alert. RESOLVED is terminal.
func (s *Service) Resolve(ctx context.Context, tenantID, id string) (models.Alert, error) {
	a, err := s.alert(ctx, tenantID, id)
	if err != nil {
		return a, err
	}
	if a.Status == models.AlertResolved {
		return models.Alert{}, fmt.Errorf("%w: alert already resolved", ErrInvalidTransition)
	}
	return s.st.SetAlertStatus(ctx, id, []models.AlertStatus{models.AlertOpen, models.AlertAcknowledged}, models.AlertResolved, s.now())
}

func (s *Service) ResolveAll(ctx context.Context, tenantID string) (int64, error) {
	return s.st.ResolveAlerts(ctx, tenantID, s.now())
}

func (s *Service) alert(ctx context.Context, tenantID, id string) (models.Alert, error) {
	a, err := s.st.GetAlert(ctx, id)
	if err != nil {
		return models.Alert{}, err
	}
	if a.TenantID != tenantID {
		return models.Alert{}, store.ErrNotFound
	}
	return a, nil
}

type OpenCounts struct {
	Total    int64 `json:"total"`
	Critical int64 `json:"critical"`
	Warning  int64 `json:"warning"`
	Info     int64 `json:"info"`
}

func (s *Service) OpenCounts(ctx context.Context, tenantID string) (OpenCounts, error) {
	m, err := s.st.CountOpenAlerts(ctx, tenantID)
	if err != nil {
		return OpenCounts{}, err
	}
	oc := OpenCounts{
		Critical: m[models.SeverityCritical],
		Warning:  m[models.SeverityWarning],
		Info:     m[models.SeverityInfo],
	}
	oc.Total = oc.Critical + oc.Warning + oc.Info
	return oc, nil
}
