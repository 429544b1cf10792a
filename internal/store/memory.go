package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AngelCh415/adsync/internal/models"
)

type identityKey struct {
	TenantID   string
	Platform   models.Platform
	ExternalID string
}

type metricKey struct {
	CampaignID string
	Date       time.Time
}

type webKey struct {
	TenantID   string
	PropertyID string
	Date       time.Time
}

type alertKey struct {
	TenantID   string
	CampaignID string
	Type       string
}

// MemoryStore keeps every table in maps behind one RWMutex. Natural key
// indexes give it the same uniqueness guarantees as the Postgres indexes.
type MemoryStore struct {
	mu sync.RWMutex

	accounts   map[string]*models.ConnectedAccount
	accountIdx map[identityKey]string

	campaigns   map[string]*models.Campaign
	campaignIdx map[identityKey]string

	metrics map[metricKey]*models.Metric
	web     map[webKey]*models.WebAnalyticsDaily

	rules  map[string]*models.AlertRule
	alerts map[string]*models.Alert
	// unresolved alert id per (tenant, campaign, type)
	openIdx map[alertKey]string

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[string]*models.ConnectedAccount),
		accountIdx:  make(map[identityKey]string),
		campaigns:   make(map[string]*models.Campaign),
		campaignIdx: make(map[identityKey]string),
		metrics:     make(map[metricKey]*models.Metric),
		web:         make(map[webKey]*models.WebAnalyticsDaily),
		rules:       make(map[string]*models.AlertRule),
		alerts:      make(map[string]*models.Alert),
		openIdx:     make(map[alertKey]string),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) UpsertAccount(_ context.Context, a models.ConnectedAccount) (models.ConnectedAccount, error) {
	k := identityKey{a.TenantID, a.Platform, a.ExternalID}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.accountIdx[k]; ok {
		cur := s.accounts[id]
		cur.Name = a.Name
		cur.AccessToken = a.AccessToken
		cur.RefreshToken = a.RefreshToken
		if a.Status != "" {
			cur.Status = a.Status
		}
		cur.UpdatedAt = now
		return *cur, nil
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = a.Platform.ActiveStatus()
	}
	a.CreatedAt, a.UpdatedAt = now, now
	s.accounts[a.ID] = &a
	s.accountIdx[k] = a.ID
	return a, nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (models.ConnectedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return models.ConnectedAccount{}, ErrNotFound
	}
	return *a, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context, f AccountFilter) ([]models.ConnectedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ConnectedAccount
	for _, a := range s.accounts {
		if f.TenantID != "" && a.TenantID != f.TenantID {
			continue
		}
		if f.Platform != "" && a.Platform != f.Platform {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SetAccountStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) TouchAccountSync(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	a.LastSyncAt = &at
	a.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) UpsertCampaign(_ context.Context, c models.Campaign) (models.Campaign, error) {
	k := identityKey{c.TenantID, c.Platform, c.ExternalID}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.campaignIdx[k]; ok {
		cur := s.campaigns[id]
		cur.AccountID = c.AccountID
		cur.Name = c.Name
		cur.Status = c.Status
		cur.Budget = c.Budget
		cur.StartDate = c.StartDate
		cur.EndDate = c.EndDate
		cur.UpdatedAt = now
		return *cur, nil
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt, c.UpdatedAt = now, now
	s.campaigns[c.ID] = &c
	s.campaignIdx[k] = c.ID
	return c, nil
}

func (s *MemoryStore) GetCampaign(_ context.Context, id string) (models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return models.Campaign{}, ErrNotFound
	}
	return *c, nil
}

func (s *MemoryStore) ListCampaigns(_ context.Context, f CampaignFilter) ([]models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filterCampaigns(f)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CountCampaigns(_ context.Context, f CampaignFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.filterCampaigns(f))), nil
}

func (s *MemoryStore) filterCampaigns(f CampaignFilter) []models.Campaign {
	var ids map[string]struct{}
	if len(f.IDs) > 0 {
		ids = make(map[string]struct{}, len(f.IDs))
		for _, id := range f.IDs {
			ids[id] = struct{}{}
		}
	}
	var out []models.Campaign
	for _, c := range s.campaigns {
		if !campaignMatches(c, f.TenantID, f.Platform) {
			continue
		}
		if f.AccountID != "" && c.AccountID != f.AccountID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if ids != nil {
			if _, ok := ids[c.ID]; !ok {
				continue
			}
		}
		out = append(out, *c)
	}
	return out
}

func campaignMatches(c *models.Campaign, tenantID string, p models.Platform) bool {
	if tenantID != "" && c.TenantID != tenantID {
		return false
	}
	return p == "" || c.Platform == p
}

func (s *MemoryStore) UpsertMetric(_ context.Context, m models.Metric) error {
	m.Date = day(m.Date)
	k := metricKey{m.CampaignID, m.Date}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[m.CampaignID]; !ok {
		return ErrNotFound
	}
	if cur, ok := s.metrics[k]; ok {
		m.ID = cur.ID
	} else if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.UpdatedAt = s.now()
	s.metrics[k] = &m
	return nil
}

// scanMetrics calls fn for every metric row matching f, with its campaign.
// Callers hold s.mu.
func (s *MemoryStore) scanMetrics(f MetricFilter, fn func(*models.Metric, *models.Campaign)) {
	for k, m := range s.metrics {
		if f.CampaignID != "" && k.CampaignID != f.CampaignID {
			continue
		}
		if !inWindow(k.Date, f.From, f.To) {
			continue
		}
		c, ok := s.campaigns[k.CampaignID]
		if !ok || !campaignMatches(c, f.TenantID, f.Platform) {
			continue
		}
		fn(m, c)
	}
}

func (s *MemoryStore) ListMetrics(_ context.Context, f MetricFilter) ([]models.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Metric
	s.scanMetrics(f, func(m *models.Metric, _ *models.Campaign) { out = append(out, *m) })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].CampaignID < out[j].CampaignID
	})
	return out, nil
}

func (s *MemoryStore) SumMetrics(_ context.Context, f MetricFilter, g GroupBy) ([]Bucket, error) {
	type bkey struct {
		date     time.Time
		campaign string
		platform models.Platform
	}
	s.mu.RLock()
	acc := map[bkey]*Bucket{}
	s.scanMetrics(f, func(m *models.Metric, c *models.Campaign) {
		var k bkey
		switch g {
		case GroupDate:
			k.date = m.Date
		case GroupCampaign:
			k.campaign = m.CampaignID
		case GroupPlatform:
			k.platform = c.Platform
		}
		b, ok := acc[k]
		if !ok {
			b = &Bucket{Date: k.date, CampaignID: k.campaign, Platform: k.platform}
			acc[k] = b
		}
		b.Rows++
		b.Counters = b.Counters.Add(m.Counters)
	})
	s.mu.RUnlock()

	if g == GroupNone {
		if b, ok := acc[bkey{}]; ok {
			return []Bucket{*b}, nil
		}
		return []Bucket{{}}, nil
	}
	out := make([]Bucket, 0, len(acc))
	for _, b := range acc {
		out = append(out, *b)
	}
	sortBuckets(out, g)
	return out, nil
}

func sortBuckets(out []Bucket, g GroupBy) {
	sort.Slice(out, func(i, j int) bool {
		switch g {
		case GroupDate:
			return out[i].Date.Before(out[j].Date)
		case GroupCampaign:
			return out[i].CampaignID < out[j].CampaignID
		default:
			return out[i].Platform < out[j].Platform
		}
	})
}

func (s *MemoryStore) HasMockMetrics(_ context.Context, tenantID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := false
	s.scanMetrics(MetricFilter{TenantID: tenantID}, func(m *models.Metric, _ *models.Campaign) {
		found = found || m.IsMockData
	})
	return found, nil
}

func (s *MemoryStore) UpsertWebAnalytics(_ context.Context, w models.WebAnalyticsDaily) error {
	w.Date = day(w.Date)
	k := webKey{w.TenantID, w.PropertyID, w.Date}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.web[k]; ok {
		w.ID = cur.ID
	} else if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w.UpdatedAt = s.now()
	s.web[k] = &w
	return nil
}

func (s *MemoryStore) SumWebAnalytics(_ context.Context, tenantID string, from, to time.Time) (WebSum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out WebSum
	for k, w := range s.web {
		if k.TenantID != tenantID || !inWindow(k.Date, from, to) {
			continue
		}
		out.Rows++
		out.Sessions += w.Sessions
		out.ActiveUsers += w.ActiveUsers
		out.NewUsers += w.NewUsers
		out.PageViews += w.PageViews
		out.Conversions += w.Conversions
		out.Revenue += w.Revenue
	}
	return out, nil
}

func (s *MemoryStore) DeleteMockData(_ context.Context, tenantID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, m := range s.metrics {
		c, ok := s.campaigns[k.CampaignID]
		if m.IsMockData && ok && c.TenantID == tenantID {
			delete(s.metrics, k)
			n++
		}
	}
	for k, w := range s.web {
		if w.IsMockData && k.TenantID == tenantID {
			delete(s.web, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateRule(_ context.Context, r models.AlertRule) (models.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.rules {
		if cur.TenantID == r.TenantID && cur.Name == r.Name {
			return models.AlertRule{}, ErrConflict
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	s.rules[r.ID] = &r
	return r, nil
}

func (s *MemoryStore) GetRule(_ context.Context, id string) (models.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return models.AlertRule{}, ErrNotFound
	}
	return *r, nil
}

func (s *MemoryStore) ListRules(_ context.Context, f RuleFilter) ([]models.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AlertRule
	for _, r := range s.rules {
		if f.TenantID != "" && r.TenantID != f.TenantID {
			continue
		}
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		if f.ActiveOnly && !r.IsActive {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *MemoryStore) UpdateRule(_ context.Context, r models.AlertRule) (models.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rules[r.ID]
	if !ok {
		return models.AlertRule{}, ErrNotFound
	}
	for _, other := range s.rules {
		if other.ID != r.ID && other.TenantID == cur.TenantID && other.Name == r.Name {
			return models.AlertRule{}, ErrConflict
		}
	}
	r.TenantID = cur.TenantID
	r.Type = cur.Type
	r.CreatedAt = cur.CreatedAt
	r.UpdatedAt = s.now()
	s.rules[r.ID] = &r
	return r, nil
}

func (s *MemoryStore) DeleteRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

func (s *MemoryStore) ListTenantsWithRules(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	var out []string
	for _, r := range s.rules {
		if _, ok := seen[r.TenantID]; ok {
			continue
		}
		seen[r.TenantID] = struct{}{}
		out = append(out, r.TenantID)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) CreateAlertIfAbsent(_ context.Context, a models.Alert) (models.Alert, bool, error) {
	k := alertKey{a.TenantID, a.CampaignID, a.Type}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.openIdx[k]; ok {
		return copyAlert(s.alerts[id]), false, nil
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.AlertOpen
	}
	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	a.Metadata = cloneMeta(a.Metadata)
	s.alerts[a.ID] = &a
	if a.Status != models.AlertResolved {
		s.openIdx[k] = a.ID
	}
	return copyAlert(&a), true, nil
}

func (s *MemoryStore) GetAlert(_ context.Context, id string) (models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return models.Alert{}, ErrNotFound
	}
	return copyAlert(a), nil
}

func (s *MemoryStore) ListAlerts(_ context.Context, f AlertFilter) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Alert
	for _, a := range s.alerts {
		if f.TenantID != "" && a.TenantID != f.TenantID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.CampaignID != "" && a.CampaignID != f.CampaignID {
			continue
		}
		out = append(out, copyAlert(a))
	}
	// newest first
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) SetAlertStatus(_ context.Context, id string, from []models.AlertStatus, status models.AlertStatus, at time.Time) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return models.Alert{}, ErrNotFound
	}
	if !slices.Contains(from, a.Status) {
		return models.Alert{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, a.Status, status)
	}
	s.setStatusLocked(a, status, at)
	return copyAlert(a), nil
}

func (s *MemoryStore) setStatusLocked(a *models.Alert, status models.AlertStatus, at time.Time) {
	a.Status = status
	a.UpdatedAt = s.now()
	if status == models.AlertResolved {
		at = at.UTC()
		a.ResolvedAt = &at
		k := alertKey{a.TenantID, a.CampaignID, a.Type}
		if s.openIdx[k] == a.ID {
			delete(s.openIdx, k)
		}
	}
}

func (s *MemoryStore) ResolveAlerts(_ context.Context, tenantID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range s.alerts {
		if a.TenantID == tenantID && a.Status != models.AlertResolved {
			s.setStatusLocked(a, models.AlertResolved, at)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountOpenAlerts(_ context.Context, tenantID string) (map[models.Severity]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[models.Severity]int64{}
	for _, a := range s.alerts {
		if a.TenantID == tenantID && a.Status == models.AlertOpen {
			out[a.Severity]++
		}
	}
	return out, nil
}

func copyAlert(a *models.Alert) models.Alert {
	out := *a
	out.Metadata = cloneMeta(a.Metadata)
	return out
}

func cloneMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func day(t time.Time) time.Time { return models.DayUTC(t) }
