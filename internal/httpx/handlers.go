package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AngelCh415/adsync/internal/alerts"
	"github.com/AngelCh415/adsync/internal/models"
	"github.com/AngelCh415/adsync/internal/store"
)

func (a *api) syncAll(w http.ResponseWriter, r *http.Request) {
	sum, err := a.Syncer.SyncAll(r.Context())
	if err != nil {
		a.log.ErrorContext(r.Context(), "sync all", slog.String("err", err.Error()))
		writeJSON(w, http.StatusBadGateway, map[string]any{"summary": sum, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (a *api) syncPlatform(w http.ResponseWriter, r *http.Request) {
	res, err := a.Syncer.SyncPlatform(r.Context(), chi.URLParam(r, "platform"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) syncAccount(w http.ResponseWriter, r *http.Request) {
	rep, err := a.Syncer.SyncAccount(r.Context(), chi.URLParam(r, "platform"), chi.URLParam(r, "id"), tenantID(r), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *api) summary(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", 30)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := platformParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sum, err := a.Metrics.GetSummary(r.Context(), tenantID(r), days, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (a *api) byPlatform(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", 30)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := a.Metrics.GetPerformanceByPlatform(r.Context(), tenantID(r), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *api) aggregate(w http.ResponseWriter, r *http.Request) {
	from, to, err := window(r, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := platformParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := a.Metrics.GetAggregatedMetrics(r.Context(), tenantID(r), from, to, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *api) trends(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "7d"
	}
	compare := r.URL.Query().Get("compare") != "false"
	rep, err := a.Metrics.GetMetricsTrends(r.Context(), tenantID(r), period, compare)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *api) daily(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "30d"
	}
	p, err := platformParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rep, err := a.Metrics.GetDailyMetrics(r.Context(), tenantID(r), period, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *api) topCampaigns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 5)
	if err != nil {
		writeError(w, err)
		return
	}
	days, err := intParam(r, "days", 30)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := a.Metrics.GetTopCampaigns(r.Context(), tenantID(r), limit, days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *api) campaignPerformance(w http.ResponseWriter, r *http.Request) {
	from, to, err := window(r, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	perf, err := a.Metrics.GetCampaignPerformance(r.Context(), tenantID(r), chi.URLParam(r, "id"), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func (a *api) listAccounts(w http.ResponseWriter, r *http.Request) {
	p, err := platformParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	accs, err := a.Store.ListAccounts(r.Context(), store.AccountFilter{
		TenantID: tenantID(r),
		Platform: p,
		Status:   strings.ToUpper(r.URL.Query().Get("status")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accs)
}

type accountBody struct {
	Platform     string `json:"platform"`
	ExternalID   string `json:"externalId"`
	Name         string `json:"name"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Status       string `json:"status"`
}

// upsertAccount stores a connection handed over by an OAuth callback. Tokens
// are sealed before they reach the store.
func (a *api) upsertAccount(w http.ResponseWriter, r *http.Request) {
	var body accountBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	p, ok := models.ParsePlatform(body.Platform)
	if !ok {
		writeError(w, badRequest("unknown platform %q", body.Platform))
		return
	}
	externalID := strings.TrimSpace(body.ExternalID)
	if externalID == "" {
		writeError(w, badRequest("externalId is required"))
		return
	}
	if err := a.checkCredentials(r.Context(), p, models.Credentials{
		AccessToken: body.AccessToken, RefreshToken: body.RefreshToken, AccountID: externalID,
	}); err != nil {
		writeError(w, err)
		return
	}
	access, err := a.Cipher.Seal(body.AccessToken)
	if err != nil {
		writeError(w, err)
		return
	}
	refresh, err := a.Cipher.Seal(body.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	status := strings.ToUpper(body.Status)
	if status == "" {
		status = p.ActiveStatus()
	}
	acc, err := a.Store.UpsertAccount(r.Context(), models.ConnectedAccount{
		TenantID:     tenantID(r),
		Platform:     p,
		ExternalID:   externalID,
		Name:         body.Name,
		AccessToken:  access,
		RefreshToken: refresh,
		Status:       status,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// checkCredentials asks the platform whether the plaintext tokens are
// accepted. Requests without an access token are not checked.
func (a *api) checkCredentials(ctx context.Context, p models.Platform, creds models.Credentials) error {
	if a.Registry == nil || creds.AccessToken == "" {
		return nil
	}
	adapter, err := a.Registry.Get(string(p))
	if err != nil {
		return err
	}
	ok, err := adapter.ValidateCredentials(ctx, creds)
	if err != nil {
		return err
	}
	if !ok {
		return badRequest("%s rejected the account credentials", p)
	}
	return nil
}

// disableAccount only flips the status; campaigns and history stay.
func (a *api) disableAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := a.Store.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err == nil && acc.TenantID != tenantID(r) {
		err = store.ErrNotFound
	}
	if err == nil {
		err = a.Store.SetAccountStatus(r.Context(), acc.ID, models.AccountStatusDisabled)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := a.Alerts.ListRules(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (a *api) createRule(w http.ResponseWriter, r *http.Request) {
	var in alerts.RuleInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	rule, err := a.Alerts.CreateRule(r.Context(), tenantID(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (a *api) seedPresets(w http.ResponseWriter, r *http.Request) {
	rules, err := a.Alerts.SeedPresets(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (a *api) updateRule(w http.ResponseWriter, r *http.Request) {
	var p alerts.RulePatch
	if err := decode(w, r, &p); err != nil {
		writeError(w, err)
		return
	}
	rule, err := a.Alerts.UpdateRule(r.Context(), tenantID(r), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *api) toggleRule(w http.ResponseWriter, r *http.Request) {
	rule, err := a.Alerts.ToggleRule(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *api) deleteRule(w http.ResponseWriter, r *http.Request) {
	if err := a.Alerts.DeleteRule(r.Context(), tenantID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) listAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	f := store.AlertFilter{
		TenantID:   tenantID(r),
		Status:     models.AlertStatus(strings.ToUpper(q.Get("status"))),
		Severity:   models.Severity(strings.ToUpper(q.Get("severity"))),
		CampaignID: q.Get("campaignId"),
		Limit:      limit,
	}
	if f.Severity != "" && !f.Severity.Valid() {
		writeError(w, badRequest("unknown severity %q", q.Get("severity")))
		return
	}
	list, err := a.Alerts.ListAlerts(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *api) alertCounts(w http.ResponseWriter, r *http.Request) {
	c, err := a.Alerts.OpenCounts(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *api) checkAlerts(w http.ResponseWriter, r *http.Request) {
	created, err := a.Alerts.CheckAlerts(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if created == nil {
		created = []models.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"created": len(created), "alerts": created})
}

func (a *api) resolveAll(w http.ResponseWriter, r *http.Request) {
	n, err := a.Alerts.ResolveAll(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"resolved": n})
}

func (a *api) acknowledge(w http.ResponseWriter, r *http.Request) {
	al, err := a.Alerts.Acknowledge(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, al)
}

func (a *api) resolve(w http.ResponseWriter, r *http.Request) {
	al, err := a.Alerts.Resolve(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, al)
}

func (a *api) seedMock(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", 30)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := a.Seeder.Seed(r.Context(), tenantID(r), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) clearMock(w http.ResponseWriter, r *http.Request) {
	n, err := a.Seeder.Clear(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
