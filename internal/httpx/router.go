package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AngelCh415/adsync/internal/alerts"
	"github.com/AngelCh415/adsync/internal/ingest"
	"github.com/AngelCh415/adsync/internal/metrics"
	"github.com/AngelCh415/adsync/internal/mockdata"
	"github.com/AngelCh415/adsync/internal/platforms"
	"github.com/AngelCh415/adsync/internal/secrets"
	"github.com/AngelCh415/adsync/internal/store"
	"github.com/AngelCh415/adsync/internal/utils"
)

// Deps are the services the API exposes. Ready may be nil. Without a
// Registry account tokens are stored unchecked.
type Deps struct {
	Store    store.Store
	Cipher   *secrets.Cipher
	Registry *platforms.Registry
	Syncer   *ingest.Syncer
	Metrics  *metrics.Service
	Alerts   *alerts.Service
	Seeder   *mockdata.Seeder
	Ready    func(ctx context.Context) error
}

type api struct {
	Deps
	log *slog.Logger
}

func NewRouter(log *slog.Logger, d Deps) http.Handler {
	a := &api{Deps: d, log: log}

	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(log))
	mux.Use(middleware.Recoverer)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", a.readyz)
	mux.Handle("/metrics", promhttp.Handler())

	mux.Route("/sync", func(r chi.Router) {
		r.Post("/all", a.syncAll)
		r.Post("/{platform}", a.syncPlatform)
		r.With(tenant).Post("/{platform}/accounts/{id}", a.syncAccount)
	})

	mux.Route("/api/v1", func(r chi.Router) {
		r.Use(tenant)

		r.Get("/dashboard/summary", a.summary)
		r.Get("/dashboard/platforms", a.byPlatform)

		r.Get("/metrics/aggregate", a.aggregate)
		r.Get("/metrics/trends", a.trends)
		r.Get("/metrics/daily", a.daily)

		r.Get("/campaigns/top", a.topCampaigns)
		r.Get("/campaigns/{id}/performance", a.campaignPerformance)

		r.Get("/accounts", a.listAccounts)
		r.Post("/accounts", a.upsertAccount)
		r.Post("/accounts/{id}/disable", a.disableAccount)

		r.Get("/rules", a.listRules)
		r.Post("/rules", a.createRule)
		r.Post("/rules/presets", a.seedPresets)
		r.Patch("/rules/{id}", a.updateRule)
		r.Post("/rules/{id}/toggle", a.toggleRule)
		r.Delete("/rules/{id}", a.deleteRule)

		r.Get("/alerts", a.listAlerts)
		r.Get("/alerts/counts", a.alertCounts)
		r.Post("/alerts/check", a.checkAlerts)
		r.Post("/alerts/resolve-all", a.resolveAll)
		r.Post("/alerts/{id}/acknowledge", a.acknowledge)
		r.Post("/alerts/{id}/resolve", a.resolve)

		r.Post("/mock/seed", a.seedMock)
		r.Delete("/mock", a.clearMock)
	})

	return mux
}

func (a *api) readyz(w http.ResponseWriter, r *http.Request) {
	if a.Ready != nil {
		if err := a.Ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(200)
	w.Write([]byte("ready"))
}
