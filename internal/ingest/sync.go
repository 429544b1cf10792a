// Package ingest pulls campaigns and daily metrics from the platform adapters
// into the store. One account failing never stops its siblings.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AngelCh415/adsync/internal/config"
	"github.com/AngelCh415/adsync/internal/lock"
	"github.com/AngelCh415/adsync/internal/models"
	"github.com/AngelCh415/adsync/internal/platforms"
	"github.com/AngelCh415/adsync/internal/secrets"
	"github.com/AngelCh415/adsync/internal/store"
	"github.com/AngelCh415/adsync/internal/telemetry"
)

// ErrAccountBusy means another process holds the account's sync lock.
var ErrAccountBusy = errors.New("account sync already running")

type Stage string

const (
	StagePending            Stage = "PENDING"
	StageFetchingCampaigns  Stage = "FETCHING_CAMPAIGNS"
	StageUpsertingCampaigns Stage = "UPSERTING_CAMPAIGNS"
	StageFetchingMetrics    Stage = "FETCHING_METRICS"
	StageUpsertingMetrics   Stage = "UPSERTING_METRICS"
	StageDone               Stage = "DONE"
	StageFailed             Stage = "FAILED"
)

// SyncError is a failed account sync with the stage it failed in.
type SyncError struct {
	Platform  models.Platform
	AccountID string
	Stage     Stage
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s account %s at %s: %v", e.Platform, e.AccountID, e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// AccountReport describes one finished account sync.
type AccountReport struct {
	AccountID  string          `json:"accountId"`
	Platform   models.Platform `json:"platform"`
	Campaigns  int             `json:"campaigns"`
	MetricRows int             `json:"metricRows"`
	Stage      Stage           `json:"stage"`
}

type Result struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

func (r Result) add(o Result) Result {
	return Result{Success: r.Success + o.Success, Failed: r.Failed + o.Failed, Skipped: r.Skipped + o.Skipped}
}

type Summary struct {
	Platforms map[models.Platform]Result `json:"platforms"`
	Total     Result                     `json:"total"`
}

type Syncer struct {
	st     store.Store
	reg    *platforms.Registry
	log    *slog.Logger
	cfg    config.Config
	locker *lock.Locker
	cipher *secrets.Cipher
	now    func() time.Time
	sf     singleflight.Group
}

type Option func(*Syncer)

// WithLocker makes every account sync take a Redis lock first.
func WithLocker(l *lock.Locker) Option { return func(s *Syncer) { s.locker = l } }

func WithCipher(c *secrets.Cipher) Option { return func(s *Syncer) { s.cipher = c } }

func WithClock(now func() time.Time) Option { return func(s *Syncer) { s.now = now } }

func NewSyncer(st store.Store, reg *platforms.Registry, log *slog.Logger, cfg config.Config, opts ...Option) *Syncer {
	s := &Syncer{st: st, reg: reg, log: log, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SyncAccount runs the full pipeline for one account. acc may carry the
// already loaded account; otherwise it is read from the store. Calls for an
// account that is already syncing in this process share the running sync.
func (s *Syncer) SyncAccount(ctx context.Context, platform, accountID, tenantID string, acc *models.ConnectedAccount) (AccountReport, error) {
	adapter, err := s.reg.Get(platform)
	if err != nil {
		return AccountReport{}, err
	}
	p, _ := models.ParsePlatform(platform)

	v, err, _ := s.sf.Do(string(p)+"/"+accountID, func() (any, error) {
		// once started an account runs to completion
		return s.runAccount(context.WithoutCancel(ctx), adapter, p, accountID, tenantID, acc)
	})
	rep, _ := v.(AccountReport)
	return rep, err
}

func (s *Syncer) runAccount(ctx context.Context, adapter platforms.Adapter, p models.Platform, accountID, tenantID string, acc *models.ConnectedAccount) (rep AccountReport, err error) {
	rep = AccountReport{AccountID: accountID, Platform: p, Stage: StagePending}
	start := time.Now()
	ctx, span := telemetry.Tracer.Start(ctx, "sync.account")
	span.SetAttributes(attribute.String("platform", string(p)), attribute.String("account_id", accountID))
	defer func() {
		if r := recover(); r != nil {
			err = &SyncError{Platform: p, AccountID: accountID, Stage: rep.Stage, Err: fmt.Errorf("panic: %v", r)}
		}
		outcome := "success"
		switch {
		case errors.Is(err, ErrAccountBusy):
			outcome = "skipped"
		case err != nil:
			outcome = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, string(rep.Stage))
			rep.Stage = StageFailed
		}
		telemetry.AccountSyncsTotal.WithLabelValues(string(p), outcome).Inc()
		telemetry.AccountSyncDuration.WithLabelValues(string(p)).Observe(time.Since(start).Seconds())
		span.End()
	}()

	fail := func(e error) error {
		return &SyncError{Platform: p, AccountID: accountID, Stage: rep.Stage, Err: e}
	}

	if s.locker != nil {
		lk, err := s.locker.Acquire(ctx, "sync:"+accountID, s.cfg.SyncLockTTL)
		if errors.Is(err, lock.ErrNotAcquired) {
			return rep, ErrAccountBusy
		}
		if err != nil {
			return rep, fail(fmt.Errorf("acquire lock: %w", err))
		}
		defer func() {
			if err := lk.Release(ctx); err != nil {
				s.log.WarnContext(ctx, "release sync lock", slog.String("account_id", accountID), slog.String("err", err.Error()))
			}
		}()
	}

	if acc == nil {
		a, err := s.st.GetAccount(ctx, accountID)
		if err != nil {
			return rep, fail(err)
		}
		acc = &a
	}
	if tenantID == "" {
		tenantID = acc.TenantID
	}
	if acc.TenantID != tenantID || acc.Platform != p {
		return rep, fail(store.ErrNotFound)
	}

	creds, err := s.credentials(*acc)
	if err != nil {
		return rep, fail(err)
	}
	mock := platforms.IsMock(adapter)

	rep.Stage = StageFetchingCampaigns
	var campaigns []models.CampaignData
	err = s.call(ctx, func(ctx context.Context) (err error) {
		campaigns, err = adapter.FetchCampaigns(ctx, creds)
		return err
	})
	if err != nil {
		return rep, fail(err)
	}

	rep.Stage = StageUpsertingCampaigns
	for _, cd := range campaigns {
		if cd.ExternalID == "" {
			continue
		}
		_, err := s.st.UpsertCampaign(ctx, models.Campaign{
			TenantID:   tenantID,
			Platform:   p,
			ExternalID: cd.ExternalID,
			AccountID:  acc.ID,
			Name:       cd.Name,
			Status:     cd.Status,
			Budget:     cd.Budget,
			StartDate:  cd.StartDate,
			EndDate:    cd.EndDate,
		})
		if err != nil {
			return rep, fail(err)
		}
		rep.Campaigns++
	}

	window := models.LastNDays(s.now(), s.cfg.SyncWindowDays)
	if p.IsAnalytics() {
		n, err := s.syncProperty(ctx, adapter, creds, tenantID, window, mock, &rep)
		rep.MetricRows += n
		if err != nil {
			return rep, fail(err)
		}
	} else {
		n, err := s.syncCampaignMetrics(ctx, adapter, creds, tenantID, p, acc.ID, window, mock, &rep)
		rep.MetricRows += n
		if err != nil {
			return rep, fail(err)
		}
	}
	telemetry.MetricRowsUpserted.WithLabelValues(string(p)).Add(float64(rep.MetricRows))

	if err := s.st.TouchAccountSync(ctx, acc.ID, s.now()); err != nil {
		return rep, fail(err)
	}
	rep.Stage = StageDone
	s.log.InfoContext(ctx, "account synced",
		slog.String("platform", string(p)),
		slog.String("account_id", accountID),
		slog.String("tenant_id", tenantID),
		slog.Int("campaigns", rep.Campaigns),
		slog.Int("metric_rows", rep.MetricRows))
	return rep, nil
}

func (s *Syncer) syncCampaignMetrics(ctx context.Context, adapter platforms.Adapter, creds models.Credentials, tenantID string, p models.Platform, accountID string, window models.DateRange, mock bool, rep *AccountReport) (int, error) {
	rep.Stage = StageFetchingMetrics
	campaigns, err := s.st.ListCampaigns(ctx, store.CampaignFilter{TenantID: tenantID, Platform: p, AccountID: accountID})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range campaigns {
		if c.ExternalID == "" {
			continue
		}
		rep.Stage = StageFetchingMetrics
		var rows []models.MetricData
		err := s.call(ctx, func(ctx context.Context) (err error) {
			rows, err = adapter.FetchMetrics(ctx, creds, c.ExternalID, window)
			return err
		})
		if err != nil {
			return n, err
		}
		rep.Stage = StageUpsertingMetrics
		for _, md := range rows {
			err := s.st.UpsertMetric(ctx, models.Metric{
				CampaignID: c.ID,
				Date:       md.Date,
				Counters:   md.Counters,
				Ratios:     models.Derive(md.Counters),
				IsMockData: mock,
			})
			if err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// syncProperty fetches property level rows once; creds.AccountID carries the
// property id for analytics accounts.
func (s *Syncer) syncProperty(ctx context.Context, adapter platforms.Adapter, creds models.Credentials, tenantID string, window models.DateRange, mock bool, rep *AccountReport) (int, error) {
	rep.Stage = StageFetchingMetrics
	var rows []models.MetricData
	err := s.call(ctx, func(ctx context.Context) (err error) {
		rows, err = adapter.FetchMetrics(ctx, creds, creds.AccountID, window)
		return err
	})
	if err != nil {
		return 0, err
	}
	rep.Stage = StageUpsertingMetrics
	n := 0
	for _, md := range rows {
		var web models.WebCounters
		if md.Web != nil {
			web = *md.Web
		}
		err := s.st.UpsertWebAnalytics(ctx, models.WebAnalyticsDaily{
			TenantID:    tenantID,
			PropertyID:  creds.AccountID,
			Date:        md.Date,
			WebCounters: web,
			Conversions: md.Conversions,
			Revenue:     md.Revenue,
			IsMockData:  mock,
		})
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// call bounds one adapter call by the configured timeout.
func (s *Syncer) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.cfg.AdapterTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.AdapterTimeout)
		defer cancel()
	}
	return fn(ctx)
}

func (s *Syncer) credentials(acc models.ConnectedAccount) (models.Credentials, error) {
	access, err := s.cipher.Open(acc.AccessToken)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("access token: %w", err)
	}
	refresh, err := s.cipher.Open(acc.RefreshToken)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("refresh token: %w", err)
	}
	if access == "" {
		return models.Credentials{}, platforms.ErrCredentialInvalid
	}
	return models.Credentials{AccessToken: access, RefreshToken: refresh, AccountID: acc.ExternalID}, nil
}

// SyncPlatform syncs every active account of one platform. Only systemic
// failures are returned; account failures are counted.
func (s *Syncer) SyncPlatform(ctx context.Context, platform string) (Result, error) {
	var res Result
	p, ok := models.ParsePlatform(platform)
	if !ok {
		return res, fmt.Errorf("%w: %q", platforms.ErrUnsupportedPlatform, platform)
	}
	if _, err := s.reg.Get(platform); err != nil {
		return res, err
	}
	accounts, err := s.st.ListAccounts(ctx, store.AccountFilter{Platform: p, Status: p.ActiveStatus()})
	if err != nil {
		return res, fmt.Errorf("list %s accounts: %w", p, err)
	}

	outcomes := make([]error, len(accounts))
	started := make([]bool, len(accounts))
	g := new(errgroup.Group)
	if s.cfg.SyncConcurrency > 0 {
		g.SetLimit(s.cfg.SyncConcurrency)
	}
	for i := range accounts {
		// coarse cancellation: accounts not yet started are skipped
		if ctx.Err() != nil {
			break
		}
		started[i] = true
		acc := accounts[i]
		g.Go(func() error {
			_, outcomes[i] = s.SyncAccount(ctx, string(p), acc.ID, acc.TenantID, &acc)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range outcomes {
		switch {
		case !started[i], errors.Is(err, ErrAccountBusy):
			res.Skipped++
		case err != nil:
			res.Failed++
			s.log.ErrorContext(ctx, "account sync failed",
				slog.String("platform", string(p)),
				slog.String("account_id", accounts[i].ID),
				slog.String("tenant_id", accounts[i].TenantID),
				slog.String("stage", string(stageOf(err))),
				slog.String("err", err.Error()))
		default:
			res.Success++
		}
	}
	return res, nil
}

// SyncAll runs every registered platform independently and joins the
// systemic errors of the ones that could not run.
func (s *Syncer) SyncAll(ctx context.Context) (Summary, error) {
	ps := s.reg.Platforms()
	results := make([]Result, len(ps))
	errs := make([]error, len(ps))
	var g errgroup.Group
	for i, p := range ps {
		g.Go(func() error {
			results[i], errs[i] = s.SyncPlatform(ctx, string(p))
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{Platforms: make(map[models.Platform]Result, len(ps))}
	for i, p := range ps {
		sum.Platforms[p] = results[i]
		sum.Total = sum.Total.add(results[i])
	}
	s.log.InfoContext(ctx, "sync complete",
		slog.Int("success", sum.Total.Success),
		slog.Int("failed", sum.Total.Failed),
		slog.Int("skipped", sum.Total.Skipped))
	return sum, errors.Join(errs...)
}

func stageOf(err error) Stage {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageFailed
}
