// Package app wires configuration into the long lived components shared by
// the server and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AngelCh415/adsync/internal/alerts"
	"github.com/AngelCh415/adsync/internal/config"
	"github.com/AngelCh415/adsync/internal/ingest"
	"github.com/AngelCh415/adsync/internal/lock"
	"github.com/AngelCh415/adsync/internal/metrics"
	"github.com/AngelCh415/adsync/internal/mockdata"
	"github.com/AngelCh415/adsync/internal/notify"
	"github.com/AngelCh415/adsync/internal/platforms"
	"github.com/AngelCh415/adsync/internal/secrets"
	"github.com/AngelCh415/adsync/internal/store"
)

type App struct {
	Cfg       config.Config
	Log       *slog.Logger
	Store     store.Store
	Registry  *platforms.Registry
	Cipher    *secrets.Cipher
	Syncer    *ingest.Syncer
	Metrics   *metrics.Service
	Alerts    *alerts.Service
	Seeder    *mockdata.Seeder
	Scheduler *ingest.Scheduler

	pings   []func(context.Context) error
	closers []func() error
}

// New connects the configured backends. DATABASE_URL selects Postgres over
// the in-memory store, REDIS_URL enables the cross process sync lock and
// KAFKA_BROKERS routes alerts to Kafka instead of the log.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log}

	if cfg.DatabaseURL != "" {
		db, err := store.Connect(ctx, log, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBConnectRetries)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx, db); err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		a.Store = store.NewGormStore(db)
		a.pings = append(a.pings, sqlDB.PingContext)
		a.closers = append(a.closers, sqlDB.Close)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		a.Store = store.NewMemoryStore()
	}

	c, err := secrets.New(cfg.CredentialsKey)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Cipher = c

	opts := []ingest.Option{ingest.WithCipher(c)}
	if cfg.RedisURL != "" {
		rdb, err := lock.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, ingest.WithLocker(lock.NewLocker(rdb, "")))
		a.pings = append(a.pings, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		a.closers = append(a.closers, rdb.Close)
	}

	var pub notify.Publisher = notify.NewLogPublisher(log)
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaAlertsTopic)
		if err != nil {
			a.Close()
			return nil, err
		}
		pub = kp
	}
	a.closers = append(a.closers, pub.Close)

	a.Registry = platforms.Default(cfg, platforms.NewHTTPClient(cfg.AdapterTimeout))
	a.Syncer = ingest.NewSyncer(a.Store, a.Registry, log, cfg, opts...)
	a.Metrics = metrics.NewService(a.Store)
	a.Alerts = alerts.NewService(a.Store, pub, log, cfg.AlertWindowDays)
	a.Seeder = mockdata.NewSeeder(a.Store, log)
	a.Scheduler = ingest.NewScheduler(a.Syncer, a.Alerts, cfg.SyncInterval, log)
	return a, nil
}

// Ready pings every remote backend.
func (a *App) Ready(ctx context.Context) error {
	for _, p := range a.pings {
		if err := p(ctx); err != nil {
			return fmt.Errorf("not ready: %w", err)
		}
	}
	return nil
}

// Close releases backends in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
