// Command adsyncctl runs sync, alert and mock data jobs against the
// configured backends without going through the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/AngelCh415/adsync/internal/app"
	"github.com/AngelCh415/adsync/internal/config"
	"github.com/AngelCh415/adsync/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

type cli struct {
	cfg config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "adsyncctl",
		Short:         "Operate the ad sync service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			_ = godotenv.Load()
			c.cfg = config.FromEnv()
			c.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.cfg.LogLevel}))
		},
	}
	root.AddCommand(c.syncCmd(), c.alertsCmd(), c.mockCmd(), c.migrateCmd())
	return root
}

// run boots the application around fn and prints its result as JSON.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) (any, error)) error {
	ctx := cmd.Context()
	a, err := app.New(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer a.Close()
	out, err := fn(ctx, a)
	if out != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(out); encErr != nil {
			return errors.Join(err, encErr)
		}
	}
	return err
}

func (c *cli) syncCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "sync", Short: "Pull campaigns and daily metrics from the ad platforms"}

	cmd.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Sync every active account of every platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
				return a.Syncer.SyncAll(ctx)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "platform <name>",
		Short: "Sync every active account of one platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
				return a.Syncer.SyncPlatform(ctx, args[0])
			})
		},
	})

	var tenant string
	account := &cobra.Command{
		Use:   "account <platform> <account-id>",
		Short: "Sync a single connected account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
				return a.Syncer.SyncAccount(ctx, args[0], args[1], tenant, nil)
			})
		},
	}
	account.Flags().StringVar(&tenant, "tenant", "", "tenant that owns the account (defaults to the account's tenant)")
	cmd.AddCommand(account)
	return cmd
}

func (c *cli) alertsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "alerts", Short: "Evaluate and manage alert rules"}

	var tenant string
	check := &cobra.Command{
		Use:   "check",
		Short: "Evaluate active rules for one tenant, or every tenant with rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
				if tenant == "" {
					n, err := a.Alerts.CheckAllTenants(ctx)
					return map[string]int{"created": n}, err
				}
				created, err := a.Alerts.CheckAlerts(ctx, tenant)
				return map[string]int{"created": len(created)}, err
			})
		},
	}
	check.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	cmd.AddCommand(check)

	var seedTenant string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Create the preset rules for a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
				return a.Alerts.SeedPresets(ctx, seedTenant)
			})
		},
	}
	seed.Flags().StringVar(&seedTenant, "tenant", "", "tenant id")
	_ = seed.MarkFlagRequired("tenant")
	cmd.AddCommand(seed)
	return cmd
}

func (c *cli) mockCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "mock", Short: "Seed or clear demo data"}

	var (
		tenant string
		days   int
	)
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Write mock daily rows for every campaign of a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
				return a.Seeder.Seed(ctx, tenant, days)
			})
		},
	}
	seed.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	seed.Flags().IntVar(&days, "days", 30, "trailing days to fill")
	_ = seed.MarkFlagRequired("tenant")

	var clearTenant string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the mock rows of a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
				n, err := a.Seeder.Clear(ctx, clearTenant)
				return map[string]int64{"deleted": n}, err
			})
		},
	}
	clearCmd.Flags().StringVar(&clearTenant, "tenant", "", "tenant id")
	_ = clearCmd.MarkFlagRequired("tenant")

	cmd.AddCommand(seed, clearCmd)
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			db, err := store.Connect(cmd.Context(), c.log, c.cfg.DatabaseURL, 1, c.cfg.DBConnectRetries)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			if err := store.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			c.log.Info("schema migrated")
			return nil
		},
	}
}
