package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

func newRefreshCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "refresh-tickets",
		Short: "Stamp updated_at on every ticket once per day, skipping tickets already refreshed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if cfg.Postgres.DSN == "" {
				return errors.New("refresh-tickets needs POSTGRES_DSN")
			}
			repos, err := openRepositories(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("open repositories: %w", err)
			}
			defer repos.Close()

			rd := persistence.NewRedis(cmd.Context(), cfg.Redis, logger)
			defer rd.Close()
			if err := rd.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("redis: %w", err)
			}

			refresher := worker.NewTicketRefresher(repos.tickets, worker.NewRedisMarker(rd.Client), worker.RefreshOptions{
				Concurrency: cfg.Refresh.Concurrency,
				MaxAttempts: cfg.Refresh.MaxAttempts,
				BaseDelay:   cfg.Refresh.BaseDelay(),
				MarkerTTL:   cfg.Refresh.MarkerTTL(),
				DryRun:      dryRun,
			}, time.Now, logger)

			summary, err := refresher.Run(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("ticket refresh finished",
				zap.Bool("dry_run", dryRun),
				zap.Int("total", summary.Total),
				zap.Int("processed", summary.Processed),
				zap.Int("skipped", summary.Skipped),
				zap.Int("errors", summary.Errors),
			)
			if summary.Errors > 0 {
				return fmt.Errorf("%d of %d tickets failed to refresh", summary.Errors, summary.Total)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be refreshed without writing")
	return cmd
}
