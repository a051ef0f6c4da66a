package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-service/internal/persistence"
)

func newMigrateCmd() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	migrate.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if cfg.Postgres.DSN == "" {
				return errors.New("migrate needs POSTGRES_DSN")
			}
			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			defer pg.Close()
			return persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), logger)
		},
	})
	return migrate
}
