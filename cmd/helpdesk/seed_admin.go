package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// developmentAdminPassword is used only outside production when ADMIN_PASSWORD is unset.
const developmentAdminPassword = "Admin123!"

func newSeedAdminCmd() *cobra.Command {
	var email, name, password string
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the bootstrap administrator, or promote an existing identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if cfg.Postgres.DSN == "" {
				return errors.New("seed-admin needs POSTGRES_DSN; the in-memory store seeds itself on serve")
			}
			if email != "" {
				cfg.Admin.Email = email
			}
			if name != "" {
				cfg.Admin.Name = name
			}
			if password != "" {
				cfg.Admin.Password = password
			}

			repos, err := openRepositories(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("storage: %w", err)
			}
			defer repos.Close()

			authService := service.NewAuthService(service.AuthDependencies{
				IdentityRepo: repos.identities,
				Hasher:       auth.NewHasher(cfg.Auth.BcryptCost),
				Logger:       logger,
			})
			return seedAdmin(cmd.Context(), cfg, authService, logger)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email (default ADMIN_EMAIL)")
	cmd.Flags().StringVar(&name, "name", "", "admin display name (default ADMIN_NAME)")
	cmd.Flags().StringVar(&password, "password", "", "admin password (default ADMIN_PASSWORD)")
	return cmd
}

// adminInput resolves the seed credentials. Production refuses to fall back to the development password.
func adminInput(cfg *config.Config) (service.SeedAdminInput, error) {
	password := cfg.Admin.Password
	if password == "" {
		if cfg.IsProduction() {
			return service.SeedAdminInput{}, errors.New("ADMIN_PASSWORD is required in production")
		}
		password = developmentAdminPassword
	}
	return service.SeedAdminInput{Email: cfg.Admin.Email, Name: cfg.Admin.Name, Password: password}, nil
}

func seedAdmin(ctx context.Context, cfg *config.Config, authService *service.AuthService, logger *zap.Logger) error {
	input, err := adminInput(cfg)
	if err != nil {
		return err
	}
	admin, created, err := authService.SeedAdmin(ctx, input)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		logger.Info("admin created", zap.Int64("identity_id", admin.ID), zap.String("email", admin.Email))
	} else {
		logger.Info("existing identity promoted to admin", zap.Int64("identity_id", admin.ID), zap.String("email", admin.Email))
	}
	return nil
}

func seedDevelopmentAdmin(ctx context.Context, cfg *config.Config, authService *service.AuthService, logger *zap.Logger) error {
	if cfg.Admin.Password == "" {
		logger.Warn("seeding in-memory admin with the development password", zap.String("email", cfg.Admin.Email))
	}
	return seedAdmin(ctx, cfg, authService, logger)
}
