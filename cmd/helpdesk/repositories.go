package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/repository/memstore"
)

// repositories is the storage backend selected by configuration.
type repositories struct {
	identities repository.IdentityRepository
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	history    repository.TicketHistoryRepository

	postgres *persistence.Postgres
	inMemory bool
}

func (r *repositories) Close() {
	r.postgres.Close()
}

// openRepositories connects to postgres when POSTGRES_DSN is set and falls back to process memory otherwise.
func openRepositories(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*repositories, error) {
	if cfg.Postgres.DSN == "" {
		logger.Warn("POSTGRES_DSN not provided; using the in-memory store, data is lost on restart")
		store := memstore.New()
		return &repositories{
			identities: store.Identities(),
			tickets:    store.Tickets(),
			comments:   store.Comments(),
			history:    store.History(),
			inMemory:   true,
		}, nil
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			pg.Close()
			return nil, err
		}
	}
	pool := pg.PoolHandle()
	return &repositories{
		identities: repository.NewIdentityRepository(pool),
		tickets:    repository.NewTicketRepository(pool),
		comments:   repository.NewCommentRepository(pool),
		history:    repository.NewTicketHistoryRepository(pool),
		postgres:   pg,
	}, nil
}
