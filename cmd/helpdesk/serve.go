package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/ratelimit"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer repos.Close()

	srv, err := buildServer(ctx, cfg, logger, repos)
	if err != nil {
		return err
	}
	defer srv.close()

	if repos.inMemory {
		if err := seedDevelopmentAdmin(ctx, cfg, srv.auth, logger); err != nil {
			return err
		}
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))
		listenErr <- srv.app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("fiber listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := srv.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("graceful shutdown incomplete", zap.Error(err))
	}
	return nil
}

// server is the assembled HTTP application and the background work it owns.
type server struct {
	app   *fiber.App
	auth  *service.AuthService
	close func()
}

func buildServer(ctx context.Context, cfg *config.Config, logger *zap.Logger, repos *repositories) (*server, error) {
	metrics := observability.NewMetrics()
	metrics.SetBuildInfo(cfg.App.Version)

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	if err != nil {
		return nil, err
	}
	guard := auth.NewGuard(tokens, repos.identities, time.Now)

	dispatcher := events.NewInMemoryDispatcher()
	notifications := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(dispatcher, notifications, metrics)

	authService := service.NewAuthService(service.AuthDependencies{
		IdentityRepo: repos.identities,
		Tokens:       tokens,
		Hasher:       auth.NewHasher(cfg.Auth.BcryptCost),
		Guard:        guard,
		Logger:       logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   repos.tickets,
		CommentRepo:  repos.comments,
		IdentityRepo: repos.identities,
		HistoryRepo:  repos.history,
		Guard:        guard,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})

	var readiness []handlers.Dependency
	if repos.postgres != nil {
		readiness = append(readiness, handlers.Dependency{Name: "postgres", Pinger: repos.postgres})
	}

	limiterStore, redisClient, err := openLimiterStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		readiness = append(readiness, handlers.Dependency{Name: "redis", Pinger: redisClient})
	}
	limiter := ratelimit.NewLimiter(limiterStore, map[ratelimit.Class]ratelimit.Policy{
		ratelimit.ClassLogin:    {Limit: cfg.RateLimit.LoginLimit, Window: cfg.RateLimit.LoginWindow()},
		ratelimit.ClassRegister: {Limit: cfg.RateLimit.RegisterLimit, Window: cfg.RateLimit.RegisterWindow()},
	}, time.Now, logger)

	var throttle *ratelimit.Throttle
	if cfg.RateLimit.GeneralRPS > 0 {
		throttle = ratelimit.NewThrottle(float64(cfg.RateLimit.GeneralRPS), cfg.RateLimit.GeneralBurst)
	}

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go ratelimit.RunJanitor(janitorCtx, cfg.RateLimit.PruneInterval(), time.Now, janitorTasks(limiterStore, limiter, throttle)...)

	app := httptransport.NewServer(httptransport.ServerDeps{
		App:        cfg.App,
		Production: cfg.IsProduction(),
		Logger:     logger,
		Metrics:    metrics,
		Auth:       authService,
		Tickets:    ticketService,
		Guard:      guard,
		Limiter:    limiter,
		Throttle:   throttle,
		Readiness:  readiness,
	})

	return &server{
		app:  app,
		auth: authService,
		close: func() {
			stopJanitor()
			redisClient.Close()
		},
	}, nil
}

func openLimiterStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ratelimit.Store, *persistence.Redis, error) {
	switch cfg.RateLimit.Backend {
	case "memory":
		return ratelimit.NewMemoryStore(), nil, nil
	case "redis":
		rd := persistence.NewRedis(ctx, cfg.Redis, logger)
		return ratelimit.NewRedisStore(rd.Client), rd, nil
	default:
		return nil, nil, errors.New("unknown rate limit backend " + cfg.RateLimit.Backend)
	}
}

func janitorTasks(store ratelimit.Store, limiter *ratelimit.Limiter, throttle *ratelimit.Throttle) []func(time.Time) {
	var tasks []func(time.Time)
	if mem, ok := store.(*ratelimit.MemoryStore); ok {
		tasks = append(tasks, func(now time.Time) { mem.Prune(now, limiter.MaxWindow()) })
	}
	if throttle != nil {
		tasks = append(tasks, func(now time.Time) { throttle.Sweep(now) })
	}
	return tasks
}
