package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/ratelimit"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	Limiter        *ratelimit.Limiter
	ClientIP       func(*fiber.Ctx) string
	Metrics        *observability.Metrics
	// Throttle guards every /api route. Nil disables it.
	Throttle fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api")
	if cfg.Throttle != nil {
		api.Use(cfg.Throttle)
	}

	users := api.Group("/users")
	users.Post("", rateLimitMiddleware(cfg.Limiter, ratelimit.ClassRegister, cfg.ClientIP, cfg.Metrics), cfg.Users.Register)
	users.Post("/login", rateLimitMiddleware(cfg.Limiter, ratelimit.ClassLogin, cfg.ClientIP, cfg.Metrics), cfg.Users.Login)

	authed := cfg.AuthMiddleware.Handle
	users.Get("/me", authed, cfg.Users.Me)
	users.Post("/me/password", authed, cfg.Users.ChangePassword)
	users.Get("/operators", authed, cfg.AuthMiddleware.RequireAction(auth.ActionOperatorList), cfg.Users.Operators)
	users.Get("/search", authed, cfg.AuthMiddleware.RequireAction(auth.ActionUserSearch), cfg.Users.Search)
	users.Get("/:id", authed, cfg.Users.Get)
	users.Patch("/:id", authed, cfg.Users.UpdateFlags)

	tickets := api.Group("/tickets", authed)
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Delete("/:id", cfg.Tickets.DeleteTicket)
	tickets.Get("/:id/comments", cfg.Tickets.ListComments)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)
}
