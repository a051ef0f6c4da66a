package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/ratelimit"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

const (
	defaultBodyLimit = 1 << 20

	productionCSP  = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"
	developmentCSP = "default-src 'self'; frame-ancestors 'none'"
)

// ServerDeps bundles everything the HTTP server needs.
type ServerDeps struct {
	App        config.AppConfig
	Production bool
	Logger     *zap.Logger
	Metrics    *observability.Metrics

	Auth    *service.AuthService
	Tickets *service.TicketService
	Guard   *auth.Guard
	Limiter *ratelimit.Limiter
	// Throttle is optional.
	Throttle  *ratelimit.Throttle
	Clock     func() time.Time
	Readiness []handlers.Dependency
}

// NewServer builds the fiber application with middlewares and routes registered.
func NewServer(deps ServerDeps) *fiber.App {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	app := fiber.New(fiber.Config{
		AppName:               deps.App.Name,
		BodyLimit:             defaultBodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          fallbackErrorHandler,
	})
	RegisterMiddlewares(app, deps)

	clientIP := ClientIP(deps.App.TrustProxy)
	validator := dto.NewValidator()
	onLogin := func(c *fiber.Ctx) {
		deps.Limiter.Reset(c.UserContext(), ratelimit.ClassLogin, clientIP(c))
	}

	var throttle fiber.Handler
	if deps.Throttle != nil {
		throttle = throttleMiddleware(deps.Throttle, clientIP, deps.Metrics, deps.Clock)
	}

	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler(deps.App.Name, deps.App.Version, deps.Readiness...),
		Users:          handlers.NewUsersHandler(deps.Auth, validator, deps.Metrics, onLogin),
		Tickets:        handlers.NewTicketsHandler(deps.Tickets, validator),
		AuthMiddleware: auth.NewAuthMiddleware(deps.Guard),
		Limiter:        deps.Limiter,
		ClientIP:       clientIP,
		Metrics:        deps.Metrics,
		Throttle:       throttle,
	})
	return app
}

// RegisterMiddlewares attaches global middlewares. The request logger wraps error handling
// so it observes the final status.
func RegisterMiddlewares(app *fiber.App, deps ServerDeps) {
	app.Use(requestid.New(requestid.Config{
		Header:     fiber.HeaderXRequestID,
		Generator:  observability.NewRequestID,
		ContextKey: observability.RequestIDKey,
	}))
	app.Use(observability.RequestLogger(deps.Logger, deps.Metrics))
	app.Use(errorHandlingMiddleware(deps.Logger, deps.Metrics))

	csp := developmentCSP
	if deps.Production {
		csp = productionCSP
	}
	app.Use(helmet.New(helmet.Config{
		XSSProtection:         "0",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: csp,
		HSTSMaxAge:            31536000,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: deps.App.CORSOrigins,
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Authorization,Content-Type,X-Request-ID",
	}))

	if timeout := deps.App.RequestTimeout(); timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
}
