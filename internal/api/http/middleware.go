package http

import (
	"context"
	"errors"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/ratelimit"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				domainErr := toDomainError(err)
				metrics.RecordError(observability.RouteLabel(c), c.Method(), domainErr.Code)
				if domainErr.HTTPStatus >= fiber.StatusInternalServerError {
					logger.Error("request failed", zap.Error(domainErr), zap.String("path", c.Path()))
				}
				writeError(c, domainErr)
				err = nil
			}
		}()
		return c.Next()
	}
}

// fallbackErrorHandler covers errors raised before any middleware runs, such as an oversized body.
func fallbackErrorHandler(c *fiber.Ctx, err error) error {
	writeError(c, toDomainError(err))
	return nil
}

func writeError(c *fiber.Ctx, domainErr *apperrors.DomainError) {
	body := fiber.Map{
		"code":    domainErr.Code,
		"message": domainErr.Message,
	}
	if len(domainErr.Details) > 0 {
		body["details"] = domainErr.Details
	}
	if secs, ok := domainErr.Details["retry_after_seconds"].(int); ok {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
	}
	c.Status(domainErr.HTTPStatus)
	_ = c.JSON(fiber.Map{"error": body})
}

// toDomainError also translates fiber's own errors (unknown route, bad method, oversized body).
func toDomainError(err error) *apperrors.DomainError {
	var fe *fiber.Error
	if !errors.As(err, &fe) {
		return apperrors.ToDomainError(err)
	}
	code := apperrors.CodeValidation
	switch {
	case fe.Code == fiber.StatusUnauthorized:
		code = apperrors.CodeUnauthorized
	case fe.Code == fiber.StatusForbidden:
		code = apperrors.CodeForbidden
	case fe.Code == fiber.StatusNotFound:
		code = apperrors.CodeNotFound
	case fe.Code == fiber.StatusMethodNotAllowed:
		code = "METHOD_NOT_ALLOWED"
	case fe.Code == fiber.StatusRequestEntityTooLarge:
		code = "PAYLOAD_TOO_LARGE"
	case fe.Code == fiber.StatusTooManyRequests:
		code = apperrors.CodeRateLimited
	case fe.Code >= fiber.StatusInternalServerError:
		return apperrors.ToDomainError(err)
	}
	return apperrors.NewDomainError(code, fe.Message, fe.Code, nil)
}

// ClientIP returns the function used to key rate limits. X-Forwarded-For is honored only behind a trusted proxy.
func ClientIP(trustProxy bool) func(c *fiber.Ctx) string {
	return func(c *fiber.Ctx) string {
		if trustProxy {
			if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
				if first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); first != "" {
					return first
				}
			}
		}
		return c.IP()
	}
}

func throttleMiddleware(throttle *ratelimit.Throttle, clientIP func(*fiber.Ctx) string, metrics *observability.Metrics, now func() time.Time) fiber.Handler {
	return func(c *fiber.Ctx) error {
		decision := throttle.Allow(clientIP(c), now())
		if !decision.Allowed {
			metrics.RecordRateLimited("general")
			return apperrors.NewRateLimited(decision.RetryAfter)
		}
		return c.Next()
	}
}

func rateLimitMiddleware(limiter *ratelimit.Limiter, class ratelimit.Class, clientIP func(*fiber.Ctx) string, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		decision := limiter.Allow(c.UserContext(), class, clientIP(c))
		if !decision.Allowed {
			metrics.RecordRateLimited(string(class))
			return apperrors.NewRateLimited(decision.RetryAfter)
		}
		return c.Next()
	}
}
