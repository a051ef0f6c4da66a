package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func bindBody(c *fiber.Ctx, v *dto.Validator, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return v.Validate(out)
}

func bindQuery(c *fiber.Ctx, v *dto.Validator, out any) error {
	if err := c.QueryParser(out); err != nil {
		return apperrors.NewValidationError("invalid query parameters", nil)
	}
	return v.Validate(out)
}

func pathID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid "+name, map[string]any{"field": name})
	}
	return id, nil
}

// caller returns the identity the auth middleware stored. Routes without it are misconfigured.
func caller(c *fiber.Ctx) (*domain.Identity, error) {
	identity, ok := auth.IdentityFromContext(c)
	if !ok || identity == nil {
		return nil, apperrors.NewUnauthorized(auth.MsgUnauthenticated)
	}
	return identity, nil
}
