package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const identityKey = "auth_identity"

// AuthMiddleware validates bearer tokens and loads the caller identity.
type AuthMiddleware struct {
	guard *Guard
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(guard *Guard) *AuthMiddleware {
	return &AuthMiddleware{guard: guard}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
		return apperrors.NewUnauthorized(MsgUnauthenticated)
	}

	identity, err := m.guard.ResolveIdentity(c.UserContext(), token)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeUnauthorized) {
			c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
		}
		return err
	}

	c.Locals(identityKey, identity)
	return c.Next()
}

// RequireAction rejects callers the guard denies for an action without a resource owner.
func (m *AuthMiddleware) RequireAction(action Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, _ := IdentityFromContext(c)
		if err := m.guard.Require(identity, action, Resource{}); err != nil {
			return err
		}
		return c.Next()
	}
}

// IdentityFromContext retrieves the authenticated identity.
func IdentityFromContext(c *fiber.Ctx) (*domain.Identity, bool) {
	val := c.Locals(identityKey)
	if val == nil {
		return nil, false
	}
	identity, ok := val.(*domain.Identity)
	return identity, ok
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
