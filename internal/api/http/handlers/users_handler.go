package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// UsersHandler exposes registration, login and identity administration.
type UsersHandler struct {
	auth      *service.AuthService
	validator *dto.Validator
	metrics   *observability.Metrics
	// onLogin runs after a successful login, before the response is written.
	onLogin func(c *fiber.Ctx)
}

// NewUsersHandler constructs handler. onLogin may be nil.
func NewUsersHandler(authService *service.AuthService, validator *dto.Validator, metrics *observability.Metrics, onLogin func(c *fiber.Ctx)) *UsersHandler {
	return &UsersHandler{auth: authService, validator: validator, metrics: metrics, onLogin: onLogin}
}

// Register POST /api/users.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := bindBody(c, h.validator, &req); err != nil {
		return err
	}
	identity, err := h.auth.Register(c.UserContext(), req.ToInput())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewUserResponse(identity)})
}

// Login POST /api/users/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := bindBody(c, h.validator, &req); err != nil {
		return err
	}
	result, err := h.auth.Login(c.UserContext(), req.Login(), req.Password)
	if err != nil {
		h.metrics.RecordLogin("failure")
		return err
	}
	h.metrics.RecordLogin("success")
	if h.onLogin != nil {
		h.onLogin(c)
	}
	return c.JSON(fiber.Map{"data": dto.NewTokenResponse(result)})
}

// Me GET /api/users/me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	identity, err := caller(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(identity)})
}

// ChangePassword POST /api/users/me/password.
func (h *UsersHandler) ChangePassword(c *fiber.Ctx) error {
	identity, err := caller(c)
	if err != nil {
		return err
	}
	var req dto.ChangePasswordRequest
	if err := bindBody(c, h.validator, &req); err != nil {
		return err
	}
	if err := h.auth.ChangePassword(c.UserContext(), identity, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Operators GET /api/users/operators.
func (h *UsersHandler) Operators(c *fiber.Ctx) error {
	identity, err := caller(c)
	if err != nil {
		return err
	}
	operators, err := h.auth.ListOperators(c.UserContext(), identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserListResponse(operators)})
}

// Search GET /api/users/search?q=.
func (h *UsersHandler) Search(c *fiber.Ctx) error {
	identity, err := caller(c)
	if err != nil {
		return err
	}
	found, err := h.auth.SearchUsers(c.UserContext(), identity, c.Query("q"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserListResponse(found)})
}

// Get GET /api/users/:id.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	identity, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	user, err := h.auth.GetUser(c.UserContext(), identity, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// UpdateFlags PATCH /api/users/:id.
func (h *UsersHandler) UpdateFlags(c *fiber.Ctx) error {
	identity, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req dto.UpdateFlagsRequest
	if err := bindBody(c, h.validator, &req); err != nil {
		return err
	}
	user, err := h.auth.UpdateFlags(c.UserContext(), identity, id, req.ToPatch())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}
