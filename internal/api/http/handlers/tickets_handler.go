package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// TicketsHandler manages ticket and comment endpoints.
type TicketsHandler struct {
	service   *service.TicketService
	validator *dto.Validator
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, validator *dto.Validator) *TicketsHandler {
	return &TicketsHandler{service: ticketService, validator: validator}
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	identity, err := caller(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := bindBody(c, h.validator, &req); err != nil {
		return err
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), identity, req.ToInput())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	identity, err := caller(c)
	if err != nil {
		return err
	}
	var query dto.TicketListQuery
	if err := bindQuery(c, h.validator, &query); err != nil {
		return err
	}
	tickets, err := h.service.ListTickets(c.UserContext(), identity, query.ToFilter())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketListResponse(tickets)})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	identity, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), identity, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdateTicket PATCH /api/tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	identity, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	req, err := dto.DecodeUpdateTicketRequest(c.Body(), identity.Role())
	if err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validator.Validate(&req); err != nil {
		return err
	}
	ticket, err := h.service.UpdateTicket(c.UserContext(), identity, id, req.ToPatch())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// DeleteTicket DELETE /api/tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	identity, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.service.DeleteTicket(c.UserContext(), identity, id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListComments GET /api/tickets/:id/comments.
func (h *TicketsHandler) ListComments(c *fiber.Ctx) error {
	identity, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	comments, err := h.service.ListComments(c.UserContext(), identity, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCommentListResponse(comments)})
}

// AddComment POST /api/tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	identity, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req dto.CommentRequest
	if err := bindBody(c, h.validator, &req); err != nil {
		return err
	}
	comment, err := h.service.AddComment(c.UserContext(), identity, id, req.Body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewCommentResponse(comment)})
}

// ListHistory GET /api/tickets/:id/history.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	identity, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	entries, err := h.service.ListHistory(c.UserContext(), identity, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryListResponse(entries)})
}
