package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const commentPreviewLen = 80

// TicketService coordinates ticket and comment workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	identities repository.IdentityRepository
	history    repository.TicketHistoryRepository
	guard      *auth.Guard
	dispatcher events.Dispatcher
	now        func() time.Time
	logger     *zap.Logger
}

// TicketDependencies bundles requirements for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	CommentRepo  repository.CommentRepository
	IdentityRepo repository.IdentityRepository
	HistoryRepo  repository.TicketHistoryRepository // optional
	Guard        *auth.Guard
	Dispatcher   events.Dispatcher
	Clock        func() time.Time
	Logger       *zap.Logger
}

// TicketCreateInput describes ticket creation payload. Status and operator are not accepted.
type TicketCreateInput struct {
	Description string
	Urgency     domain.TicketUrgency
	RequestType domain.RequestType
}

// TicketListFilter describes listing filters. Page is 1-based.
type TicketListFilter struct {
	Status      *domain.TicketStatus
	Urgency     *domain.TicketUrgency
	RequestType *domain.RequestType
	OperatorID  *int64
	Search      string
	Page        int
	PageSize    int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		identities: deps.IdentityRepo,
		history:    deps.HistoryRepo,
		guard:      deps.Guard,
		dispatcher: deps.Dispatcher,
		now:        deps.Clock,
		logger:     deps.Logger,
	}
}

// CreateTicket opens a ticket owned by actor.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.Identity, input TicketCreateInput) (*domain.Ticket, error) {
	if err := s.guard.Require(actor, auth.ActionTicketCreate, auth.Resource{}); err != nil {
		return nil, err
	}
	now := s.now()
	ticket, err := domain.NewTicket(actor.ID, input.Description, input.Urgency, input.RequestType, now)
	if err != nil {
		return nil, mapDomainError(err)
	}
	if err := s.tickets.Create(ctx, &ticket); err != nil {
		return nil, mapRepoError(err, "ticket")
	}

	s.publishEvent(ctx, events.NewEvent(events.EventTicketCreated, ticket.ID, events.ActorOf(actor), now,
		events.TicketCreatedPayload{
			OwnerID:     ticket.CreatedByID,
			Urgency:     ticket.Urgency,
			RequestType: ticket.RequestType,
		}))
	return &ticket, nil
}

// ListTickets returns tickets visible to actor: all for admins, own for everyone else.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.Identity, filter TicketListFilter) ([]domain.Ticket, error) {
	if err := s.guard.Require(actor, auth.ActionTicketList, auth.Resource{}); err != nil {
		return nil, err
	}
	if err := validateListFilter(filter); err != nil {
		return nil, err
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = repository.DefaultPageSize
	}
	if pageSize > repository.MaxPageSize {
		pageSize = repository.MaxPageSize
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	tickets, err := s.tickets.List(ctx, repository.TicketFilter{
		OwnerID:     s.guard.TicketScope(actor),
		Status:      filter.Status,
		Urgency:     filter.Urgency,
		RequestType: filter.RequestType,
		OperatorID:  filter.OperatorID,
		SearchTerm:  filter.Search,
		Limit:       pageSize,
		Offset:      (page - 1) * pageSize,
	})
	if err != nil {
		return nil, mapRepoError(err, "ticket")
	}
	return tickets, nil
}

// GetTicket fetches a ticket the actor may read. Missing tickets are reported before access.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.Identity, id int64) (*domain.Ticket, error) {
	return s.loadTicket(ctx, actor, id, auth.ActionTicketRead)
}

// UpdateTicket validates and applies a patch. Nothing is written when the patch is rejected.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *domain.Identity, id int64, patch domain.TicketPatch) (*domain.Ticket, error) {
	current, err := s.loadTicket(ctx, actor, id, auth.ActionTicketUpdate)
	if err != nil {
		return nil, err
	}

	role := actor.Role()
	patch = patch.ForRole(role)
	if patch.Operator.Set && patch.Operator.Value != nil {
		if err := s.ensureOperator(ctx, *patch.Operator.Value); err != nil {
			return nil, err
		}
	}

	next, err := domain.ApplyTicketPatch(*current, patch, role, s.now())
	if err != nil {
		return nil, mapDomainError(err)
	}
	if err := s.tickets.Update(ctx, &next); err != nil {
		return nil, mapRepoError(err, "ticket")
	}

	s.recordHistory(ctx, actor, *current, next)
	s.publishChanges(ctx, actor, *current, next)
	return &next, nil
}

// ListHistory returns the audit trail of a ticket, oldest first.
func (s *TicketService) ListHistory(ctx context.Context, actor *domain.Identity, ticketID int64) ([]domain.TicketHistory, error) {
	if _, err := s.loadTicket(ctx, actor, ticketID, auth.ActionTicketRead); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err, "ticket")
	}
	return entries, nil
}

// DeleteTicket removes a ticket and its comments.
func (s *TicketService) DeleteTicket(ctx context.Context, actor *domain.Identity, id int64) error {
	ticket, err := s.loadTicket(ctx, actor, id, auth.ActionTicketDelete)
	if err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, id); err != nil {
		return mapRepoError(err, "ticket")
	}
	s.publishEvent(ctx, events.NewEvent(events.EventTicketDeleted, id, events.ActorOf(actor), s.now(),
		events.TicketDeletedPayload{OwnerID: ticket.CreatedByID}))
	return nil
}

// ListComments returns the thread of a ticket, oldest first.
func (s *TicketService) ListComments(ctx context.Context, actor *domain.Identity, ticketID int64) ([]domain.Comment, error) {
	if _, err := s.loadTicket(ctx, actor, ticketID, auth.ActionCommentList); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err, "comment")
	}
	return comments, nil
}

// AddComment appends a comment authored by actor.
func (s *TicketService) AddComment(ctx context.Context, actor *domain.Identity, ticketID int64, body string) (*domain.Comment, error) {
	if _, err := s.loadTicket(ctx, actor, ticketID, auth.ActionCommentAdd); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("comment body must not be empty", map[string]any{"field": "body"})
	}

	comment := &domain.Comment{
		TicketID:  ticketID,
		AuthorID:  actor.ID,
		Body:      body,
		CreatedAt: s.now(),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, mapRepoError(err, "ticket")
	}
	comment.AuthorName = actor.Name

	s.publishEvent(ctx, events.NewEvent(events.EventCommentAdded, ticketID, events.ActorOf(actor), comment.CreatedAt,
		events.CommentAddedPayload{
			CommentID:   comment.ID,
			AuthorID:    actor.ID,
			BodyPreview: preview(body, commentPreviewLen),
		}))
	return comment, nil
}

func (s *TicketService) loadTicket(ctx context.Context, actor *domain.Identity, id int64, action auth.Action) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized(auth.MsgUnauthenticated)
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "ticket")
	}
	if err := s.guard.Require(actor, action, auth.TicketResource(ticket)); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) ensureOperator(ctx context.Context, id int64) error {
	operator, err := s.identities.GetByID(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return mapRepoError(err, "user")
	}
	if err != nil || !operator.IsAdmin || !operator.IsActive {
		return apperrors.NewValidationError("operator must be an active admin", map[string]any{"field": "operator_id"})
	}
	return nil
}

// recordHistory is best effort: the ticket write has already succeeded and is never retried.
func (s *TicketService) recordHistory(ctx context.Context, actor *domain.Identity, before, after domain.Ticket) {
	if s.history == nil {
		return
	}
	for _, entry := range domain.DiffTicket(before, after, actor.ID, after.UpdatedAt) {
		if err := s.history.Create(ctx, &entry); err != nil {
			s.logger.Warn("ticket history write failed",
				zap.Int64("ticket_id", after.ID),
				zap.String("change_type", string(entry.ChangeType)),
				zap.Error(err))
		}
	}
}

func (s *TicketService) publishChanges(ctx context.Context, actor *domain.Identity, before, after domain.Ticket) {
	actorRef := events.ActorOf(actor)
	at := after.UpdatedAt

	var fields []string
	if before.Description != after.Description {
		fields = append(fields, "description")
	}
	if before.Urgency != after.Urgency {
		fields = append(fields, "urgency")
	}
	if before.RequestType != after.RequestType {
		fields = append(fields, "request_type")
	}
	if before.Status != after.Status {
		fields = append(fields, "status")
		s.publishEvent(ctx, events.NewEvent(events.EventTicketStatusChanged, after.ID, actorRef, at,
			events.TicketStatusChangedPayload{OldStatus: before.Status, NewStatus: after.Status}))
	}
	if !sameID(before.OperatorID, after.OperatorID) {
		fields = append(fields, "operator_id")
		s.publishEvent(ctx, events.NewEvent(events.EventTicketAssigned, after.ID, actorRef, at,
			events.TicketAssignedPayload{OperatorID: after.OperatorID, PreviousOperatorID: before.OperatorID}))
	}
	if len(fields) > 0 {
		s.publishEvent(ctx, events.NewEvent(events.EventTicketUpdated, after.ID, actorRef, at,
			events.TicketUpdatedPayload{Fields: fields}))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.Int64("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func validateListFilter(f TicketListFilter) error {
	details := map[string]any{}
	if f.Status != nil && !f.Status.Valid() {
		details["status"] = "unknown status"
	}
	if f.Urgency != nil && !f.Urgency.Valid() {
		details["urgency"] = "unknown urgency"
	}
	if f.RequestType != nil && !f.RequestType.Valid() {
		details["request_type"] = "unknown request type"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid ticket filter", details)
	}
	return nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func preview(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
