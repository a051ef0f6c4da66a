package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketUpdated       EventType = "ticket_updated"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketDeleted       EventType = "ticket_deleted"
	EventCommentAdded        EventType = "comment_added"
)

// Actor identifies who caused an event.
type Actor struct {
	IdentityID int64       `json:"identity_id"`
	Role       domain.Role `json:"role"`
}

// ActorOf builds the actor for an identity.
func ActorOf(identity *domain.Identity) Actor {
	if identity == nil {
		return Actor{Role: domain.RoleRegular}
	}
	return Actor{IdentityID: identity.ID, Role: identity.Role()}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEvent stamps a fresh event id.
func NewEvent(eventType EventType, ticketID int64, actor Actor, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: at,
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	OwnerID     int64                `json:"owner_id"`
	Urgency     domain.TicketUrgency `json:"urgency"`
	RequestType domain.RequestType   `json:"request_type"`
}

// TicketUpdatedPayload lists the fields a patch changed.
type TicketUpdatedPayload struct {
	Fields []string `json:"fields"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketAssignedPayload payload. A nil OperatorID means the operator was cleared.
type TicketAssignedPayload struct {
	OperatorID         *int64 `json:"operator_id,omitempty"`
	PreviousOperatorID *int64 `json:"previous_operator_id,omitempty"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	OwnerID int64 `json:"owner_id"`
}

// CommentAddedPayload payload.
type CommentAddedPayload struct {
	CommentID   int64  `json:"comment_id"`
	AuthorID    int64  `json:"author_id"`
	BodyPreview string `json:"body_preview"`
}
