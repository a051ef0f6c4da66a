package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew      TicketStatus = "new"
	TicketStatusAssigned TicketStatus = "assigned"
	TicketStatusPending  TicketStatus = "pending"
	TicketStatusClosed   TicketStatus = "closed"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusAssigned, TicketStatusPending, TicketStatusClosed:
		return true
	}
	return false
}

// TicketUrgency enumerates how pressing a ticket is.
type TicketUrgency string

const (
	TicketUrgencyLow    TicketUrgency = "low"
	TicketUrgencyNormal TicketUrgency = "normal"
	TicketUrgencyHigh   TicketUrgency = "high"
)

// Valid reports whether u is a known urgency.
func (u TicketUrgency) Valid() bool {
	switch u {
	case TicketUrgencyLow, TicketUrgencyNormal, TicketUrgencyHigh:
		return true
	}
	return false
}

// RequestType categorizes what the requester needs help with.
type RequestType string

const (
	RequestTypeSoftware    RequestType = "software"
	RequestTypeHardware    RequestType = "hardware"
	RequestTypeEnvironment RequestType = "environment"
	RequestTypeLogistics   RequestType = "logistics"
	RequestTypeOther       RequestType = "other"
)

// Valid reports whether r is a known request type.
func (r RequestType) Valid() bool {
	switch r {
	case RequestTypeSoftware, RequestTypeHardware, RequestTypeEnvironment, RequestTypeLogistics, RequestTypeOther:
		return true
	}
	return false
}

// ErrInvalidTicket marks malformed ticket input on creation.
var ErrInvalidTicket = errors.New("invalid ticket")

func invalidTicket(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidTicket}, args...)...)
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          int64
	Description string
	Status      TicketStatus
	Urgency     TicketUrgency
	RequestType RequestType
	CreatedByID int64
	OperatorID  *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewTicket builds a ticket owned by ownerID. Status and operator are never caller supplied.
func NewTicket(ownerID int64, description string, urgency TicketUrgency, requestType RequestType, now time.Time) (Ticket, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Ticket{}, invalidTicket("description must not be empty")
	}
	if urgency == "" {
		urgency = TicketUrgencyNormal
	}
	if !urgency.Valid() {
		return Ticket{}, invalidTicket("unknown urgency %q", urgency)
	}
	if !requestType.Valid() {
		return Ticket{}, invalidTicket("unknown request type %q", requestType)
	}
	return Ticket{
		Description: description,
		Status:      TicketStatusNew,
		Urgency:     urgency,
		RequestType: requestType,
		CreatedByID: ownerID,
		OperatorID:  nil,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// OwnedBy reports whether identityID created the ticket.
func (t *Ticket) OwnedBy(identityID int64) bool {
	return t != nil && t.CreatedByID == identityID
}
