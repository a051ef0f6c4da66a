package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTransition is wrapped by every rejected ticket mutation.
var ErrInvalidTransition = errors.New("invalid ticket transition")

// TransitionError carries the single human readable reason a patch was rejected.
type TransitionError struct {
	Reason string
}

func (e *TransitionError) Error() string { return e.Reason }

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func transitionError(format string, args ...any) error {
	return &TransitionError{Reason: fmt.Sprintf(format, args...)}
}

// OptionalID distinguishes an absent field from an explicit null.
type OptionalID struct {
	Set   bool
	Value *int64
}

// SetID returns an OptionalID holding id.
func SetID(id int64) OptionalID {
	return OptionalID{Set: true, Value: &id}
}

// ClearID returns an OptionalID carrying an explicit null.
func ClearID() OptionalID {
	return OptionalID{Set: true}
}

// TicketPatch is a partial update. Nil pointers and unset optionals leave the field untouched.
type TicketPatch struct {
	Description *string
	Status      *TicketStatus
	Urgency     *TicketUrgency
	RequestType *RequestType
	Operator    OptionalID
}

// IsEmpty reports whether the patch changes nothing.
func (p TicketPatch) IsEmpty() bool {
	return p.Description == nil && p.Status == nil && p.Urgency == nil && p.RequestType == nil && !p.Operator.Set
}

// ForRole drops the fields the role may not change. Regular users keep content fields only.
func (p TicketPatch) ForRole(role Role) TicketPatch {
	if role == RoleAdmin {
		return p
	}
	return TicketPatch{Description: p.Description}
}

// ApplyTicketPatch validates patch against current and returns the resulting ticket.
// The patch is applied as a whole or not at all; current is never modified.
func ApplyTicketPatch(current Ticket, patch TicketPatch, role Role, now time.Time) (Ticket, error) {
	patch = patch.ForRole(role)
	next := current

	if patch.Description != nil {
		desc := strings.TrimSpace(*patch.Description)
		if desc == "" {
			return current, transitionError("description must not be empty")
		}
		next.Description = desc
	}
	if patch.Urgency != nil {
		if !patch.Urgency.Valid() {
			return current, transitionError("unknown urgency %q", *patch.Urgency)
		}
		next.Urgency = *patch.Urgency
	}
	if patch.RequestType != nil {
		if !patch.RequestType.Valid() {
			return current, transitionError("unknown request type %q", *patch.RequestType)
		}
		next.RequestType = *patch.RequestType
	}
	if patch.Operator.Set {
		next.OperatorID = copyID(patch.Operator.Value)
	}

	if patch.Status != nil {
		if !patch.Status.Valid() {
			return current, transitionError("unknown status %q", *patch.Status)
		}
		next.Status = *patch.Status
	} else if current.Status == TicketStatusNew && patch.Operator.Set && next.OperatorID != nil {
		next.Status = TicketStatusAssigned
	}

	if current.Status == TicketStatusClosed && next.Status != TicketStatusClosed {
		return current, transitionError("closed tickets cannot be reopened")
	}
	if next.Status == TicketStatusAssigned && next.OperatorID == nil {
		return current, transitionError("status %q requires an operator", TicketStatusAssigned)
	}
	if next.Status == TicketStatusNew && next.OperatorID != nil {
		return current, transitionError("status %q requires no operator", TicketStatusNew)
	}

	next.UpdatedAt = now
	return next, nil
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
