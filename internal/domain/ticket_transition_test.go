package domain

import (
	"errors"
	"testing"
	"time"
)

var (
	created = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	later   = created.Add(2 * time.Hour)
)

func ptr[T any](v T) *T { return &v }

func newTicket(t *testing.T) Ticket {
	t.Helper()
	ticket, err := NewTicket(7, "printer on fire", "", RequestTypeHardware, created)
	if err != nil {
		t.Fatalf("NewTicket: %v", err)
	}
	ticket.ID = 1
	return ticket
}

func assignedTicket(t *testing.T, operator int64) Ticket {
	t.Helper()
	ticket := newTicket(t)
	ticket.Status = TicketStatusAssigned
	ticket.OperatorID = ptr(operator)
	return ticket
}

func TestNewTicket_ForcesInitialState(t *testing.T) {
	ticket := newTicket(t)

	if ticket.Status != TicketStatusNew {
		t.Fatalf("expected status new, got %s", ticket.Status)
	}
	if ticket.OperatorID != nil {
		t.Fatalf("expected no operator, got %v", *ticket.OperatorID)
	}
	if ticket.Urgency != TicketUrgencyNormal {
		t.Fatalf("expected default urgency normal, got %s", ticket.Urgency)
	}
	if ticket.CreatedByID != 7 {
		t.Fatalf("expected owner 7, got %d", ticket.CreatedByID)
	}
}

func TestNewTicket_RejectsBadInput(t *testing.T) {
	cases := []struct {
		name        string
		description string
		urgency     TicketUrgency
		requestType RequestType
	}{
		{"blank description", "   ", TicketUrgencyLow, RequestTypeOther},
		{"unknown urgency", "help", "critical", RequestTypeOther},
		{"unknown request type", "help", TicketUrgencyLow, "plumbing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTicket(1, tc.description, tc.urgency, tc.requestType, created)
			if !errors.Is(err, ErrInvalidTicket) {
				t.Fatalf("expected ErrInvalidTicket, got %v", err)
			}
		})
	}
}

func TestApplyTicketPatch_OperatorOnNewAutoAssigns(t *testing.T) {
	next, err := ApplyTicketPatch(newTicket(t), TicketPatch{Operator: SetID(42)}, RoleAdmin, later)
	if err != nil {
		t.Fatalf("ApplyTicketPatch: %v", err)
	}
	if next.Status != TicketStatusAssigned {
		t.Fatalf("expected auto-assign, got %s", next.Status)
	}
	if next.OperatorID == nil || *next.OperatorID != 42 {
		t.Fatalf("expected operator 42, got %v", next.OperatorID)
	}
	if !next.UpdatedAt.Equal(later) {
		t.Fatalf("expected updated_at stamped to %v, got %v", later, next.UpdatedAt)
	}
}

func TestApplyTicketPatch_ExplicitStatusWinsOverAutoAssign(t *testing.T) {
	patch := TicketPatch{Status: ptr(TicketStatusPending), Operator: SetID(42)}

	next, err := ApplyTicketPatch(newTicket(t), patch, RoleAdmin, later)
	if err != nil {
		t.Fatalf("ApplyTicketPatch: %v", err)
	}
	if next.Status != TicketStatusPending {
		t.Fatalf("expected pending, got %s", next.Status)
	}
}

func TestApplyTicketPatch_OperatorOnNonNewKeepsStatus(t *testing.T) {
	current := assignedTicket(t, 3)
	current.Status = TicketStatusPending

	next, err := ApplyTicketPatch(current, TicketPatch{Operator: SetID(42)}, RoleAdmin, later)
	if err != nil {
		t.Fatalf("ApplyTicketPatch: %v", err)
	}
	if next.Status != TicketStatusPending {
		t.Fatalf("expected pending to be kept, got %s", next.Status)
	}
}

func TestApplyTicketPatch_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		current Ticket
		patch   TicketPatch
	}{
		{
			name:    "assigned without operator",
			current: newTicket(t),
			patch:   TicketPatch{Status: ptr(TicketStatusAssigned)},
		},
		{
			name:    "assigned while clearing operator",
			current: assignedTicket(t, 3),
			patch:   TicketPatch{Status: ptr(TicketStatusAssigned), Operator: ClearID()},
		},
		{
			name:    "clearing operator of assigned ticket",
			current: assignedTicket(t, 3),
			patch:   TicketPatch{Operator: ClearID()},
		},
		{
			name:    "new with operator kept",
			current: assignedTicket(t, 3),
			patch:   TicketPatch{Status: ptr(TicketStatusNew)},
		},
		{
			name:    "reopening closed",
			current: func() Ticket { tk := newTicket(t); tk.Status = TicketStatusClosed; return tk }(),
			patch:   TicketPatch{Status: ptr(TicketStatusPending)},
		},
		{
			name:    "unknown status",
			current: newTicket(t),
			patch:   TicketPatch{Status: ptr(TicketStatus("escalated"))},
		},
		{
			name:    "blank description",
			current: newTicket(t),
			patch:   TicketPatch{Description: ptr("  ")},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := tc.current
			next, err := ApplyTicketPatch(tc.current, tc.patch, RoleAdmin, later)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			var te *TransitionError
			if !errors.As(err, &te) || te.Reason == "" {
				t.Fatalf("expected a reason, got %v", err)
			}
			if next.Status != before.Status || !next.UpdatedAt.Equal(before.UpdatedAt) {
				t.Fatalf("rejected patch must not change the ticket: %+v", next)
			}
		})
	}
}

func TestApplyTicketPatch_NewWithClearedOperatorAccepted(t *testing.T) {
	patch := TicketPatch{Status: ptr(TicketStatusNew), Operator: ClearID()}

	next, err := ApplyTicketPatch(assignedTicket(t, 3), patch, RoleAdmin, later)
	if err != nil {
		t.Fatalf("ApplyTicketPatch: %v", err)
	}
	if next.Status != TicketStatusNew || next.OperatorID != nil {
		t.Fatalf("expected new without operator, got %s/%v", next.Status, next.OperatorID)
	}
}

func TestApplyTicketPatch_AdminSetsArbitraryValidCombination(t *testing.T) {
	patch := TicketPatch{
		Status:      ptr(TicketStatusClosed),
		Urgency:     ptr(TicketUrgencyHigh),
		RequestType: ptr(RequestTypeLogistics),
	}

	next, err := ApplyTicketPatch(newTicket(t), patch, RoleAdmin, later)
	if err != nil {
		t.Fatalf("ApplyTicketPatch: %v", err)
	}
	if next.Status != TicketStatusClosed || next.Urgency != TicketUrgencyHigh || next.RequestType != RequestTypeLogistics {
		t.Fatalf("unexpected result %+v", next)
	}
}

func TestApplyTicketPatch_RegularUserFieldsDropped(t *testing.T) {
	current := newTicket(t)
	patch := TicketPatch{
		Status:   ptr(TicketStatusPending),
		Urgency:  ptr(TicketUrgencyHigh),
		Operator: SetID(999),
	}

	next, err := ApplyTicketPatch(current, patch, RoleRegular, later)
	if err != nil {
		t.Fatalf("ApplyTicketPatch: %v", err)
	}
	if next.Status != TicketStatusNew || next.Urgency != TicketUrgencyNormal || next.OperatorID != nil {
		t.Fatalf("privileged fields leaked through: %+v", next)
	}

	next, err = ApplyTicketPatch(current, TicketPatch{Description: ptr("Updated description")}, RoleRegular, later)
	if err != nil {
		t.Fatalf("ApplyTicketPatch: %v", err)
	}
	if next.Description != "Updated description" {
		t.Fatalf("expected description update, got %q", next.Description)
	}
}

func TestApplyTicketPatch_DoesNotAliasOperator(t *testing.T) {
	id := int64(5)
	next, err := ApplyTicketPatch(newTicket(t), TicketPatch{Operator: OptionalID{Set: true, Value: &id}}, RoleAdmin, later)
	if err != nil {
		t.Fatalf("ApplyTicketPatch: %v", err)
	}
	id = 6
	if *next.OperatorID != 5 {
		t.Fatalf("operator aliased caller memory: %d", *next.OperatorID)
	}
}

func TestTicketPatch_IsEmpty(t *testing.T) {
	if !(TicketPatch{}).IsEmpty() {
		t.Fatalf("zero patch should be empty")
	}
	if (TicketPatch{Operator: ClearID()}).IsEmpty() {
		t.Fatalf("explicit null operator is a change")
	}
	if !(TicketPatch{Status: ptr(TicketStatusClosed)}).ForRole(RoleRegular).IsEmpty() {
		t.Fatalf("status-only patch should be empty for a regular user")
	}
}

func TestIdentity_Role(t *testing.T) {
	var nilIdentity *Identity
	if nilIdentity.Role() != RoleRegular {
		t.Fatalf("nil identity must not be admin")
	}
	if (&Identity{IsAdmin: true}).Role() != RoleAdmin {
		t.Fatalf("admin flag must map to admin role")
	}
}
