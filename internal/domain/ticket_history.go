package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus   TicketChangeType = "status_change"
	ChangeTypeOperator TicketChangeType = "operator_change"
	ChangeTypeContent  TicketChangeType = "content_change"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID          int64
	TicketID    int64
	ChangedByID int64
	ChangeType  TicketChangeType
	OldValue    map[string]any
	NewValue    map[string]any
	CreatedAt   time.Time
}

// DiffTicket lists the audit entries describing the move from before to after.
// Content fields are grouped into one entry; status and operator get their own.
func DiffTicket(before, after Ticket, actorID int64, at time.Time) []TicketHistory {
	var entries []TicketHistory
	entry := func(kind TicketChangeType, oldValue, newValue map[string]any) {
		entries = append(entries, TicketHistory{
			TicketID:    after.ID,
			ChangedByID: actorID,
			ChangeType:  kind,
			OldValue:    oldValue,
			NewValue:    newValue,
			CreatedAt:   at,
		})
	}

	if before.Status != after.Status {
		entry(ChangeTypeStatus,
			map[string]any{"status": before.Status},
			map[string]any{"status": after.Status})
	}
	if !sameOptionalID(before.OperatorID, after.OperatorID) {
		entry(ChangeTypeOperator,
			map[string]any{"operator_id": before.OperatorID},
			map[string]any{"operator_id": after.OperatorID})
	}

	oldContent, newContent := map[string]any{}, map[string]any{}
	if before.Description != after.Description {
		oldContent["description"], newContent["description"] = before.Description, after.Description
	}
	if before.Urgency != after.Urgency {
		oldContent["urgency"], newContent["urgency"] = before.Urgency, after.Urgency
	}
	if before.RequestType != after.RequestType {
		oldContent["request_type"], newContent["request_type"] = before.RequestType, after.RequestType
	}
	if len(newContent) > 0 {
		entry(ChangeTypeContent, oldContent, newContent)
	}
	return entries
}

func sameOptionalID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
