package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// CreateTicketRequest payload. Status and operator cannot be chosen by the creator.
type CreateTicketRequest struct {
	Description string `json:"description" validate:"required,max=5000"`
	Urgency     string `json:"urgency" validate:"omitempty,oneof=low normal high"`
	RequestType string `json:"request_type" validate:"required,oneof=software hardware environment logistics other"`
}

// ToInput converts the payload for the ticket service.
func (r CreateTicketRequest) ToInput() service.TicketCreateInput {
	return service.TicketCreateInput{
		Description: r.Description,
		Urgency:     domain.TicketUrgency(r.Urgency),
		RequestType: domain.RequestType(r.RequestType),
	}
}

// OperatorField keeps the difference between an absent operator_id, an explicit null and an id.
type OperatorField struct {
	domain.OptionalID
}

// UnmarshalJSON is only reached when the key is present in the document.
func (f *OperatorField) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		f.OptionalID = domain.ClearID()
		return nil
	}
	var id int64
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	f.OptionalID = domain.SetID(id)
	return nil
}

// UpdateTicketRequest is a partial update. Fields the caller's role may not change are dropped later.
type UpdateTicketRequest struct {
	Description *string       `json:"description" validate:"omitempty,max=5000"`
	Status      *string       `json:"status" validate:"omitempty,oneof=new assigned pending closed"`
	Urgency     *string       `json:"urgency" validate:"omitempty,oneof=low normal high"`
	RequestType *string       `json:"request_type" validate:"omitempty,oneof=software hardware environment logistics other"`
	OperatorID  OperatorField `json:"operator_id"`
}

// regularWritable lists the update keys a regular user may send. Anything else is dropped unread.
var regularWritable = map[string]bool{"description": true}

// DecodeUpdateTicketRequest decodes a JSON update body for a caller with the given role.
// Keys the role may not change are removed before decoding, so they are ignored rather than rejected.
func DecodeUpdateTicketRequest(body []byte, role domain.Role) (UpdateTicketRequest, error) {
	var req UpdateTicketRequest
	if role == domain.RoleAdmin {
		err := json.Unmarshal(body, &req)
		return req, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return req, err
	}
	for key := range fields {
		if !regularWritable[key] {
			delete(fields, key)
		}
	}
	allowed, err := json.Marshal(fields)
	if err != nil {
		return req, err
	}
	err = json.Unmarshal(allowed, &req)
	return req, err
}

// ToPatch converts the payload into a domain patch.
func (r UpdateTicketRequest) ToPatch() domain.TicketPatch {
	patch := domain.TicketPatch{
		Description: r.Description,
		Operator:    r.OperatorID.OptionalID,
	}
	if r.Status != nil {
		s := domain.TicketStatus(*r.Status)
		patch.Status = &s
	}
	if r.Urgency != nil {
		u := domain.TicketUrgency(*r.Urgency)
		patch.Urgency = &u
	}
	if r.RequestType != nil {
		rt := domain.RequestType(*r.RequestType)
		patch.RequestType = &rt
	}
	return patch
}

// TicketListQuery holds list filters from the query string.
type TicketListQuery struct {
	Status      string `query:"status" validate:"omitempty,oneof=new assigned pending closed"`
	Urgency     string `query:"urgency" validate:"omitempty,oneof=low normal high"`
	RequestType string `query:"request_type" validate:"omitempty,oneof=software hardware environment logistics other"`
	OperatorID  int64  `query:"operator_id" validate:"omitempty,gt=0"`
	Search      string `query:"q" validate:"max=200"`
	Page        int    `query:"page" validate:"omitempty,min=1"`
	PageSize    int    `query:"page_size" validate:"omitempty,min=1"`
}

// ToFilter converts the query for the ticket service.
func (q TicketListQuery) ToFilter() service.TicketListFilter {
	filter := service.TicketListFilter{
		Search:   q.Search,
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	if q.Status != "" {
		s := domain.TicketStatus(q.Status)
		filter.Status = &s
	}
	if q.Urgency != "" {
		u := domain.TicketUrgency(q.Urgency)
		filter.Urgency = &u
	}
	if q.RequestType != "" {
		rt := domain.RequestType(q.RequestType)
		filter.RequestType = &rt
	}
	if q.OperatorID > 0 {
		id := q.OperatorID
		filter.OperatorID = &id
	}
	return filter
}

// TicketResponse is the public view of a ticket.
type TicketResponse struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Urgency     string    `json:"urgency"`
	RequestType string    `json:"request_type"`
	CreatedByID int64     `json:"created_by_id"`
	OperatorID  *int64    `json:"operator_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:          t.ID,
		Description: t.Description,
		Status:      string(t.Status),
		Urgency:     string(t.Urgency),
		RequestType: string(t.RequestType),
		CreatedByID: t.CreatedByID,
		OperatorID:  t.OperatorID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// NewTicketListResponse maps a page of tickets, never returning nil.
func NewTicketListResponse(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, NewTicketResponse(&tickets[i]))
	}
	return out
}

// CommentRequest payload.
type CommentRequest struct {
	Body string `json:"body" validate:"required,max=5000"`
}

// CommentResponse is a comment with its author's display name.
type CommentResponse struct {
	ID         int64     `json:"id"`
	TicketID   int64     `json:"ticket_id"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewCommentResponse maps a comment.
func NewCommentResponse(c *domain.Comment) CommentResponse {
	return CommentResponse{
		ID:         c.ID,
		TicketID:   c.TicketID,
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		Body:       c.Body,
		CreatedAt:  c.CreatedAt,
	}
}

// NewCommentListResponse maps a thread, never returning nil.
func NewCommentListResponse(comments []domain.Comment) []CommentResponse {
	out := make([]CommentResponse, 0, len(comments))
	for i := range comments {
		out = append(out, NewCommentResponse(&comments[i]))
	}
	return out
}

// HistoryResponse is one audit trail entry.
type HistoryResponse struct {
	ID          int64          `json:"id"`
	ChangedByID int64          `json:"changed_by_id"`
	ChangeType  string         `json:"change_type"`
	OldValue    map[string]any `json:"old_value"`
	NewValue    map[string]any `json:"new_value"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewHistoryListResponse maps an audit trail, never returning nil.
func NewHistoryListResponse(entries []domain.TicketHistory) []HistoryResponse {
	out := make([]HistoryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryResponse{
			ID:          e.ID,
			ChangedByID: e.ChangedByID,
			ChangeType:  string(e.ChangeType),
			OldValue:    e.OldValue,
			NewValue:    e.NewValue,
			CreatedAt:   e.CreatedAt,
		})
	}
	return out
}
