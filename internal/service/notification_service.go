package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
)

const (
	channelEmail   = "email"
	channelWebhook = "webhook"
)

// notice is one outbound message. Delivery is a log line until a mailer or webhook client exists.
type notice struct {
	channel     string
	reason      string
	recipientID *int64
	fields      []zap.Field
}

// NotificationService turns ticket events into owner, operator and on-call notices.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{dispatcher: dispatcher, logger: logger.Named("notify"), cfg: cfg}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketAssigned,
		events.EventTicketDeleted,
		events.EventCommentAdded,
	} {
		n.dispatcher.Subscribe(eventType, n.handle)
	}
}

func (n *NotificationService) handle(_ context.Context, event events.Event) error {
	notices, ok := n.noticesFor(event)
	if !ok {
		n.logger.Warn("unexpected event payload",
			zap.String("event_type", string(event.Type)),
			zap.Int64("ticket_id", event.TicketID))
		return nil
	}
	for _, nt := range notices {
		n.deliver(event, nt)
	}
	return nil
}

func (n *NotificationService) noticesFor(event events.Event) ([]notice, bool) {
	switch p := event.Payload.(type) {
	case events.TicketCreatedPayload:
		fields := []zap.Field{
			zap.String("urgency", string(p.Urgency)),
			zap.String("request_type", string(p.RequestType)),
		}
		out := []notice{{channel: channelEmail, reason: "ticket_received", recipientID: &p.OwnerID, fields: fields}}
		if p.Urgency == domain.TicketUrgencyHigh {
			out = append(out, notice{channel: channelWebhook, reason: "urgent_ticket", fields: fields})
		}
		return out, true

	case events.TicketStatusChangedPayload:
		reason := "status_changed"
		if p.NewStatus == domain.TicketStatusClosed {
			reason = "ticket_closed"
		}
		return []notice{{
			channel: channelEmail,
			reason:  reason,
			fields: []zap.Field{
				zap.String("old_status", string(p.OldStatus)),
				zap.String("new_status", string(p.NewStatus)),
			},
		}}, true

	case events.TicketAssignedPayload:
		var out []notice
		if p.OperatorID != nil {
			out = append(out, notice{channel: channelEmail, reason: "ticket_assigned_to_you", recipientID: p.OperatorID})
		}
		if p.PreviousOperatorID != nil {
			out = append(out, notice{channel: channelEmail, reason: "ticket_unassigned_from_you", recipientID: p.PreviousOperatorID})
		}
		return out, true

	case events.TicketDeletedPayload:
		return []notice{{channel: channelEmail, reason: "ticket_deleted", recipientID: &p.OwnerID}}, true

	case events.CommentAddedPayload:
		return []notice{{
			channel: channelEmail,
			reason:  "comment_added",
			fields: []zap.Field{
				zap.Int64("comment_id", p.CommentID),
				zap.Int64("author_id", p.AuthorID),
				zap.String("preview", p.BodyPreview),
			},
		}}, true
	}
	return nil, false
}

func (n *NotificationService) deliver(event events.Event, nt notice) {
	target := n.cfg.EmailFrom
	if nt.channel == channelWebhook {
		target = n.cfg.WebhookURL
	}
	if strings.TrimSpace(target) == "" {
		return
	}
	fields := append([]zap.Field{
		zap.String("channel", nt.channel),
		zap.String("reason", nt.reason),
		zap.String("event_id", event.ID),
		zap.Int64("ticket_id", event.TicketID),
		zap.Int64("actor_id", event.Actor.IdentityID),
	}, nt.fields...)
	if nt.recipientID != nil {
		// Nobody needs telling about their own action.
		if *nt.recipientID == event.Actor.IdentityID {
			return
		}
		fields = append(fields, zap.Int64("recipient_id", *nt.recipientID))
	}
	if nt.channel == channelWebhook {
		fields = append(fields, zap.String("url", target))
	} else {
		fields = append(fields, zap.String("from", target))
	}
	n.logger.Info("notification queued", fields...)
}
