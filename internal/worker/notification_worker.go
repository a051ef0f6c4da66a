package worker

import (
	"context"

	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

var ticketEventTypes = []events.EventType{
	events.EventTicketCreated,
	events.EventTicketUpdated,
	events.EventTicketStatusChanged,
	events.EventTicketAssigned,
	events.EventTicketDeleted,
	events.EventCommentAdded,
}

// StartNotificationWorker registers notification handlers and event counters.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, metrics *observability.Metrics) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if dispatcher == nil || metrics == nil {
		return
	}
	for _, eventType := range ticketEventTypes {
		dispatcher.Subscribe(eventType, func(_ context.Context, event events.Event) error {
			metrics.RecordTicketEvent(string(event.Type))
			return nil
		})
	}
}
