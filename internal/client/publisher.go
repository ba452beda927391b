package client

import (
	"context"

	"github.com/pesio-ai/be-ip-review/internal/platform/logger"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// Publisher delivers one notification event. A returned error leaves the
// event in the outbox for another attempt.
type Publisher interface {
	Publish(ctx context.Context, ev workflow.Event) error
}

// LogPublisher writes events to the service log. It backs NOTIFY_DRIVER=log.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log.Component("notifications")}
}

func (p *LogPublisher) Publish(ctx context.Context, ev workflow.Event) error {
	p.log.Info().
		Str("event_id", ev.ID).
		Str("event_type", string(ev.Type)).
		Str("submission_id", ev.SubmissionID).
		Str("recipient_id", ev.RecipientID).
		Str("message", ev.Message).
		Msg("notification")
	return nil
}
