package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/pesio-ai/be-ip-review/internal/platform/logger"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// NotificationStream is the JetStream stream holding review notifications.
const NotificationStream = "IP_REVIEW_NOTIFICATIONS"

// streamPublisher is the part of jetstream.JetStream the publisher uses.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NotificationPublisher publishes review workflow events to NATS JetStream
// for consumption by the notifications service.
//
// Subject convention: <prefix>.<event_type>, e.g. notifications.ip.advanced.
// The event id is sent as the JetStream message id so redelivery from the
// outbox is deduplicated by the stream.
type NotificationPublisher struct {
	js     streamPublisher
	prefix string
	log    *logger.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventID      string                 `json:"event_id"`
	EventType    string                 `json:"event_type"`
	Recipients   []string               `json:"recipients"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	IsActionable bool                   `json:"is_actionable,omitempty"`
	Severity     string                 `json:"severity,omitempty"`
	Category     string                 `json:"category,omitempty"`
	Message      string                 `json:"message"`
	OccurredAt   time.Time              `json:"occurred_at"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher on an existing JetStream
// context.
func NewNotificationPublisher(js streamPublisher, prefix string, log *logger.Logger) *NotificationPublisher {
	return &NotificationPublisher{js: js, prefix: prefix, log: log.Component("nats")}
}

// ConnectNATS dials the server, makes sure the notification stream covers
// prefix.>, and returns a publisher with the connection to close on
// shutdown.
func ConnectNATS(ctx context.Context, url, prefix string, log *logger.Logger) (*NotificationPublisher, *nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("be-ip-review"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       NotificationStream,
		Subjects:   []string{prefix + ".>"},
		Storage:    jetstream.FileStorage,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("ensure stream %s: %w", NotificationStream, err)
	}
	return NewNotificationPublisher(js, prefix, log), nc, nil
}

// Subject returns the subject an event type is published on.
func (p *NotificationPublisher) Subject(t workflow.EventType) string {
	return fmt.Sprintf("%s.%s", p.prefix, t)
}

func (p *NotificationPublisher) Publish(ctx context.Context, ev workflow.Event) error {
	if ev.RecipientID == "" {
		return nil
	}

	event := &NotificationEvent{
		EventID:      ev.ID,
		EventType:    string(ev.Type),
		Recipients:   []string{ev.RecipientID},
		ResourceType: "ip_submission",
		ResourceID:   ev.SubmissionID,
		IsActionable: ev.Type == workflow.EventAssigned || ev.Type == workflow.EventRevisionRequested || ev.Type == workflow.EventRevisionSubmitted,
		Severity:     severity(ev.Type),
		Category:     "ip_review",
		Message:      ev.Message,
		OccurredAt:   ev.CreatedAt,
		Payload:      ev.Payload,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	subject := p.Subject(ev.Type)
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(ev.ID)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.log.Debug().
		Str("subject", subject).
		Str("submission_id", ev.SubmissionID).
		Str("event_id", ev.ID).
		Msg("notification: event published")
	return nil
}

func severity(t workflow.EventType) string {
	switch t {
	case workflow.EventRejected:
		return "warning"
	case workflow.EventCompleted:
		return "success"
	default:
		return "info"
	}
}
