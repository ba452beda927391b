package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"strings"

	mail "github.com/go-mail/mail/v2"

	"github.com/pesio-ai/be-ip-review/internal/platform/config"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// mailSender is satisfied by *mail.Dialer.
type mailSender interface {
	DialAndSend(m ...*mail.Message) error
}

// Mailer delivers notification events by SMTP. It backs NOTIFY_DRIVER=smtp.
type Mailer struct {
	sender mailSender
	from   string
	domain string
}

// NewMailer builds a Mailer using STARTTLS on the configured server.
func NewMailer(cfg config.SMTPConfig) *Mailer {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.SkipTLSVerify,
	}
	return &Mailer{sender: d, from: cfg.From, domain: cfg.RecipientDomain}
}

// address turns a recipient id into a mailbox. Ids that already look like
// addresses are used as-is; others get the configured recipient domain.
func (m *Mailer) address(recipientID string) (string, error) {
	if strings.Contains(recipientID, "@") {
		return recipientID, nil
	}
	if m.domain == "" {
		return "", fmt.Errorf("recipient %q has no address and SMTP_RECIPIENT_DOMAIN is unset", recipientID)
	}
	return recipientID + "@" + m.domain, nil
}

func (m *Mailer) Publish(ctx context.Context, ev workflow.Event) error {
	if ev.RecipientID == "" {
		return nil
	}
	to, err := m.address(ev.RecipientID)
	if err != nil {
		return err
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subjectLine(ev.Type))
	msg.SetHeader("X-Submission-ID", ev.SubmissionID)
	msg.SetBody("text/plain", ev.Message)
	msg.AddAlternative("text/html", "<p>"+html.EscapeString(ev.Message)+"</p>")

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func subjectLine(t workflow.EventType) string {
	switch t {
	case workflow.EventAssigned:
		return "A submission is waiting for your review"
	case workflow.EventRevisionRequested:
		return "Revision requested on your submission"
	case workflow.EventCompleted:
		return "Your submission has been approved"
	case workflow.EventRejected:
		return "Your submission has been rejected"
	default:
		return "Submission update: " + strings.ReplaceAll(string(t), "_", " ")
	}
}
