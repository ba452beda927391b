package client

import (
	"context"
	"strings"
	"testing"

	mail "github.com/go-mail/mail/v2"

	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

type fakeSender struct {
	sent []*mail.Message
}

func (f *fakeSender) DialAndSend(m ...*mail.Message) error {
	f.sent = append(f.sent, m...)
	return nil
}

func TestMailer_AddressesRecipient(t *testing.T) {
	sender := &fakeSender{}
	m := &Mailer{sender: sender, from: "IP Office <no-reply@ipo.example>", domain: "ipo.example"}

	err := m.Publish(context.Background(), workflow.Event{ID: "ev-1", Type: workflow.EventCompleted, SubmissionID: "sub-1", RecipientID: "owner-1", Message: "Certificate PAT-2026-000001 issued"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages", len(sender.sent))
	}
	msg := sender.sent[0]
	if to := msg.GetHeader("To"); len(to) != 1 || to[0] != "owner-1@ipo.example" {
		t.Fatalf("To = %v", to)
	}
	if subj := msg.GetHeader("Subject"); !strings.Contains(subj[0], "approved") {
		t.Fatalf("Subject = %v", subj)
	}
}

func TestMailer_NoDomainFails(t *testing.T) {
	m := &Mailer{sender: &fakeSender{}, from: "no-reply@ipo.example"}
	err := m.Publish(context.Background(), workflow.Event{ID: "ev-1", Type: workflow.EventRejected, RecipientID: "owner-1"})
	if err == nil {
		t.Fatal("expected an error for an unroutable recipient")
	}
	if err := m.Publish(context.Background(), workflow.Event{ID: "ev-2", Type: workflow.EventRejected, RecipientID: "owner@ipo.example"}); err != nil {
		t.Fatalf("address recipient: %v", err)
	}
}
