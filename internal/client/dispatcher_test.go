package client

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pesio-ai/be-ip-review/internal/platform/clock"
	"github.com/pesio-ai/be-ip-review/internal/platform/logger"
	"github.com/pesio-ai/be-ip-review/internal/repository"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

type recordingPublisher struct {
	got  []workflow.Event
	fail map[string]bool
}

func (p *recordingPublisher) Publish(ctx context.Context, ev workflow.Event) error {
	if p.fail[ev.ID] {
		return fmt.Errorf("broker unavailable")
	}
	p.got = append(p.got, ev)
	return nil
}

func seedOutbox(t *testing.T, store *repository.MemoryStore, ids ...string) {
	t.Helper()
	events := make([]workflow.Event, len(ids))
	for i, id := range ids {
		events[i] = workflow.Event{ID: id, Type: workflow.EventSubmitted, SubmissionID: "sub-1", RecipientID: "owner-1"}
	}
	err := store.InTransaction(context.Background(), func(tx repository.Tx) error {
		return tx.Outbox().Enqueue(context.Background(), events)
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func pending(t *testing.T, store *repository.MemoryStore) []*repository.OutboxMessage {
	t.Helper()
	var out []*repository.OutboxMessage
	err := store.InTransaction(context.Background(), func(tx repository.Tx) error {
		var err error
		// read past any lease without taking one
		out, err = tx.Outbox().ClaimPending(context.Background(), 100, 3, time.Now().Add(time.Hour), 0)
		return err
	})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	return out
}

func newTestDispatcher(store repository.Store, pub Publisher) *Dispatcher {
	clk := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), time.Second)
	return NewDispatcher(store, pub, clk, DispatcherConfig{BatchSize: 10, MaxAttempts: 3}, logger.Nop())
}

func TestDispatcher_DeliversAndMarks(t *testing.T) {
	store := repository.NewMemoryStore()
	seedOutbox(t, store, "ev-1", "ev-2")
	pub := &recordingPublisher{}

	res, err := newTestDispatcher(store, pub).DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if res.Delivered != 2 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(pub.got) != 2 || pub.got[0].ID != "ev-1" {
		t.Fatalf("published = %+v", pub.got)
	}
	if left := pending(t, store); len(left) != 0 {
		t.Fatalf("%d messages still pending", len(left))
	}
}

func TestDispatcher_FailureRetriedUntilMaxAttempts(t *testing.T) {
	store := repository.NewMemoryStore()
	seedOutbox(t, store, "ev-1", "ev-2")
	pub := &recordingPublisher{fail: map[string]bool{"ev-2": true}}
	d := newTestDispatcher(store, pub)

	for pass := 1; pass <= 3; pass++ {
		res, err := d.DrainOnce(context.Background())
		if err != nil {
			t.Fatalf("pass %d: %v", pass, err)
		}
		if res.Failed != 1 {
			t.Fatalf("pass %d: result = %+v", pass, res)
		}
	}

	res, err := d.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("final pass: %v", err)
	}
	if res.Delivered != 0 || res.Failed != 0 {
		t.Fatalf("abandoned message retried: %+v", res)
	}
	if len(pub.got) != 1 || pub.got[0].ID != "ev-1" {
		t.Fatalf("published = %+v", pub.got)
	}
}

// storePublisher reads the store while publishing, like a publisher that
// resolves recipients from the database.
type storePublisher struct {
	store repository.Store
	fail  bool
}

func (p *storePublisher) Publish(ctx context.Context, ev workflow.Event) error {
	err := p.store.InTransaction(ctx, func(tx repository.Tx) error {
		_, err := tx.Tracking().ListBySubmission(ctx, ev.SubmissionID)
		return err
	})
	if err != nil {
		return err
	}
	if p.fail {
		return fmt.Errorf("smtp down")
	}
	return nil
}

func TestDispatcher_PublishesOutsideTransaction(t *testing.T) {
	store := repository.NewMemoryStore()
	seedOutbox(t, store, "ev-1", "ev-2")
	d := newTestDispatcher(store, &storePublisher{store: store, fail: true})

	done := make(chan DrainResult, 1)
	go func() {
		res, err := d.DrainOnce(context.Background())
		if err != nil {
			t.Errorf("drain: %v", err)
		}
		done <- res
	}()
	select {
	case res := <-done:
		if res.Failed != 2 {
			t.Fatalf("result = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("drain blocked while publishing")
	}

	left := pending(t, store)
	if len(left) != 2 {
		t.Fatalf("%d messages pending, want 2", len(left))
	}
	for _, m := range left {
		if m.Attempts != 1 || m.LastAttemptAt == nil || m.ClaimedUntil != nil {
			t.Fatalf("failed message not marked: %+v", m)
		}
	}
}

func TestDispatcher_RunStopsOnCancel(t *testing.T) {
	store := repository.NewMemoryStore()
	seedOutbox(t, store, "ev-1")
	pub := &recordingPublisher{}
	d := NewDispatcher(store, pub, clock.Real(), DispatcherConfig{PollInterval: time.Millisecond}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(pending(t, store)) > 0 {
		select {
		case <-deadline:
			t.Fatal("message not delivered")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
