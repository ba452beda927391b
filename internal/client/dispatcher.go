package client

import (
	"context"
	"time"

	"github.com/pesio-ai/be-ip-review/internal/platform/clock"
	"github.com/pesio-ai/be-ip-review/internal/platform/logger"
	"github.com/pesio-ai/be-ip-review/internal/repository"
)

// DispatcherConfig tunes the outbox poll loop. ClaimLease bounds how long a
// claimed batch stays hidden from other dispatchers if this one dies before
// marking it.
type DispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	ClaimLease   time.Duration
}

// Dispatcher drains the notification outbox through a Publisher. Delivery
// failures are recorded on the message and never surface to the workflow.
type Dispatcher struct {
	store repository.Store
	pub   Publisher
	clock clock.Clock
	cfg   DispatcherConfig
	log   *logger.Logger
}

func NewDispatcher(store repository.Store, pub Publisher, clk clock.Clock, cfg DispatcherConfig, log *logger.Logger) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = time.Minute
	}
	return &Dispatcher{store: store, pub: pub, clock: clk, cfg: cfg, log: log.Component("outbox")}
}

// DrainResult counts one pass over the outbox.
type DrainResult struct {
	Delivered int
	Failed    int
}

// DrainOnce claims one batch under a lease and attempts each message.
// Publishing runs outside any transaction; each outcome is marked in its own
// short one, which also releases the lease.
func (d *Dispatcher) DrainOnce(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	var msgs []*repository.OutboxMessage
	err := d.store.InTransaction(ctx, func(tx repository.Tx) error {
		var err error
		msgs, err = tx.Outbox().ClaimPending(ctx, d.cfg.BatchSize, d.cfg.MaxAttempts, d.clock.Now(), d.cfg.ClaimLease)
		return err
	})
	if err != nil {
		return res, err
	}

	for _, m := range msgs {
		if err := d.pub.Publish(ctx, m.Event); err != nil {
			res.Failed++
			d.log.Warn().Err(err).
				Str("event_id", m.Event.ID).
				Str("event_type", string(m.Event.Type)).
				Str("submission_id", m.Event.SubmissionID).
				Int("attempt", m.Attempts+1).
				Msg("notification delivery failed")
			reason := err.Error()
			if err := d.mark(ctx, func(o repository.OutboxRepository) error {
				return o.MarkFailed(ctx, m.Event.ID, reason, d.clock.Now())
			}); err != nil {
				return res, err
			}
			if m.Attempts+1 >= d.cfg.MaxAttempts {
				d.log.Error().Str("event_id", m.Event.ID).Int("attempts", m.Attempts+1).Msg("notification abandoned after max attempts")
			}
			continue
		}
		res.Delivered++
		if err := d.mark(ctx, func(o repository.OutboxRepository) error {
			return o.MarkDelivered(ctx, m.Event.ID, d.clock.Now())
		}); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (d *Dispatcher) mark(ctx context.Context, fn func(repository.OutboxRepository) error) error {
	return d.store.InTransaction(ctx, func(tx repository.Tx) error {
		return fn(tx.Outbox())
	})
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info().Dur("poll_interval", d.cfg.PollInterval).Int("batch_size", d.cfg.BatchSize).Msg("Outbox dispatcher started")
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		res, err := d.DrainOnce(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			d.log.Warn().Err(err).Msg("outbox pass failed")
		case res.Delivered > 0 || res.Failed > 0:
			d.log.Debug().Int("delivered", res.Delivered).Int("failed", res.Failed).Msg("outbox pass")
		}

		select {
		case <-ctx.Done():
			d.log.Info().Msg("Outbox dispatcher stopped")
			return
		case <-ticker.C:
		}
	}
}
