package repository

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-ip-review/internal/platform/database"
	"github.com/pesio-ai/be-ip-review/internal/platform/errors"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// PgOutboxRepository queues notification events written in the same
// transaction as the state change that produced them.
type PgOutboxRepository struct {
	q database.Querier
}

// NewOutboxRepository creates a new PgOutboxRepository.
func NewOutboxRepository(q database.Querier) *PgOutboxRepository {
	return &PgOutboxRepository{q: q}
}

func (r *PgOutboxRepository) Enqueue(ctx context.Context, events []workflow.Event) error {
	query := `
		INSERT INTO notification_outbox
		    (id, event_type, submission_id, recipient_id, message, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i := range events {
		ev := &events[i]
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		var payload []byte
		if ev.Payload != nil {
			var err error
			payload, err = json.Marshal(ev.Payload)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal event payload")
			}
		}
		_, err := r.q.Exec(ctx, query,
			ev.ID, ev.Type, ev.SubmissionID, ev.RecipientID, ev.Message, payload, ev.CreatedAt,
		)
		if err != nil {
			return translate(err, ev.SubmissionID, "failed to enqueue notification")
		}
	}
	return nil
}

// ClaimPending skips rows locked or leased by another dispatcher so several
// replicas can drain the outbox concurrently. The lease outlives the claiming
// transaction, so delivery can happen outside it.
func (r *PgOutboxRepository) ClaimPending(ctx context.Context, limit, maxAttempts int, now time.Time, lease time.Duration) ([]*OutboxMessage, error) {
	query := `
		SELECT id, event_type, submission_id, recipient_id, message, payload, created_at,
		       attempts, last_error, last_attempt_at, delivered_at, claimed_until
		FROM notification_outbox
		WHERE delivered_at IS NULL AND attempts < $2
		  AND (claimed_until IS NULL OR claimed_until <= $3)
		ORDER BY created_at ASC
		LIMIT $1
	`
	args := []interface{}{limit, maxAttempts, now}
	if lease > 0 {
		query = `
			WITH claimable AS (
				SELECT id
				FROM notification_outbox
				WHERE delivered_at IS NULL AND attempts < $2
				  AND (claimed_until IS NULL OR claimed_until <= $3)
				ORDER BY created_at ASC
				LIMIT $1
				FOR UPDATE SKIP LOCKED
			)
			UPDATE notification_outbox o
			SET claimed_until = $4
			FROM claimable c
			WHERE o.id = c.id
			RETURNING o.id, o.event_type, o.submission_id, o.recipient_id, o.message, o.payload, o.created_at,
			          o.attempts, o.last_error, o.last_attempt_at, o.delivered_at, o.claimed_until
		`
		args = append(args, now.Add(lease))
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to claim outbox messages")
	}
	defer rows.Close()

	var out []*OutboxMessage
	for rows.Next() {
		m := &OutboxMessage{}
		var payload []byte
		err := rows.Scan(
			&m.Event.ID,
			&m.Event.Type,
			&m.Event.SubmissionID,
			&m.Event.RecipientID,
			&m.Event.Message,
			&payload,
			&m.Event.CreatedAt,
			&m.Attempts,
			&m.LastError,
			&m.LastAttemptAt,
			&m.DeliveredAt,
			&m.ClaimedUntil,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan outbox message")
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &m.Event.Payload); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal event payload")
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to claim outbox messages")
	}
	// RETURNING does not keep the CTE order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Event.CreatedAt.Before(out[j].Event.CreatedAt) })
	return out, nil
}

func (r *PgOutboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.Exec(ctx,
		`UPDATE notification_outbox
		 SET attempts = attempts + 1, last_attempt_at = $2, delivered_at = $2, claimed_until = NULL
		 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to mark notification delivered")
	}
	return nil
}

func (r *PgOutboxRepository) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	_, err := r.q.Exec(ctx,
		`UPDATE notification_outbox
		 SET attempts = attempts + 1, last_error = $2, last_attempt_at = $3, claimed_until = NULL
		 WHERE id = $1`,
		id, reason, at,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to mark notification failed")
	}
	return nil
}
