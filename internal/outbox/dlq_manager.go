package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dlqEntry is an outbox_dlq row selected for processing.
type dlqEntry struct {
	ID            int64
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}

// DLQManager re-queues failed outbox messages for another delivery attempt
// and quarantines entries that have exhausted their retries.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
}

// NewDLQManager constructs a DLQManager with the provided pool and retry
// configuration.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay}
}

// RunOnce processes one batch of due DLQ entries and returns how many were
// handled. Per-entry failures are joined into the returned error so one bad
// entry never blocks the rest of the batch.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	rows, err := m.pool.Query(ctx, `SELECT dlq_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
          FROM outbox_dlq
         WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
         ORDER BY created_at
         LIMIT $1`, batchSize)
	if err != nil {
		return 0, err
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dlqEntry, error) {
		var e dlqEntry
		scanErr := row.Scan(&e.ID, &e.EventID, &e.EventType, &e.Topic, &e.Payload, &e.Reason, &e.AggregateType, &e.AggregateID, &e.SchemaSubject, &e.PartitionKey, &e.RetryCount)
		return e, scanErr
	})
	if err != nil {
		return 0, err
	}

	processed := 0
	var errs error
	for _, entry := range entries {
		if procErr := m.handleEntry(ctx, entry); procErr != nil {
			errs = errors.Join(errs, procErr)
			continue
		}
		processed++
		recordDLQProcessed(entry)
	}

	updateBacklogGauge(ctx, m.pool)
	return processed, errs
}

// handleEntry quarantines, re-queues, or schedules the next retry for one
// entry, inside a single transaction.
func (m *DLQManager) handleEntry(ctx context.Context, entry dlqEntry) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	switch {
	case entry.RetryCount >= m.maxRetries:
		err = m.quarantine(ctx, tx, entry)
	default:
		err = m.requeue(ctx, tx, entry)
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (m *DLQManager) quarantine(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	_, err := tx.Exec(ctx, `UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
		"retry limit reached", entry.ID)
	if err != nil {
		return err
	}
	recordDLQQuarantined(entry)
	return nil
}

// requeue copies the entry back into the outbox. If the copy fails the
// entry stays in the DLQ with an increased retry count and a backoff
// deadline.
func (m *DLQManager) requeue(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	insertErr := insertOutboxCopy(ctx, tx, entry)
	if insertErr == nil {
		if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
			return err
		}
		recordDLQRequeued(entry)
		return nil
	}

	delay := m.backoffDelay(entry.RetryCount + 1)
	_, err := tx.Exec(ctx,
		`UPDATE outbox_dlq
            SET retry_count = retry_count + 1,
                last_attempt_at = NOW(),
                next_retry_at = NOW() + $1::interval,
                reason = $2
          WHERE dlq_id = $3`,
		delay, insertErr.Error(), entry.ID)
	if err != nil {
		return err
	}
	recordDLQRetry(entry)
	return nil
}

// backoffDelay doubles per attempt, capped at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt-1)) * m.baseDelay
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}

func insertOutboxCopy(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("missing schema_subject for dlq entry %d", entry.ID)
	}

	_, err := tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.AggregateType,
		entry.AggregateID,
		entry.EventType,
		entry.Topic,
		entry.SchemaSubject,
		entry.PartitionKey,
		entry.Payload,
	)
	return err
}
