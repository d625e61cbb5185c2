// Package outbox persists and delivers goal tracking events to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Message is one undelivered outbox row.
type Message struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// Dispatcher polls the outbox table and publishes claimed rows to Kafka
// with Confluent schema framing. Rows that cannot be delivered are parked
// in the DLQ and marked published so the poll loop never wedges on them.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	registry         schemaRegistrar
	dlq              *DLQWriter
	pollInterval     time.Duration
	batchSize        int
	schemaIDCache    sync.Map
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		pool:             pool,
		producer:         producer,
		registry:         registry,
		dlq:              NewDLQWriter(pool),
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		shutdownComplete: make(chan struct{}),
	}
}

// Start runs the polling loop until ctx is cancelled. Call it in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.drainOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("outbox dispatcher error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the polling loop has exited.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) drainOnce(ctx context.Context) error {
	start := time.Now()

	batch, err := d.claimPending(ctx)
	if err != nil || len(batch) == 0 {
		return err
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if err := d.deliver(ctx, batch); err != nil {
		log.Printf("outbox: delivery failure: %v", err)
		failedCounter.Add(float64(len(batch)))
		if dlqErr := d.parkInDLQ(ctx, batch, err.Error()); dlqErr != nil {
			return dlqErr
		}
	} else {
		deliveredCounter.Add(float64(len(batch)))
	}

	return d.markPublished(ctx, batch)
}

// claimPending selects up to batchSize unpublished rows with SKIP LOCKED so
// concurrent dispatcher instances never double-claim, and stamps claimed_at
// before releasing the row locks.
func (d *Dispatcher) claimPending(ctx context.Context) ([]Message, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT event_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
        FROM outbox
        WHERE published_at IS NULL
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`, d.batchSize)
	if err != nil {
		return nil, err
	}

	batch, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.EventID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Topic, &m.SchemaSubject, &m.PartitionKey, &m.Payload)
		return m, err
	})
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, eventIDs(batch)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return batch, nil
}

// deliver frames each payload and writes it to Kafka, one producer call per
// topic. Any failure fails the whole batch; drainOnce then parks it.
func (d *Dispatcher) deliver(ctx context.Context, batch []Message) error {
	byTopic := make(map[string][]kafka.Message)

	for _, msg := range batch {
		schemaID, err := d.schemaIDFor(ctx, msg)
		if err != nil {
			return err
		}

		byTopic[msg.Topic] = append(byTopic[msg.Topic], kafka.Message{
			Key:   []byte(msg.PartitionKey),
			Value: frameWithSchemaID(schemaID, msg.Payload),
			Time:  time.Now().UTC(),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(msg.EventType)},
				{Key: "schema_subject", Value: []byte(msg.SchemaSubject)},
			},
		})
	}

	for topic, records := range byTopic {
		if err := d.producer.WriteMessages(ctx, topic, records...); err != nil {
			return err
		}
	}
	return nil
}

// schemaIDFor resolves the registry id for the message's schema, consulting
// the registry at most once per subject and schema body.
func (d *Dispatcher) schemaIDFor(ctx context.Context, msg Message) (int, error) {
	schema, ok := eventSchemas[msg.EventType]
	if !ok {
		return 0, fmt.Errorf("no schema registered for event_type=%s", msg.EventType)
	}

	cacheKey := msg.SchemaSubject + "::" + schema
	if cached, found := d.schemaIDCache.Load(cacheKey); found {
		return cached.(int), nil
	}

	id, err := d.registry.EnsureSchema(ctx, msg.SchemaSubject, schema)
	if err != nil {
		return 0, err
	}
	d.schemaIDCache.Store(cacheKey, id)
	return id, nil
}

func (d *Dispatcher) markPublished(ctx context.Context, batch []Message) error {
	_, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(batch))
	return err
}

func (d *Dispatcher) parkInDLQ(ctx context.Context, batch []Message, reason string) error {
	for _, msg := range batch {
		if err := d.dlq.Write(ctx, msg, fmt.Sprintf("%s (topic=%s)", reason, msg.Topic)); err != nil {
			return err
		}
		dlqCounter.WithLabelValues(msg.Topic).Inc()
	}
	return nil
}

func eventIDs(batch []Message) []int64 {
	ids := make([]int64, len(batch))
	for i, msg := range batch {
		ids[i] = msg.EventID
	}
	return ids
}

// frameWithSchemaID applies the Confluent wire format: a zero magic byte,
// the schema id big-endian, then the JSON payload.
func frameWithSchemaID(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}

var eventSchemas = map[string]string{
	"activity.logged":            activityLoggedSchema,
	"activity.removed":           activityRemovedSchema,
	"milestone.achieved":         milestoneAchievedSchema,
	"goal.progress_recalculated": progressRecalculatedSchema,
}
