// Package postgres provides pgx-backed persistence for goals, milestones,
// and activities, writing outbox events in the same transaction as each
// mutation.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository bundles the three entity repositories over one pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Goals returns the goal repository view.
func (r *Repository) Goals() *GoalStore { return &GoalStore{pool: r.pool} }

// Milestones returns the milestone repository view.
func (r *Repository) Milestones() *MilestoneStore { return &MilestoneStore{pool: r.pool} }

// Activities returns the activity repository view.
func (r *Repository) Activities() *ActivityStore { return &ActivityStore{pool: r.pool} }

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"activity.logged": {
		Topic:         "goal_activity_events",
		SchemaSubject: "goal_activity_events-activity_logged",
	},
	"activity.removed": {
		Topic:         "goal_activity_events",
		SchemaSubject: "goal_activity_events-activity_removed",
	},
	"milestone.achieved": {
		Topic:         "goal_milestone_events",
		SchemaSubject: "goal_milestone_events-value",
	},
	"goal.progress_recalculated": {
		Topic:         "goal_progress_events",
		SchemaSubject: "goal_progress_events-value",
	},
}

// insertOutbox records an event row inside the caller's transaction. Events
// partition by goal so downstream consumers observe a goal's mutations in
// order.
func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID, goalID, eventType, dedupeKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		aggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		goalID,
		body,
		dedupeKey,
	)
	return err
}
