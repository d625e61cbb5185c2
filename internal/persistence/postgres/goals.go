package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/goalprogress/internal/domain"
	"example.com/goalprogress/internal/events"
)

const goalColumns = `goal_id, outcome_id, title, description, goal_type, status, priority, frequency, progress_pct, last_recalculated_at, created_at, updated_at`

// GoalStore is the pgx implementation of domain.GoalRepository.
type GoalStore struct {
	pool *pgxpool.Pool
}

// Create persists a new goal.
func (s *GoalStore) Create(ctx context.Context, goal domain.Goal) error {
	const stmt = `INSERT INTO goals (goal_id, outcome_id, title, description, goal_type, status, priority, frequency, progress_pct, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	_, err := s.pool.Exec(ctx, stmt,
		goal.ID,
		goal.OutcomeID,
		goal.Title,
		goal.Description,
		goal.GoalType,
		goal.Status,
		goal.Priority,
		goal.Frequency,
		goal.ProgressPct,
		goal.CreatedAt,
		goal.UpdatedAt,
	)
	return err
}

// Get retrieves a goal by id, nil when absent.
func (s *GoalStore) Get(ctx context.Context, id string) (*domain.Goal, error) {
	query := fmt.Sprintf(`SELECT %s FROM goals WHERE goal_id=$1`, goalColumns)

	row := s.pool.QueryRow(ctx, query, id)
	goal, err := scanGoal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return goal, nil
}

// ListByOutcome returns goals under the outcome, oldest first.
func (s *GoalStore) ListByOutcome(ctx context.Context, outcomeID string) ([]domain.Goal, error) {
	query := fmt.Sprintf(`SELECT %s FROM goals WHERE outcome_id=$1 ORDER BY created_at, goal_id`, goalColumns)

	rows, err := s.pool.Query(ctx, query, outcomeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	goals := make([]domain.Goal, 0)
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, *goal)
	}
	return goals, rows.Err()
}

// UpdateStatus transitions the goal's lifecycle state.
func (s *GoalStore) UpdateStatus(ctx context.Context, id string, status domain.GoalStatus, updatedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE goals SET status=$2, updated_at=$3 WHERE goal_id=$1`, id, status, updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("goal %s does not exist", id)
	}
	return nil
}

// UpdateProgress persists the derived progress value and appends the
// progress event in the same transaction.
func (s *GoalStore) UpdateProgress(ctx context.Context, id string, progressPct int, recalculatedAt time.Time) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	var tag = pgconn.CommandTag{}
	tag, err = tx.Exec(ctx, `UPDATE goals SET progress_pct=$2, last_recalculated_at=$3 WHERE goal_id=$1`, id, progressPct, recalculatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = fmt.Errorf("goal %s does not exist", id)
		return err
	}

	dedupeKey := fmt.Sprintf("%s:progress:%d", id, recalculatedAt.UnixNano())
	if err = insertOutbox(ctx, tx, "goal", id, id, "goal.progress_recalculated", dedupeKey, events.ProgressRecalculated{
		GoalID:         id,
		ProgressPct:    progressPct,
		RecalculatedAt: recalculatedAt,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (*domain.Goal, error) {
	var goal domain.Goal
	if err := row.Scan(
		&goal.ID,
		&goal.OutcomeID,
		&goal.Title,
		&goal.Description,
		&goal.GoalType,
		&goal.Status,
		&goal.Priority,
		&goal.Frequency,
		&goal.ProgressPct,
		&goal.LastRecalculatedAt,
		&goal.CreatedAt,
		&goal.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &goal, nil
}
