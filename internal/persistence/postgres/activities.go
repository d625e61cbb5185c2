package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/goalprogress/internal/domain"
	"example.com/goalprogress/internal/events"
)

const activityColumns = `activity_id, goal_id, staff_id, activity_date, activity_type, description, duration_min, success_level, prompts, observations, barriers, modifications, progress_rating, progress_note_id, created_at, updated_at`

// ActivityStore is the pgx implementation of domain.ActivityRepository.
type ActivityStore struct {
	pool *pgxpool.Pool
}

// Create persists an activity and records the ledger event inside a single
// transaction.
func (s *ActivityStore) Create(ctx context.Context, activity domain.Activity) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	prompts, err := marshalPrompts(activity.Prompts)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO activities (activity_id, goal_id, staff_id, activity_date, activity_type, description, duration_min, success_level, prompts, observations, barriers, modifications, progress_rating, progress_note_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	_, err = tx.Exec(ctx, stmt,
		activity.ID,
		activity.GoalID,
		activity.StaffID,
		activity.ActivityDate,
		activity.ActivityType,
		activity.Description,
		activity.DurationMin,
		successLevelValue(activity.SuccessLevel),
		prompts,
		activity.Observations,
		activity.Barriers,
		activity.Modifications,
		activity.ProgressRating,
		activity.ProgressNoteID,
		activity.CreatedAt,
		activity.UpdatedAt,
	)
	if err != nil {
		return err
	}

	dedupeKey := fmt.Sprintf("%s:logged", activity.ID)
	if err = insertOutbox(ctx, tx, "activity", activity.ID, activity.GoalID, "activity.logged", dedupeKey, events.ActivityLogged{
		ActivityID:   activity.ID,
		GoalID:       activity.GoalID,
		StaffID:      activity.StaffID,
		ActivityType: activity.ActivityType,
		ActivityDate: activity.ActivityDate,
		DurationMin:  activity.DurationMin,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}

// Update overwrites an activity record.
func (s *ActivityStore) Update(ctx context.Context, activity domain.Activity) error {
	prompts, err := marshalPrompts(activity.Prompts)
	if err != nil {
		return err
	}

	const stmt = `UPDATE activities
        SET activity_date=$2, activity_type=$3, description=$4, duration_min=$5, success_level=$6, prompts=$7, observations=$8, barriers=$9, modifications=$10, progress_rating=$11, updated_at=$12
        WHERE activity_id=$1`

	tag, err := s.pool.Exec(ctx, stmt,
		activity.ID,
		activity.ActivityDate,
		activity.ActivityType,
		activity.Description,
		activity.DurationMin,
		successLevelValue(activity.SuccessLevel),
		prompts,
		activity.Observations,
		activity.Barriers,
		activity.Modifications,
		activity.ProgressRating,
		activity.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("activity %s does not exist", activity.ID)
	}
	return nil
}

// Delete removes an activity and records the removal event in the same
// transaction.
func (s *ActivityStore) Delete(ctx context.Context, id string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	var goalID string
	row := tx.QueryRow(ctx, `DELETE FROM activities WHERE activity_id=$1 RETURNING goal_id`, id)
	if err = row.Scan(&goalID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = fmt.Errorf("activity %s does not exist", id)
		}
		return err
	}

	dedupeKey := fmt.Sprintf("%s:removed", id)
	if err = insertOutbox(ctx, tx, "activity", id, goalID, "activity.removed", dedupeKey, events.ActivityRemoved{
		ActivityID: id,
		GoalID:     goalID,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}

// Get retrieves an activity by id, nil when absent.
func (s *ActivityStore) Get(ctx context.Context, id string) (*domain.Activity, error) {
	query := fmt.Sprintf(`SELECT %s FROM activities WHERE activity_id=$1`, activityColumns)

	row := s.pool.QueryRow(ctx, query, id)
	activity, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return activity, nil
}

// ListByGoal returns up to limit activities, most recent first.
func (s *ActivityStore) ListByGoal(ctx context.Context, goalID string, limit int) ([]domain.Activity, error) {
	query := fmt.Sprintf(`SELECT %s FROM activities WHERE goal_id=$1 ORDER BY activity_date DESC, activity_id DESC LIMIT $2`, activityColumns)

	rows, err := s.pool.Query(ctx, query, goalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectActivities(rows)
}

// ListByGoalWindow returns activities inside [from, to], oldest first. Zero
// bounds leave that side of the window open.
func (s *ActivityStore) ListByGoalWindow(ctx context.Context, goalID string, from, to time.Time) ([]domain.Activity, error) {
	query := fmt.Sprintf(`SELECT %s FROM activities WHERE goal_id=$1`, activityColumns)
	args := []interface{}{goalID}

	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(` AND activity_date >= $%d`, len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(` AND activity_date <= $%d`, len(args))
	}
	query += ` ORDER BY activity_date, activity_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectActivities(rows)
}

func collectActivities(rows pgx.Rows) ([]domain.Activity, error) {
	activities := make([]domain.Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *activity)
	}
	return activities, rows.Err()
}

func scanActivity(row rowScanner) (*domain.Activity, error) {
	var activity domain.Activity
	var successLevel *string
	var promptsRaw []byte

	if err := row.Scan(
		&activity.ID,
		&activity.GoalID,
		&activity.StaffID,
		&activity.ActivityDate,
		&activity.ActivityType,
		&activity.Description,
		&activity.DurationMin,
		&successLevel,
		&promptsRaw,
		&activity.Observations,
		&activity.Barriers,
		&activity.Modifications,
		&activity.ProgressRating,
		&activity.ProgressNoteID,
		&activity.CreatedAt,
		&activity.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if successLevel != nil {
		level := domain.SuccessLevel(*successLevel)
		activity.SuccessLevel = &level
	}
	if len(promptsRaw) > 0 {
		if err := json.Unmarshal(promptsRaw, &activity.Prompts); err != nil {
			return nil, err
		}
	}
	return &activity, nil
}

func marshalPrompts(prompts []domain.PromptKind) (interface{}, error) {
	if len(prompts) == 0 {
		return nil, nil
	}
	return json.Marshal(prompts)
}

func successLevelValue(level *domain.SuccessLevel) interface{} {
	if level == nil {
		return nil
	}
	return string(*level)
}
