package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/goalprogress/internal/domain"
	"example.com/goalprogress/internal/events"
)

const milestoneColumns = `milestone_id, goal_id, title, description, target_date, completion_criteria, order_index, status, achieved_date, notes, created_at, updated_at`

// MilestoneStore is the pgx implementation of domain.MilestoneRepository.
type MilestoneStore struct {
	pool *pgxpool.Pool
}

// Create persists a new milestone.
func (s *MilestoneStore) Create(ctx context.Context, milestone domain.Milestone) error {
	const stmt = `INSERT INTO milestones (milestone_id, goal_id, title, description, target_date, completion_criteria, order_index, status, notes, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	_, err := s.pool.Exec(ctx, stmt,
		milestone.ID,
		milestone.GoalID,
		milestone.Title,
		milestone.Description,
		milestone.TargetDate,
		milestone.CompletionCriteria,
		milestone.OrderIndex,
		milestone.Status,
		milestone.Notes,
		milestone.CreatedAt,
		milestone.UpdatedAt,
	)
	return err
}

// Update overwrites a milestone. When the write transitions the milestone
// into achieved, the achievement event joins the same transaction.
func (s *MilestoneStore) Update(ctx context.Context, milestone domain.Milestone) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	var previousStatus domain.MilestoneStatus
	row := tx.QueryRow(ctx, `SELECT status FROM milestones WHERE milestone_id=$1 FOR UPDATE`, milestone.ID)
	if err = row.Scan(&previousStatus); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = fmt.Errorf("milestone %s does not exist", milestone.ID)
		}
		return err
	}

	const stmt = `UPDATE milestones
        SET title=$2, description=$3, target_date=$4, completion_criteria=$5, order_index=$6, status=$7, achieved_date=$8, notes=$9, updated_at=$10
        WHERE milestone_id=$1`

	if _, err = tx.Exec(ctx, stmt,
		milestone.ID,
		milestone.Title,
		milestone.Description,
		milestone.TargetDate,
		milestone.CompletionCriteria,
		milestone.OrderIndex,
		milestone.Status,
		milestone.AchievedDate,
		milestone.Notes,
		milestone.UpdatedAt,
	); err != nil {
		return err
	}

	if milestone.Status == domain.MilestoneStatusAchieved && previousStatus != domain.MilestoneStatusAchieved && milestone.AchievedDate != nil {
		dedupeKey := fmt.Sprintf("%s:achieved:%d", milestone.ID, milestone.AchievedDate.UnixNano())
		if err = insertOutbox(ctx, tx, "milestone", milestone.ID, milestone.GoalID, "milestone.achieved", dedupeKey, events.MilestoneAchieved{
			MilestoneID:  milestone.ID,
			GoalID:       milestone.GoalID,
			Title:        milestone.Title,
			OrderIndex:   milestone.OrderIndex,
			AchievedDate: *milestone.AchievedDate,
		}); err != nil {
			return err
		}
	}

	err = tx.Commit(ctx)
	return err
}

// Delete removes a milestone. Surviving order indexes are left alone.
func (s *MilestoneStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM milestones WHERE milestone_id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("milestone %s does not exist", id)
	}
	return nil
}

// Get retrieves a milestone by id, nil when absent.
func (s *MilestoneStore) Get(ctx context.Context, id string) (*domain.Milestone, error) {
	query := fmt.Sprintf(`SELECT %s FROM milestones WHERE milestone_id=$1`, milestoneColumns)

	row := s.pool.QueryRow(ctx, query, id)
	milestone, err := scanMilestone(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return milestone, nil
}

// ListByGoal returns the goal's milestones ordered by order index.
func (s *MilestoneStore) ListByGoal(ctx context.Context, goalID string) ([]domain.Milestone, error) {
	query := fmt.Sprintf(`SELECT %s FROM milestones WHERE goal_id=$1 ORDER BY order_index, milestone_id`, milestoneColumns)

	rows, err := s.pool.Query(ctx, query, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	milestones := make([]domain.Milestone, 0)
	for rows.Next() {
		milestone, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, *milestone)
	}
	return milestones, rows.Err()
}

// CountByGoal counts the goal's milestones.
func (s *MilestoneStore) CountByGoal(ctx context.Context, goalID string) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM milestones WHERE goal_id=$1`, goalID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Reorder reassigns order_index = position+1 inside one transaction. Any
// unknown id or row miss rolls the whole batch back, leaving the prior
// ordering intact.
func (s *MilestoneStore) Reorder(ctx context.Context, goalID string, orderedIDs []string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	for position, id := range orderedIDs {
		var tag = pgconn.CommandTag{}
		tag, err = tx.Exec(ctx,
			`UPDATE milestones SET order_index=$3, updated_at=NOW() WHERE milestone_id=$1 AND goal_id=$2`,
			id, goalID, position+1,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			err = fmt.Errorf("milestone %s does not belong to goal %s", id, goalID)
			return err
		}
	}

	err = tx.Commit(ctx)
	return err
}

func scanMilestone(row rowScanner) (*domain.Milestone, error) {
	var milestone domain.Milestone
	if err := row.Scan(
		&milestone.ID,
		&milestone.GoalID,
		&milestone.Title,
		&milestone.Description,
		&milestone.TargetDate,
		&milestone.CompletionCriteria,
		&milestone.OrderIndex,
		&milestone.Status,
		&milestone.AchievedDate,
		&milestone.Notes,
		&milestone.CreatedAt,
		&milestone.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &milestone, nil
}
