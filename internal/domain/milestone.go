package domain

import (
	"context"
	"time"
)

// MilestoneStatus represents the checklist state of a milestone.
type MilestoneStatus string

const (
	MilestoneStatusPending    MilestoneStatus = "pending"
	MilestoneStatusInProgress MilestoneStatus = "in_progress"
	MilestoneStatusAchieved   MilestoneStatus = "achieved"
	MilestoneStatusMissed     MilestoneStatus = "missed"
)

var milestoneStatuses = map[MilestoneStatus]struct{}{
	MilestoneStatusPending:    {},
	MilestoneStatusInProgress: {},
	MilestoneStatusAchieved:   {},
	MilestoneStatusMissed:     {},
}

// Milestone is an ordered sub-accomplishment toward a goal. OrderIndex is
// 1-based and contiguous within a goal after any reorder. A milestone
// reaches achieved only through AchieveMilestone, which also stamps
// AchievedDate.
type Milestone struct {
	ID                 string
	GoalID             string
	Title              string
	Description        string
	TargetDate         *time.Time
	CompletionCriteria string
	OrderIndex         int
	Status             MilestoneStatus
	AchievedDate       *time.Time
	Notes              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// MilestoneRepository captures milestone persistence operations.
type MilestoneRepository interface {
	Create(ctx context.Context, milestone Milestone) error
	Update(ctx context.Context, milestone Milestone) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Milestone, error)
	// ListByGoal returns milestones ordered by order_index ascending.
	ListByGoal(ctx context.Context, goalID string) ([]Milestone, error)
	CountByGoal(ctx context.Context, goalID string) (int, error)
	// Reorder reassigns order_index = position+1 for each id, as a single
	// all-or-nothing batch.
	Reorder(ctx context.Context, goalID string, orderedIDs []string) error
}
