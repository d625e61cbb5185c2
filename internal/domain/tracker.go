package domain

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MilestoneTracker manages the ordered checklist of sub-accomplishments for
// a goal. Achieving or deleting a milestone recomputes the goal's progress;
// creating, starting, missing, and plain field updates do not change the
// completion numerator and leave the stored value alone.
type MilestoneTracker struct {
	goals      GoalRepository
	milestones MilestoneRepository
	recomputer ProgressRecomputer
}

// NewMilestoneTracker constructs a MilestoneTracker.
func NewMilestoneTracker(goals GoalRepository, milestones MilestoneRepository, recomputer ProgressRecomputer) *MilestoneTracker {
	return &MilestoneTracker{goals: goals, milestones: milestones, recomputer: recomputer}
}

// CreateMilestoneInput captures the payload from the API layer.
type CreateMilestoneInput struct {
	GoalID             string
	Title              string
	Description        string
	TargetDate         *time.Time
	CompletionCriteria string
	// OrderIndex of 0 means append after the goal's existing milestones.
	OrderIndex int
}

// CreateMilestone appends a milestone to the goal's checklist. It does not
// recompute progress: a pending milestone contributes nothing to the
// achieved count under the fixed-weight blend.
func (s *MilestoneTracker) CreateMilestone(ctx context.Context, input CreateMilestoneInput) (*Milestone, error) {
	if strings.TrimSpace(input.GoalID) == "" {
		return nil, &ValidationError{Field: "goal_id", Reason: "is required"}
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, &ValidationError{Field: "title", Reason: "is required"}
	}
	if input.OrderIndex < 0 {
		return nil, &ValidationError{Field: "order_index", Reason: "must be >= 1"}
	}

	goal, err := s.goals.Get(ctx, input.GoalID)
	if err != nil {
		return nil, err
	}
	if goal == nil {
		return nil, &ValidationError{Field: "goal_id", Reason: "does not resolve to a goal"}
	}

	orderIndex := input.OrderIndex
	if orderIndex == 0 {
		count, err := s.milestones.CountByGoal(ctx, input.GoalID)
		if err != nil {
			return nil, err
		}
		orderIndex = count + 1
	}

	now := time.Now().UTC()
	milestone := Milestone{
		ID:                 uuid.NewString(),
		GoalID:             input.GoalID,
		Title:              input.Title,
		Description:        input.Description,
		TargetDate:         input.TargetDate,
		CompletionCriteria: input.CompletionCriteria,
		OrderIndex:         orderIndex,
		Status:             MilestoneStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.milestones.Create(ctx, milestone); err != nil {
		return nil, err
	}
	return &milestone, nil
}

// UpdateMilestoneInput carries a partial field update. Status is
// deliberately absent: transitions go through AchieveMilestone,
// StartMilestone, and MarkMilestoneMissed.
type UpdateMilestoneInput struct {
	Title              *string
	Description        *string
	TargetDate         *time.Time
	CompletionCriteria *string
	Notes              *string
}

// UpdateMilestone applies a plain field update.
func (s *MilestoneTracker) UpdateMilestone(ctx context.Context, id string, input UpdateMilestoneInput) (*Milestone, error) {
	milestone, err := s.milestones.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if milestone == nil {
		return nil, &NotFoundError{Kind: "milestone", ID: id}
	}

	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, &ValidationError{Field: "title", Reason: "is required"}
		}
		milestone.Title = *input.Title
	}
	if input.Description != nil {
		milestone.Description = *input.Description
	}
	if input.TargetDate != nil {
		milestone.TargetDate = input.TargetDate
	}
	if input.CompletionCriteria != nil {
		milestone.CompletionCriteria = *input.CompletionCriteria
	}
	if input.Notes != nil {
		milestone.Notes = *input.Notes
	}

	milestone.UpdatedAt = time.Now().UTC()
	if err := s.milestones.Update(ctx, *milestone); err != nil {
		return nil, err
	}
	return milestone, nil
}

// StartMilestone transitions a milestone to in_progress. No recompute: the
// achieved count is unchanged.
func (s *MilestoneTracker) StartMilestone(ctx context.Context, id string) (*Milestone, error) {
	milestone, err := s.milestones.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if milestone == nil {
		return nil, &NotFoundError{Kind: "milestone", ID: id}
	}

	milestone.Status = MilestoneStatusInProgress
	milestone.UpdatedAt = time.Now().UTC()
	if err := s.milestones.Update(ctx, *milestone); err != nil {
		return nil, err
	}
	return milestone, nil
}

// AchieveMilestone marks the milestone achieved, stamps the achieved date,
// and recomputes the goal's progress. It is permitted from any prior
// status, including missed: status corrections are allowed.
func (s *MilestoneTracker) AchieveMilestone(ctx context.Context, id string, notes string) (*Milestone, error) {
	milestone, err := s.milestones.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if milestone == nil {
		return nil, &NotFoundError{Kind: "milestone", ID: id}
	}

	now := time.Now().UTC()
	milestone.Status = MilestoneStatusAchieved
	milestone.AchievedDate = &now
	if notes != "" {
		milestone.Notes = notes
	}
	milestone.UpdatedAt = now

	if err := s.milestones.Update(ctx, *milestone); err != nil {
		return nil, err
	}

	s.recompute(ctx, milestone.GoalID)
	return milestone, nil
}

// MarkMilestoneMissed records that the milestone was not met. Missed
// milestones stay in the completion denominator, so no recompute fires.
func (s *MilestoneTracker) MarkMilestoneMissed(ctx context.Context, id string, notes string) (*Milestone, error) {
	milestone, err := s.milestones.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if milestone == nil {
		return nil, &NotFoundError{Kind: "milestone", ID: id}
	}

	milestone.Status = MilestoneStatusMissed
	milestone.AchievedDate = nil
	if notes != "" {
		milestone.Notes = notes
	}
	milestone.UpdatedAt = time.Now().UTC()

	if err := s.milestones.Update(ctx, *milestone); err != nil {
		return nil, err
	}
	return milestone, nil
}

// DeleteMilestone removes a milestone without renumbering the survivors;
// callers restore contiguity with ReorderMilestones when display order
// matters. The goal's progress is recomputed against the remaining set.
func (s *MilestoneTracker) DeleteMilestone(ctx context.Context, id string) error {
	milestone, err := s.milestones.Get(ctx, id)
	if err != nil {
		return err
	}
	if milestone == nil {
		return &NotFoundError{Kind: "milestone", ID: id}
	}

	if err := s.milestones.Delete(ctx, id); err != nil {
		return err
	}

	s.recompute(ctx, milestone.GoalID)
	return nil
}

// ReorderMilestones atomically reassigns order_index = position+1 for the
// supplied ordering. The id set must match the goal's milestones exactly;
// any storage failure rolls the whole batch back.
func (s *MilestoneTracker) ReorderMilestones(ctx context.Context, goalID string, orderedIDs []string) ([]Milestone, error) {
	if len(orderedIDs) == 0 {
		return nil, &ValidationError{Field: "milestone_ids", Reason: "must not be empty"}
	}

	existing, err := s.milestones.ListByGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, &NotFoundError{Kind: "goal", ID: goalID}
	}

	if err := checkReorderSet(goalID, existing, orderedIDs); err != nil {
		return nil, err
	}

	if err := s.milestones.Reorder(ctx, goalID, orderedIDs); err != nil {
		return nil, &ReorderConsistencyError{GoalID: goalID, Reason: err.Error()}
	}

	return s.milestones.ListByGoal(ctx, goalID)
}

// ListMilestones returns the goal's checklist in display order.
func (s *MilestoneTracker) ListMilestones(ctx context.Context, goalID string) ([]Milestone, error) {
	goal, err := s.goals.Get(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if goal == nil {
		return nil, &NotFoundError{Kind: "goal", ID: goalID}
	}
	return s.milestones.ListByGoal(ctx, goalID)
}

func checkReorderSet(goalID string, existing []Milestone, orderedIDs []string) error {
	if len(orderedIDs) != len(existing) {
		return &ValidationError{Field: "milestone_ids", Reason: fmt.Sprintf("must list all %d milestones of the goal", len(existing))}
	}

	known := make(map[string]struct{}, len(existing))
	for _, milestone := range existing {
		known[milestone.ID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, ok := known[id]; !ok {
			return &ValidationError{Field: "milestone_ids", Reason: fmt.Sprintf("%s does not belong to goal %s", id, goalID)}
		}
		if _, dup := seen[id]; dup {
			return &ValidationError{Field: "milestone_ids", Reason: fmt.Sprintf("%s appears more than once", id)}
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (s *MilestoneTracker) recompute(ctx context.Context, goalID string) {
	if _, err := s.recomputer.Recompute(ctx, goalID); err != nil {
		log.Printf("milestone tracker: %v", &RecomputeError{GoalID: goalID, Err: err})
	}
}
