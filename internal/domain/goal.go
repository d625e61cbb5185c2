// Package domain defines the business logic for the goal progress engine.
package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GoalStatus represents the lifecycle state of a goal.
type GoalStatus string

const (
	GoalStatusActive       GoalStatus = "active"
	GoalStatusPaused       GoalStatus = "paused"
	GoalStatusAchieved     GoalStatus = "achieved"
	GoalStatusDiscontinued GoalStatus = "discontinued"
)

// GoalPriority ranks goals for display and review ordering.
type GoalPriority string

const (
	GoalPriorityLow    GoalPriority = "low"
	GoalPriorityMedium GoalPriority = "medium"
	GoalPriorityHigh   GoalPriority = "high"
)

var goalStatuses = map[GoalStatus]struct{}{
	GoalStatusActive:       {},
	GoalStatusPaused:       {},
	GoalStatusAchieved:     {},
	GoalStatusDiscontinued: {},
}

var goalPriorities = map[GoalPriority]struct{}{
	GoalPriorityLow:    {},
	GoalPriorityMedium: {},
	GoalPriorityHigh:   {},
}

// Goal is a concrete, trackable objective under an externally managed
// outcome. ProgressPct is derived: it is only ever written by the progress
// calculator, never by callers.
type Goal struct {
	ID                 string
	OutcomeID          string
	Title              string
	Description        string
	GoalType           string
	Status             GoalStatus
	Priority           GoalPriority
	Frequency          string
	ProgressPct        int
	LastRecalculatedAt *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// GoalRepository captures goal persistence operations.
type GoalRepository interface {
	Create(ctx context.Context, goal Goal) error
	Get(ctx context.Context, id string) (*Goal, error)
	ListByOutcome(ctx context.Context, outcomeID string) ([]Goal, error)
	UpdateStatus(ctx context.Context, id string, status GoalStatus, updatedAt time.Time) error
	// UpdateProgress persists the derived progress value and recalculation
	// timestamp, leaving every other column untouched.
	UpdateProgress(ctx context.Context, id string, progressPct int, recalculatedAt time.Time) error
}

// GoalService manages goal records on behalf of the outcome layer.
type GoalService struct {
	goals GoalRepository
}

// NewGoalService constructs a GoalService.
func NewGoalService(goals GoalRepository) *GoalService {
	return &GoalService{goals: goals}
}

// CreateGoalInput captures the payload from the API layer.
type CreateGoalInput struct {
	OutcomeID   string
	Title       string
	Description string
	GoalType    string
	Priority    GoalPriority
	Frequency   string
}

// CreateGoal registers a new goal under an outcome. Progress starts at zero
// and stays derived from that point on.
func (s *GoalService) CreateGoal(ctx context.Context, input CreateGoalInput) (*Goal, error) {
	if strings.TrimSpace(input.OutcomeID) == "" {
		return nil, &ValidationError{Field: "outcome_id", Reason: "is required"}
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, &ValidationError{Field: "title", Reason: "is required"}
	}
	if input.Priority == "" {
		input.Priority = GoalPriorityMedium
	}
	if _, ok := goalPriorities[input.Priority]; !ok {
		return nil, &ValidationError{Field: "priority", Reason: "is not a known priority"}
	}

	now := time.Now().UTC()
	goal := Goal{
		ID:          uuid.NewString(),
		OutcomeID:   input.OutcomeID,
		Title:       input.Title,
		Description: input.Description,
		GoalType:    input.GoalType,
		Status:      GoalStatusActive,
		Priority:    input.Priority,
		Frequency:   input.Frequency,
		ProgressPct: 0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.goals.Create(ctx, goal); err != nil {
		return nil, err
	}
	return &goal, nil
}

// GetGoal fetches a goal by id.
func (s *GoalService) GetGoal(ctx context.Context, id string) (*Goal, error) {
	goal, err := s.goals.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if goal == nil {
		return nil, &NotFoundError{Kind: "goal", ID: id}
	}
	return goal, nil
}

// ListGoalsByOutcome returns every goal under the outcome.
func (s *GoalService) ListGoalsByOutcome(ctx context.Context, outcomeID string) ([]Goal, error) {
	return s.goals.ListByOutcome(ctx, outcomeID)
}

// UpdateGoalStatus transitions the goal lifecycle state.
func (s *GoalService) UpdateGoalStatus(ctx context.Context, id string, status GoalStatus) (*Goal, error) {
	if _, ok := goalStatuses[status]; !ok {
		return nil, &ValidationError{Field: "status", Reason: "is not a known goal status"}
	}

	goal, err := s.goals.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if goal == nil {
		return nil, &NotFoundError{Kind: "goal", ID: id}
	}

	now := time.Now().UTC()
	if err := s.goals.UpdateStatus(ctx, id, status, now); err != nil {
		return nil, err
	}
	goal.Status = status
	goal.UpdatedAt = now
	return goal, nil
}
