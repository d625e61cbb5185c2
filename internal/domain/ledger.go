package domain

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultListLimit = 20

// ActivityLedger records discrete support activities against goals. Every
// mutation triggers a synchronous progress recompute so the goal's stored
// progress is never observably stale to the caller that just wrote.
type ActivityLedger struct {
	goals      GoalRepository
	activities ActivityRepository
	recomputer ProgressRecomputer
}

// NewActivityLedger constructs an ActivityLedger.
func NewActivityLedger(goals GoalRepository, activities ActivityRepository, recomputer ProgressRecomputer) *ActivityLedger {
	return &ActivityLedger{goals: goals, activities: activities, recomputer: recomputer}
}

// LogActivityInput captures the payload from the API layer.
type LogActivityInput struct {
	GoalID         string
	StaffID        string
	ActivityDate   time.Time
	ActivityType   string
	Description    string
	DurationMin    *int
	SuccessLevel   *SuccessLevel
	Prompts        []PromptKind
	Observations   string
	Barriers       string
	Modifications  string
	ProgressRating *int
	ProgressNoteID *string
}

func (in LogActivityInput) validate() error {
	if strings.TrimSpace(in.GoalID) == "" {
		return &ValidationError{Field: "goal_id", Reason: "is required"}
	}
	if strings.TrimSpace(in.StaffID) == "" {
		return &ValidationError{Field: "staff_id", Reason: "is required"}
	}
	if strings.TrimSpace(in.ActivityType) == "" {
		return &ValidationError{Field: "activity_type", Reason: "is required"}
	}
	if in.ActivityDate.IsZero() {
		return &ValidationError{Field: "activity_date", Reason: "is required"}
	}
	return validateActivitySignals(in.DurationMin, in.SuccessLevel, in.Prompts, in.ProgressRating)
}

func validateActivitySignals(durationMin *int, successLevel *SuccessLevel, prompts []PromptKind, progressRating *int) error {
	if durationMin != nil && *durationMin <= 0 {
		return &ValidationError{Field: "duration_min", Reason: "must be > 0"}
	}
	if successLevel != nil {
		if _, ok := successLevel.Score(); !ok {
			return &ValidationError{Field: "success_level", Reason: "is not a known level"}
		}
	}
	for _, prompt := range prompts {
		if _, ok := promptKinds[prompt]; !ok {
			return &ValidationError{Field: "prompts", Reason: "contains an unknown prompt kind"}
		}
	}
	if progressRating != nil && (*progressRating < 1 || *progressRating > 5) {
		return &ValidationError{Field: "progress_rating", Reason: "must be between 1 and 5"}
	}
	return nil
}

// LogActivity records a support activity and recomputes the goal's
// progress before returning. An unresolved goal id is a validation
// failure, not a not-found: the id arrived in the request body.
func (s *ActivityLedger) LogActivity(ctx context.Context, input LogActivityInput) (*Activity, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	goal, err := s.goals.Get(ctx, input.GoalID)
	if err != nil {
		return nil, err
	}
	if goal == nil {
		return nil, &ValidationError{Field: "goal_id", Reason: "does not resolve to a goal"}
	}

	now := time.Now().UTC()
	activity := Activity{
		ID:             uuid.NewString(),
		GoalID:         input.GoalID,
		StaffID:        input.StaffID,
		ActivityDate:   input.ActivityDate.UTC(),
		ActivityType:   input.ActivityType,
		Description:    input.Description,
		DurationMin:    input.DurationMin,
		SuccessLevel:   input.SuccessLevel,
		Prompts:        input.Prompts,
		Observations:   input.Observations,
		Barriers:       input.Barriers,
		Modifications:  input.Modifications,
		ProgressRating: input.ProgressRating,
		ProgressNoteID: input.ProgressNoteID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.activities.Create(ctx, activity); err != nil {
		return nil, err
	}

	s.recompute(ctx, activity.GoalID)
	return &activity, nil
}

// UpdateActivityInput carries a partial correction. Nil leaves a field
// unchanged; ClearDuration and friends reset the optional signals.
type UpdateActivityInput struct {
	ActivityDate   *time.Time
	ActivityType   *string
	Description    *string
	DurationMin    *int
	SuccessLevel   *SuccessLevel
	Prompts        []PromptKind
	Observations   *string
	Barriers       *string
	Modifications  *string
	ProgressRating *int
}

// UpdateActivity applies a correction to an existing activity and
// recomputes the goal's progress.
func (s *ActivityLedger) UpdateActivity(ctx context.Context, id string, input UpdateActivityInput) (*Activity, error) {
	activity, err := s.activities.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, &NotFoundError{Kind: "activity", ID: id}
	}

	if input.ActivityDate != nil {
		if input.ActivityDate.IsZero() {
			return nil, &ValidationError{Field: "activity_date", Reason: "is required"}
		}
		activity.ActivityDate = input.ActivityDate.UTC()
	}
	if input.ActivityType != nil {
		if strings.TrimSpace(*input.ActivityType) == "" {
			return nil, &ValidationError{Field: "activity_type", Reason: "is required"}
		}
		activity.ActivityType = *input.ActivityType
	}
	if input.Description != nil {
		activity.Description = *input.Description
	}
	if input.DurationMin != nil {
		activity.DurationMin = input.DurationMin
	}
	if input.SuccessLevel != nil {
		activity.SuccessLevel = input.SuccessLevel
	}
	if input.Prompts != nil {
		activity.Prompts = input.Prompts
	}
	if input.Observations != nil {
		activity.Observations = *input.Observations
	}
	if input.Barriers != nil {
		activity.Barriers = *input.Barriers
	}
	if input.Modifications != nil {
		activity.Modifications = *input.Modifications
	}
	if input.ProgressRating != nil {
		activity.ProgressRating = input.ProgressRating
	}

	if err := validateActivitySignals(activity.DurationMin, activity.SuccessLevel, activity.Prompts, activity.ProgressRating); err != nil {
		return nil, err
	}

	activity.UpdatedAt = time.Now().UTC()
	if err := s.activities.Update(ctx, *activity); err != nil {
		return nil, err
	}

	s.recompute(ctx, activity.GoalID)
	return activity, nil
}

// DeleteActivity removes an activity and recomputes against the remaining
// set, which may be empty.
func (s *ActivityLedger) DeleteActivity(ctx context.Context, id string) error {
	activity, err := s.activities.Get(ctx, id)
	if err != nil {
		return err
	}
	if activity == nil {
		return &NotFoundError{Kind: "activity", ID: id}
	}

	if err := s.activities.Delete(ctx, id); err != nil {
		return err
	}

	s.recompute(ctx, activity.GoalID)
	return nil
}

// ListActivitiesByGoal returns recent activities, most recent first.
func (s *ActivityLedger) ListActivitiesByGoal(ctx context.Context, goalID string, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if err := s.requireGoal(ctx, goalID); err != nil {
		return nil, err
	}
	return s.activities.ListByGoal(ctx, goalID, limit)
}

// GetActivityTimeline returns activities in chronological order for trend
// visualisation. Zero bounds leave the window open on that side.
func (s *ActivityLedger) GetActivityTimeline(ctx context.Context, goalID string, start, end time.Time) ([]Activity, error) {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, &ValidationError{Field: "end_date", Reason: "must not precede start_date"}
	}
	if err := s.requireGoal(ctx, goalID); err != nil {
		return nil, err
	}
	return s.activities.ListByGoalWindow(ctx, goalID, start, end)
}

func (s *ActivityLedger) requireGoal(ctx context.Context, goalID string) error {
	goal, err := s.goals.Get(ctx, goalID)
	if err != nil {
		return err
	}
	if goal == nil {
		return &NotFoundError{Kind: "goal", ID: goalID}
	}
	return nil
}

// recompute re-derives the goal's progress after a mutation. Failures are
// logged and swallowed: progress is advisory and must never fail the write
// that triggered it.
func (s *ActivityLedger) recompute(ctx context.Context, goalID string) {
	if _, err := s.recomputer.Recompute(ctx, goalID); err != nil {
		log.Printf("activity ledger: %v", &RecomputeError{GoalID: goalID, Err: err})
	}
}
