package domain

import (
	"context"
	"time"
)

// SuccessLevel grades how independently the client completed the supported
// task, following the prompting hierarchy used on session forms.
type SuccessLevel string

const (
	SuccessNotAchieved    SuccessLevel = "not_achieved"
	SuccessPartialSupport SuccessLevel = "partial_support"
	SuccessWithPrompts    SuccessLevel = "with_prompts"
	SuccessMinimalSupport SuccessLevel = "minimal_support"
	SuccessIndependent    SuccessLevel = "independent"
)

// successLevelScores maps each level onto [0,1] for the progress calculator.
var successLevelScores = map[SuccessLevel]float64{
	SuccessNotAchieved:    0,
	SuccessPartialSupport: 0.25,
	SuccessWithPrompts:    0.5,
	SuccessMinimalSupport: 0.75,
	SuccessIndependent:    1,
}

// Score returns the normalized quality score for the level and whether the
// level is a known value.
func (l SuccessLevel) Score() (float64, bool) {
	score, ok := successLevelScores[l]
	return score, ok
}

// PromptKind enumerates the prompt types staff can record on an activity.
type PromptKind string

const (
	PromptVerbal   PromptKind = "verbal"
	PromptGestural PromptKind = "gestural"
	PromptModel    PromptKind = "model"
	PromptPhysical PromptKind = "physical"
	PromptVisual   PromptKind = "visual"
)

var promptKinds = map[PromptKind]struct{}{
	PromptVerbal:   {},
	PromptGestural: {},
	PromptModel:    {},
	PromptPhysical: {},
	PromptVisual:   {},
}

// Activity is a single dated record of support work performed toward a
// goal. Optional fields are pointers so corrections can distinguish "clear"
// from "leave unchanged".
type Activity struct {
	ID             string
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
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ActivityRepository captures activity persistence operations.
type ActivityRepository interface {
	Create(ctx context.Context, activity Activity) error
	Update(ctx context.Context, activity Activity) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Activity, error)
	// ListByGoal returns up to limit activities, most recent first.
	ListByGoal(ctx context.Context, goalID string, limit int) ([]Activity, error)
	// ListByGoalWindow returns activities with activity_date in [from, to],
	// chronological ascending. Zero bounds are open.
	ListByGoalWindow(ctx context.Context, goalID string, from, to time.Time) ([]Activity, error)
}
