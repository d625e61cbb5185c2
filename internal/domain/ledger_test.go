package domain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/goalprogress/internal/domain"
	"example.com/goalprogress/internal/persistence/memory"
)

type fixture struct {
	store      *memory.Store
	calculator *domain.Calculator
	goals      *domain.GoalService
	ledger     *domain.ActivityLedger
	tracker    *domain.MilestoneTracker
	stats      *domain.Statistics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	calculator := domain.NewCalculator(store, store.Milestones(), store.Activities(), 0)
	return &fixture{
		store:      store,
		calculator: calculator,
		goals:      domain.NewGoalService(store),
		ledger:     domain.NewActivityLedger(store, store.Activities(), calculator),
		tracker:    domain.NewMilestoneTracker(store, store.Milestones(), calculator),
		stats:      domain.NewStatistics(store, store.Activities(), store.Milestones()),
	}
}

func (f *fixture) createGoal(t *testing.T) *domain.Goal {
	t.Helper()
	goal, err := f.goals.CreateGoal(context.Background(), domain.CreateGoalInput{
		OutcomeID: uuid.NewString(),
		Title:     "Order lunch independently",
	})
	require.NoError(t, err)
	return goal
}

func (f *fixture) goalProgress(t *testing.T, id string) int {
	t.Helper()
	goal, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, goal)
	return goal.ProgressPct
}

func TestLogActivityRecomputesProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	goal := f.createGoal(t)

	rating := 5
	activity, err := f.ledger.LogActivity(ctx, domain.LogActivityInput{
		GoalID:         goal.ID,
		StaffID:        "staff-1",
		ActivityDate:   time.Now().UTC(),
		ActivityType:   "community_outing",
		ProgressRating: &rating,
	})
	require.NoError(t, err)
	require.NotEmpty(t, activity.ID)

	// No milestones, one max-rated activity: 0.3 * 1.0.
	require.Equal(t, 30, f.goalProgress(t, goal.ID))

	stored, err := f.store.Get(ctx, goal.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastRecalculatedAt)
}

func TestLogActivityRejectsUnknownGoal(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.LogActivity(context.Background(), domain.LogActivityInput{
		GoalID:       uuid.NewString(),
		StaffID:      "staff-1",
		ActivityDate: time.Now().UTC(),
		ActivityType: "community_outing",
	})

	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "goal_id", validationErr.Field)
}

func TestLogActivityValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	goal := f.createGoal(t)

	badRating := 6
	badDuration := 0
	badLevel := domain.SuccessLevel("flawless")

	cases := []struct {
		name  string
		input domain.LogActivityInput
		field string
	}{
		{
			name:  "missing staff",
			input: domain.LogActivityInput{GoalID: goal.ID, ActivityDate: time.Now(), ActivityType: "x"},
			field: "staff_id",
		},
		{
			name:  "missing type",
			input: domain.LogActivityInput{GoalID: goal.ID, StaffID: "s", ActivityDate: time.Now()},
			field: "activity_type",
		},
		{
			name:  "missing date",
			input: domain.LogActivityInput{GoalID: goal.ID, StaffID: "s", ActivityType: "x"},
			field: "activity_date",
		},
		{
			name:  "rating out of range",
			input: domain.LogActivityInput{GoalID: goal.ID, StaffID: "s", ActivityDate: time.Now(), ActivityType: "x", ProgressRating: &badRating},
			field: "progress_rating",
		},
		{
			name:  "zero duration",
			input: domain.LogActivityInput{GoalID: goal.ID, StaffID: "s", ActivityDate: time.Now(), ActivityType: "x", DurationMin: &badDuration},
			field: "duration_min",
		},
		{
			name:  "unknown success level",
			input: domain.LogActivityInput{GoalID: goal.ID, StaffID: "s", ActivityDate: time.Now(), ActivityType: "x", SuccessLevel: &badLevel},
			field: "success_level",
		},
		{
			name:  "unknown prompt kind",
			input: domain.LogActivityInput{GoalID: goal.ID, StaffID: "s", ActivityDate: time.Now(), ActivityType: "x", Prompts: []domain.PromptKind{"telepathic"}},
			field: "prompts",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ledger.LogActivity(ctx, tc.input)
			var validationErr *domain.ValidationError
			require.ErrorAs(t, err, &validationErr)
			require.Equal(t, tc.field, validationErr.Field)
		})
	}
}

func TestUpdateActivityAppliesPartialChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	goal := f.createGoal(t)

	rating := 1
	activity, err := f.ledger.LogActivity(ctx, domain.LogActivityInput{
		GoalID:         goal.ID,
		StaffID:        "staff-1",
		ActivityDate:   time.Now().UTC(),
		ActivityType:   "meal_prep",
		Description:    "initial",
		ProgressRating: &rating,
	})
	require.NoError(t, err)
	require.Equal(t, 0, f.goalProgress(t, goal.ID))

	newRating := 5
	updated, err := f.ledger.UpdateActivity(ctx, activity.ID, domain.UpdateActivityInput{
		ProgressRating: &newRating,
	})
	require.NoError(t, err)
	require.Equal(t, 5, *updated.ProgressRating)
	require.Equal(t, "meal_prep", updated.ActivityType)
	require.Equal(t, "initial", updated.Description)

	// Raising the only activity's rating raises the stored progress.
	require.Equal(t, 30, f.goalProgress(t, goal.ID))
}

func TestUpdateActivityNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.UpdateActivity(context.Background(), uuid.NewString(), domain.UpdateActivityInput{})

	var notFoundErr *domain.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
	require.Equal(t, "activity", notFoundErr.Kind)
}

func TestDeleteLastActivityRecomputesToZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	goal := f.createGoal(t)

	rating := 5
	activity, err := f.ledger.LogActivity(ctx, domain.LogActivityInput{
		GoalID:         goal.ID,
		StaffID:        "staff-1",
		ActivityDate:   time.Now().UTC(),
		ActivityType:   "community_outing",
		ProgressRating: &rating,
	})
	require.NoError(t, err)
	require.Equal(t, 30, f.goalProgress(t, goal.ID))

	require.NoError(t, f.ledger.DeleteActivity(ctx, activity.ID))
	require.Equal(t, 0, f.goalProgress(t, goal.ID))

	err = f.ledger.DeleteActivity(ctx, activity.ID)
	var notFoundErr *domain.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func TestRecomputeFailureDoesNotFailTheWrite(t *testing.T) {
	store := memory.NewStore()
	ledger := domain.NewActivityLedger(store, store.Activities(), failingRecomputer{})
	goals := domain.NewGoalService(store)

	goal, err := goals.CreateGoal(context.Background(), domain.CreateGoalInput{
		OutcomeID: uuid.NewString(),
		Title:     "goal",
	})
	require.NoError(t, err)

	activity, err := ledger.LogActivity(context.Background(), domain.LogActivityInput{
		GoalID:       goal.ID,
		StaffID:      "staff-1",
		ActivityDate: time.Now().UTC(),
		ActivityType: "community_outing",
	})
	require.NoError(t, err)

	stored, err := store.Activities().Get(context.Background(), activity.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

type failingRecomputer struct{}

func (failingRecomputer) Recompute(ctx context.Context, goalID string) (int, error) {
	return 0, errors.New("storage offline")
}

func TestListActivitiesMostRecentFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	goal := f.createGoal(t)

	base := time.Now().UTC().Add(-3 * time.Hour)
	for i := 0; i < 3; i++ {
		_, err := f.ledger.LogActivity(ctx, domain.LogActivityInput{
			GoalID:       goal.ID,
			StaffID:      "staff-1",
			ActivityDate: base.Add(time.Duration(i) * time.Hour),
			ActivityType: "session",
		})
		require.NoError(t, err)
	}

	activities, err := f.ledger.ListActivitiesByGoal(ctx, goal.ID, 2)
	require.NoError(t, err)
	require.Len(t, activities, 2)
	require.True(t, activities[0].ActivityDate.After(activities[1].ActivityDate))

	_, err = f.ledger.ListActivitiesByGoal(ctx, uuid.NewString(), 0)
	var notFoundErr *domain.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
	require.Equal(t, "goal", notFoundErr.Kind)
}

func TestActivityTimelineChronological(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	goal := f.createGoal(t)

	base := time.Now().UTC().Add(-72 * time.Hour)
	for i := 0; i < 3; i++ {
		_, err := f.ledger.LogActivity(ctx, domain.LogActivityInput{
			GoalID:       goal.ID,
			StaffID:      "staff-1",
			ActivityDate: base.Add(time.Duration(i) * 24 * time.Hour),
			ActivityType: "session",
		})
		require.NoError(t, err)
	}

	timeline, err := f.ledger.GetActivityTimeline(ctx, goal.ID, base, base.Add(25*time.Hour))
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	require.True(t, timeline[0].ActivityDate.Before(timeline[1].ActivityDate))

	_, err = f.ledger.GetActivityTimeline(ctx, goal.ID, base.Add(time.Hour), base)
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "end_date", validationErr.Field)
}
