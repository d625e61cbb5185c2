package domain

import (
	"context"
	"math"
	"time"

	"example.com/goalprogress/internal/observability"
)

// ProgressRecomputer re-derives and persists a goal's progress percentage.
// The ledger and tracker depend on this seam rather than on the calculator
// directly, which keeps the mutation→recompute dependency one-way.
type ProgressRecomputer interface {
	Recompute(ctx context.Context, goalID string) (int, error)
}

// DefaultActivityWindow bounds the trailing activity set the calculator
// considers.
const DefaultActivityWindow = 30 * 24 * time.Hour

// Blend weights. Milestone completion dominates; recent activity quality is
// a secondary signal. The weights are fixed rather than renormalised so
// that creating a pending milestone leaves the blended value unchanged.
const (
	milestoneWeight = 0.7
	activityWeight  = 0.3
)

// Calculator derives an integer progress percentage in [0,100] from a
// goal's milestones and recent activities and persists it together with the
// recalculation timestamp.
type Calculator struct {
	goals      GoalRepository
	milestones MilestoneRepository
	activities ActivityRepository
	window     time.Duration
}

// NewCalculator constructs a Calculator.
func NewCalculator(goals GoalRepository, milestones MilestoneRepository, activities ActivityRepository, window time.Duration) *Calculator {
	if window <= 0 {
		window = DefaultActivityWindow
	}
	return &Calculator{goals: goals, milestones: milestones, activities: activities, window: window}
}

// Recompute loads the goal's current milestones and windowed activities,
// blends them, and stores the result. It is idempotent: with no intervening
// mutation a second call persists the same value. Callers on mutation paths
// treat any returned error as advisory.
func (c *Calculator) Recompute(ctx context.Context, goalID string) (int, error) {
	start := time.Now()

	goal, err := c.goals.Get(ctx, goalID)
	if err != nil {
		observability.RecordRecomputeFailure()
		return 0, err
	}
	if goal == nil {
		observability.RecordRecomputeFailure()
		return 0, ErrGoalNotFound
	}

	milestones, err := c.milestones.ListByGoal(ctx, goalID)
	if err != nil {
		observability.RecordRecomputeFailure()
		return 0, err
	}

	now := time.Now().UTC()
	activities, err := c.activities.ListByGoalWindow(ctx, goalID, now.Add(-c.window), now)
	if err != nil {
		observability.RecordRecomputeFailure()
		return 0, err
	}

	pct := blendProgress(milestones, activities)
	if err := c.goals.UpdateProgress(ctx, goalID, pct, now); err != nil {
		observability.RecordRecomputeFailure()
		return 0, err
	}

	observability.RecordRecompute(now, time.Since(start))
	return pct, nil
}

// blendProgress combines the milestone completion rate with the normalized
// quality of recent activities. Both components are total over empty sets:
// a goal with neither milestones nor activity signal scores 0.
func blendProgress(milestones []Milestone, activities []Activity) int {
	raw := milestoneWeight*milestoneCompletionRate(milestones) + activityWeight*activityQualityScore(activities)

	pct := int(math.Round(raw * 100))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

func milestoneCompletionRate(milestones []Milestone) float64 {
	if len(milestones) == 0 {
		return 0
	}
	achieved := 0
	for _, milestone := range milestones {
		if milestone.Status == MilestoneStatusAchieved {
			achieved++
		}
	}
	return float64(achieved) / float64(len(milestones))
}

// activityQualityScore averages, over activities carrying at least one
// quality signal, the per-activity mean of the normalized progress rating
// and the success-level score.
func activityQualityScore(activities []Activity) float64 {
	sum := 0.0
	scored := 0
	for _, activity := range activities {
		signalSum := 0.0
		signals := 0
		if activity.ProgressRating != nil {
			signalSum += float64(*activity.ProgressRating-1) / 4
			signals++
		}
		if activity.SuccessLevel != nil {
			if score, ok := activity.SuccessLevel.Score(); ok {
				signalSum += score
				signals++
			}
		}
		if signals > 0 {
			sum += signalSum / float64(signals)
			scored++
		}
	}
	if scored == 0 {
		return 0
	}
	return sum / float64(scored)
}
