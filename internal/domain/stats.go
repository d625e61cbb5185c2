package domain

import (
	"context"
	"math"
	"time"
)

// DefaultStatsWindowDays is the trailing window used when the caller does
// not supply one.
const DefaultStatsWindowDays = 30

// ActivityStats summarises the ledger over a trailing window.
type ActivityStats struct {
	WindowDays               int
	TotalActivities          int
	ActivitiesPerWeek        float64
	TotalDurationMin         int
	AvgDurationMin           float64
	AvgProgressRating        float64
	SuccessLevelDistribution map[SuccessLevel]int
	ActivityTypeDistribution map[string]int
}

// MilestoneStats summarises a goal's milestone checklist.
type MilestoneStats struct {
	Total          int
	Achieved       int
	InProgress     int
	Pending        int
	Missed         int
	Overdue        int
	CompletionRate int
}

// Statistics is the read-only reporting layer for dashboards. It recomputes
// from storage on every call; nothing is cached and nothing is mutated.
type Statistics struct {
	goals      GoalRepository
	activities ActivityRepository
	milestones MilestoneRepository
}

// NewStatistics constructs a Statistics aggregator.
func NewStatistics(goals GoalRepository, activities ActivityRepository, milestones MilestoneRepository) *Statistics {
	return &Statistics{goals: goals, activities: activities, milestones: milestones}
}

// GetActivityStats computes windowed activity statistics for a goal.
func (s *Statistics) GetActivityStats(ctx context.Context, goalID string, windowDays int) (*ActivityStats, error) {
	if windowDays <= 0 {
		windowDays = DefaultStatsWindowDays
	}
	if err := s.requireGoal(ctx, goalID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	activities, err := s.activities.ListByGoalWindow(ctx, goalID, now.AddDate(0, 0, -windowDays), now)
	if err != nil {
		return nil, err
	}

	stats := computeActivityStats(activities, windowDays)
	return &stats, nil
}

// GetMilestoneStats computes checklist statistics for a goal.
func (s *Statistics) GetMilestoneStats(ctx context.Context, goalID string) (*MilestoneStats, error) {
	if err := s.requireGoal(ctx, goalID); err != nil {
		return nil, err
	}

	milestones, err := s.milestones.ListByGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}

	stats := computeMilestoneStats(milestones, time.Now().UTC())
	return &stats, nil
}

func (s *Statistics) requireGoal(ctx context.Context, goalID string) error {
	goal, err := s.goals.Get(ctx, goalID)
	if err != nil {
		return err
	}
	if goal == nil {
		return &NotFoundError{Kind: "goal", ID: goalID}
	}
	return nil
}

// computeActivityStats derives the windowed summary. Every rate and average
// guards its denominator: empty sets yield 0, never NaN.
func computeActivityStats(activities []Activity, windowDays int) ActivityStats {
	stats := ActivityStats{
		WindowDays:               windowDays,
		TotalActivities:          len(activities),
		SuccessLevelDistribution: make(map[SuccessLevel]int),
		ActivityTypeDistribution: make(map[string]int),
	}

	if windowDays > 0 {
		stats.ActivitiesPerWeek = float64(len(activities)) * 7 / float64(windowDays)
	}

	durationCount := 0
	ratingSum, ratingCount := 0, 0
	for _, activity := range activities {
		stats.ActivityTypeDistribution[activity.ActivityType]++
		if activity.DurationMin != nil {
			stats.TotalDurationMin += *activity.DurationMin
			durationCount++
		}
		if activity.SuccessLevel != nil {
			stats.SuccessLevelDistribution[*activity.SuccessLevel]++
		}
		if activity.ProgressRating != nil {
			ratingSum += *activity.ProgressRating
			ratingCount++
		}
	}

	if durationCount > 0 {
		stats.AvgDurationMin = float64(stats.TotalDurationMin) / float64(durationCount)
	}
	if ratingCount > 0 {
		stats.AvgProgressRating = float64(ratingSum) / float64(ratingCount)
	}
	return stats
}

func computeMilestoneStats(milestones []Milestone, now time.Time) MilestoneStats {
	stats := MilestoneStats{Total: len(milestones)}

	for _, milestone := range milestones {
		switch milestone.Status {
		case MilestoneStatusAchieved:
			stats.Achieved++
		case MilestoneStatusInProgress:
			stats.InProgress++
		case MilestoneStatusMissed:
			stats.Missed++
		default:
			stats.Pending++
		}
		if milestone.Status != MilestoneStatusAchieved && milestone.TargetDate != nil && milestone.TargetDate.Before(now) {
			stats.Overdue++
		}
	}

	if stats.Total > 0 {
		stats.CompletionRate = int(math.Round(float64(stats.Achieved) / float64(stats.Total) * 100))
	}
	return stats
}
