// Package events defines payloads published for downstream subsystems
// (dashboards, notifications).
package events

import "time"

// ActivityLogged is emitted when a support activity is recorded against a
// goal.
type ActivityLogged struct {
	ActivityID   string    `json:"activity_id"`
	GoalID       string    `json:"goal_id"`
	StaffID      string    `json:"staff_id"`
	ActivityType string    `json:"activity_type"`
	ActivityDate time.Time `json:"activity_date"`
	DurationMin  *int      `json:"duration_min,omitempty"`
}

// ActivityRemoved is emitted when an activity is deleted from the ledger.
type ActivityRemoved struct {
	ActivityID string    `json:"activity_id"`
	GoalID     string    `json:"goal_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MilestoneAchieved is emitted when a milestone transitions to achieved.
type MilestoneAchieved struct {
	MilestoneID  string    `json:"milestone_id"`
	GoalID       string    `json:"goal_id"`
	Title        string    `json:"title"`
	OrderIndex   int       `json:"order_index"`
	AchievedDate time.Time `json:"achieved_date"`
}

// ProgressRecalculated is emitted after the calculator persists a new
// progress value for a goal.
type ProgressRecalculated struct {
	GoalID         string    `json:"goal_id"`
	ProgressPct    int       `json:"progress_pct"`
	RecalculatedAt time.Time `json:"recalculated_at"`
}
