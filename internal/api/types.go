package api

import (
	"time"

	"example.com/goalprogress/internal/domain"
)

// CreateGoalRequest is the payload for POST /v1/goals.
type CreateGoalRequest struct {
	OutcomeID   string `json:"outcome_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	GoalType    string `json:"goal_type"`
	Priority    string `json:"priority"`
	Frequency   string `json:"frequency"`
}

// UpdateGoalStatusRequest is the payload for POST /v1/goals/{id}/status.
type UpdateGoalStatusRequest struct {
	Status string `json:"status"`
}

// GoalView exposes full details about a goal.
type GoalView struct {
	GoalID             string     `json:"goal_id"`
	OutcomeID          string     `json:"outcome_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	GoalType           string     `json:"goal_type,omitempty"`
	Status             string     `json:"status"`
	Priority           string     `json:"priority"`
	Frequency          string     `json:"frequency,omitempty"`
	ProgressPct        int        `json:"progress_pct"`
	LastRecalculatedAt *time.Time `json:"last_recalculated_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// LogActivityRequest is the payload for POST /v1/activities.
type LogActivityRequest struct {
	GoalID         string    `json:"goal_id"`
	ActivityDate   time.Time `json:"activity_date"`
	ActivityType   string    `json:"activity_type"`
	Description    string    `json:"description"`
	DurationMin    *int      `json:"duration_min"`
	SuccessLevel   *string   `json:"success_level"`
	Prompts        []string  `json:"prompts"`
	Observations   string    `json:"observations"`
	Barriers       string    `json:"barriers"`
	Modifications  string    `json:"modifications"`
	ProgressRating *int      `json:"progress_rating"`
	ProgressNoteID *string   `json:"progress_note_id"`
}

// UpdateActivityRequest is the partial payload for PATCH /v1/activities/{id}.
type UpdateActivityRequest struct {
	ActivityDate   *time.Time `json:"activity_date"`
	ActivityType   *string    `json:"activity_type"`
	Description    *string    `json:"description"`
	DurationMin    *int       `json:"duration_min"`
	SuccessLevel   *string    `json:"success_level"`
	Prompts        []string   `json:"prompts"`
	Observations   *string    `json:"observations"`
	Barriers       *string    `json:"barriers"`
	Modifications  *string    `json:"modifications"`
	ProgressRating *int       `json:"progress_rating"`
}

// ActivityView exposes full details about a ledger entry.
type ActivityView struct {
	ActivityID     string    `json:"activity_id"`
	GoalID         string    `json:"goal_id"`
	StaffID        string    `json:"staff_id"`
	ActivityDate   time.Time `json:"activity_date"`
	ActivityType   string    `json:"activity_type"`
	Description    string    `json:"description,omitempty"`
	DurationMin    *int      `json:"duration_min,omitempty"`
	SuccessLevel   *string   `json:"success_level,omitempty"`
	Prompts        []string  `json:"prompts,omitempty"`
	Observations   string    `json:"observations,omitempty"`
	Barriers       string    `json:"barriers,omitempty"`
	Modifications  string    `json:"modifications,omitempty"`
	ProgressRating *int      `json:"progress_rating,omitempty"`
	ProgressNoteID *string   `json:"progress_note_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ListActivitiesResponse packages list and timeline results.
type ListActivitiesResponse struct {
	Items []ActivityView `json:"items"`
}

// ActivityStatsResponse mirrors the windowed ledger statistics.
type ActivityStatsResponse struct {
	WindowDays               int            `json:"window_days"`
	TotalActivities          int            `json:"total_activities"`
	ActivitiesPerWeek        float64        `json:"activities_per_week"`
	TotalDurationMin         int            `json:"total_duration_min"`
	AvgDurationMin           float64        `json:"avg_duration_min"`
	AvgProgressRating        float64        `json:"avg_progress_rating"`
	SuccessLevelDistribution map[string]int `json:"success_level_distribution"`
	ActivityTypeDistribution map[string]int `json:"activity_type_distribution"`
}

// CreateMilestoneRequest is the payload for POST /v1/milestones.
type CreateMilestoneRequest struct {
	GoalID             string     `json:"goal_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	TargetDate         *time.Time `json:"target_date"`
	CompletionCriteria string     `json:"completion_criteria"`
	OrderIndex         int        `json:"order_index"`
}

// UpdateMilestoneRequest is the partial payload for PATCH /v1/milestones/{id}.
type UpdateMilestoneRequest struct {
	Title              *string    `json:"title"`
	Description        *string    `json:"description"`
	TargetDate         *time.Time `json:"target_date"`
	CompletionCriteria *string    `json:"completion_criteria"`
	Notes              *string    `json:"notes"`
}

// MilestoneNotesRequest carries the optional notes on achieve/miss.
type MilestoneNotesRequest struct {
	Notes string `json:"notes"`
}

// ReorderMilestonesRequest is the payload for PUT /v1/goals/{id}/milestones/order.
type ReorderMilestonesRequest struct {
	MilestoneIDs []string `json:"milestone_ids"`
}

// MilestoneView exposes full details about a milestone.
type MilestoneView struct {
	MilestoneID        string     `json:"milestone_id"`
	GoalID             string     `json:"goal_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	TargetDate         *time.Time `json:"target_date,omitempty"`
	CompletionCriteria string     `json:"completion_criteria,omitempty"`
	OrderIndex         int        `json:"order_index"`
	Status             string     `json:"status"`
	AchievedDate       *time.Time `json:"achieved_date,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ListMilestonesResponse packages milestone lists.
type ListMilestonesResponse struct {
	Items []MilestoneView `json:"items"`
}

// MilestoneStatsResponse mirrors the checklist statistics.
type MilestoneStatsResponse struct {
	Total          int `json:"total"`
	Achieved       int `json:"achieved"`
	InProgress     int `json:"in_progress"`
	Pending        int `json:"pending"`
	Missed         int `json:"missed"`
	Overdue        int `json:"overdue"`
	CompletionRate int `json:"completion_rate"`
}

// ListGoalsResponse packages goal lists.
type ListGoalsResponse struct {
	Items []GoalView `json:"items"`
}

func toGoalView(goal domain.Goal) GoalView {
	return GoalView{
		GoalID:             goal.ID,
		OutcomeID:          goal.OutcomeID,
		Title:              goal.Title,
		Description:        goal.Description,
		GoalType:           goal.GoalType,
		Status:             string(goal.Status),
		Priority:           string(goal.Priority),
		Frequency:          goal.Frequency,
		ProgressPct:        goal.ProgressPct,
		LastRecalculatedAt: goal.LastRecalculatedAt,
		CreatedAt:          goal.CreatedAt,
		UpdatedAt:          goal.UpdatedAt,
	}
}

func toActivityView(activity domain.Activity) ActivityView {
	view := ActivityView{
		ActivityID:     activity.ID,
		GoalID:         activity.GoalID,
		StaffID:        activity.StaffID,
		ActivityDate:   activity.ActivityDate,
		ActivityType:   activity.ActivityType,
		Description:    activity.Description,
		DurationMin:    activity.DurationMin,
		Observations:   activity.Observations,
		Barriers:       activity.Barriers,
		Modifications:  activity.Modifications,
		ProgressRating: activity.ProgressRating,
		ProgressNoteID: activity.ProgressNoteID,
		CreatedAt:      activity.CreatedAt,
		UpdatedAt:      activity.UpdatedAt,
	}
	if activity.SuccessLevel != nil {
		level := string(*activity.SuccessLevel)
		view.SuccessLevel = &level
	}
	for _, prompt := range activity.Prompts {
		view.Prompts = append(view.Prompts, string(prompt))
	}
	return view
}

func toMilestoneView(milestone domain.Milestone) MilestoneView {
	return MilestoneView{
		MilestoneID:        milestone.ID,
		GoalID:             milestone.GoalID,
		Title:              milestone.Title,
		Description:        milestone.Description,
		TargetDate:         milestone.TargetDate,
		CompletionCriteria: milestone.CompletionCriteria,
		OrderIndex:         milestone.OrderIndex,
		Status:             string(milestone.Status),
		AchievedDate:       milestone.AchievedDate,
		Notes:              milestone.Notes,
		CreatedAt:          milestone.CreatedAt,
		UpdatedAt:          milestone.UpdatedAt,
	}
}

func toActivityStatsResponse(stats domain.ActivityStats) ActivityStatsResponse {
	resp := ActivityStatsResponse{
		WindowDays:               stats.WindowDays,
		TotalActivities:          stats.TotalActivities,
		ActivitiesPerWeek:        stats.ActivitiesPerWeek,
		TotalDurationMin:         stats.TotalDurationMin,
		AvgDurationMin:           stats.AvgDurationMin,
		AvgProgressRating:        stats.AvgProgressRating,
		SuccessLevelDistribution: make(map[string]int, len(stats.SuccessLevelDistribution)),
		ActivityTypeDistribution: stats.ActivityTypeDistribution,
	}
	for level, count := range stats.SuccessLevelDistribution {
		resp.SuccessLevelDistribution[string(level)] = count
	}
	return resp
}

func toMilestoneStatsResponse(stats domain.MilestoneStats) MilestoneStatsResponse {
	return MilestoneStatsResponse{
		Total:          stats.Total,
		Achieved:       stats.Achieved,
		InProgress:     stats.InProgress,
		Pending:        stats.Pending,
		Missed:         stats.Missed,
		Overdue:        stats.Overdue,
		CompletionRate: stats.CompletionRate,
	}
}
