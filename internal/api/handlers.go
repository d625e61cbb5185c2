// Package api exposes HTTP handlers for the goal tracking service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/goalprogress/internal/auth"
	"example.com/goalprogress/internal/domain"
)

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	goals   *domain.GoalService
	ledger  *domain.ActivityLedger
	tracker *domain.MilestoneTracker
	stats   *domain.Statistics
}

// NewHandler builds a Handler.
func NewHandler(goals *domain.GoalService, ledger *domain.ActivityLedger, tracker *domain.MilestoneTracker, stats *domain.Statistics) *Handler {
	return &Handler{goals: goals, ledger: ledger, tracker: tracker, stats: stats}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/goals", h.goalsRoot)
	mux.HandleFunc("/v1/goals/", h.goalSubtree)
	mux.HandleFunc("/v1/activities", h.activitiesRoot)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/v1/milestones", h.milestonesRoot)
	mux.HandleFunc("/v1/milestones/", h.milestoneSubtree)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) goalsRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createGoal(w, r)
	case http.MethodGet:
		h.listGoals(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) goalSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/goals/")
	parts := strings.Split(rest, "/")
	if parts[0] == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing goal id")
		return
	}
	goalID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.getGoal(w, r, goalID)
	case len(parts) == 2 && parts[1] == "status":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.updateGoalStatus(w, r, goalID)
	case len(parts) == 2 && parts[1] == "activities":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.listActivities(w, r, goalID)
	case len(parts) == 3 && parts[1] == "activities" && parts[2] == "timeline":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.activityTimeline(w, r, goalID)
	case len(parts) == 3 && parts[1] == "activities" && parts[2] == "stats":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.activityStats(w, r, goalID)
	case len(parts) == 2 && parts[1] == "milestones":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.listMilestones(w, r, goalID)
	case len(parts) == 3 && parts[1] == "milestones" && parts[2] == "stats":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.milestoneStats(w, r, goalID)
	case len(parts) == 3 && parts[1] == "milestones" && parts[2] == "order":
		if r.Method != http.MethodPut {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.reorderMilestones(w, r, goalID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (h *Handler) createGoal(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireWrite(w, r); !ok {
		return
	}

	var req CreateGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	goal, err := h.goals.CreateGoal(r.Context(), domain.CreateGoalInput{
		OutcomeID:   req.OutcomeID,
		Title:       req.Title,
		Description: req.Description,
		GoalType:    req.GoalType,
		Priority:    domain.GoalPriority(req.Priority),
		Frequency:   req.Frequency,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGoalView(*goal))
}

func (h *Handler) getGoal(w http.ResponseWriter, r *http.Request, goalID string) {
	if _, ok := h.requireRead(w, r); !ok {
		return
	}

	goal, err := h.goals.GetGoal(r.Context(), goalID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalView(*goal))
}

func (h *Handler) listGoals(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRead(w, r); !ok {
		return
	}

	outcomeID := r.URL.Query().Get("outcome_id")
	if strings.TrimSpace(outcomeID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing outcome_id parameter")
		return
	}

	goals, err := h.goals.ListGoalsByOutcome(r.Context(), outcomeID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]GoalView, 0, len(goals))
	for _, goal := range goals {
		items = append(items, toGoalView(goal))
	}
	writeJSON(w, http.StatusOK, ListGoalsResponse{Items: items})
}

func (h *Handler) updateGoalStatus(w http.ResponseWriter, r *http.Request, goalID string) {
	if _, ok := h.requireWrite(w, r); !ok {
		return
	}

	var req UpdateGoalStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	goal, err := h.goals.UpdateGoalStatus(r.Context(), goalID, domain.GoalStatus(req.Status))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalView(*goal))
}

func (h *Handler) activitiesRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := h.requireWrite(w, r)
	if !ok {
		return
	}

	var req LogActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	activity, err := h.ledger.LogActivity(r.Context(), domain.LogActivityInput{
		GoalID:         req.GoalID,
		StaffID:        claims.StaffID,
		ActivityDate:   req.ActivityDate,
		ActivityType:   req.ActivityType,
		Description:    req.Description,
		DurationMin:    req.DurationMin,
		SuccessLevel:   toSuccessLevel(req.SuccessLevel),
		Prompts:        toPromptKinds(req.Prompts),
		Observations:   req.Observations,
		Barriers:       req.Barriers,
		Modifications:  req.Modifications,
		ProgressRating: req.ProgressRating,
		ProgressNoteID: req.ProgressNoteID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityView(*activity))
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}

	switch r.Method {
	case http.MethodPatch:
		h.updateActivity(w, r, id)
	case http.MethodDelete:
		h.deleteActivity(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) updateActivity(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.requireWrite(w, r); !ok {
		return
	}

	var req UpdateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	activity, err := h.ledger.UpdateActivity(r.Context(), id, domain.UpdateActivityInput{
		ActivityDate:   req.ActivityDate,
		ActivityType:   req.ActivityType,
		Description:    req.Description,
		DurationMin:    req.DurationMin,
		SuccessLevel:   toSuccessLevel(req.SuccessLevel),
		Prompts:        toPromptKinds(req.Prompts),
		Observations:   req.Observations,
		Barriers:       req.Barriers,
		Modifications:  req.Modifications,
		ProgressRating: req.ProgressRating,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) deleteActivity(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.requireWrite(w, r); !ok {
		return
	}

	if err := h.ledger.DeleteActivity(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request, goalID string) {
	if _, ok := h.requireRead(w, r); !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	activities, err := h.ledger.ListActivitiesByGoal(r.Context(), goalID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, activity := range activities {
		items = append(items, toActivityView(activity))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: items})
}

func (h *Handler) activityTimeline(w http.ResponseWriter, r *http.Request, goalID string) {
	if _, ok := h.requireRead(w, r); !ok {
		return
	}

	start, ok := parseTimeParam(w, r, "start_date")
	if !ok {
		return
	}
	end, ok := parseTimeParam(w, r, "end_date")
	if !ok {
		return
	}

	activities, err := h.ledger.GetActivityTimeline(r.Context(), goalID, start, end)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, activity := range activities {
		items = append(items, toActivityView(activity))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: items})
}

func (h *Handler) activityStats(w http.ResponseWriter, r *http.Request, goalID string) {
	if _, ok := h.requireRead(w, r); !ok {
		return
	}

	windowDays := 0
	if raw := r.URL.Query().Get("window_days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			windowDays = parsed
		}
	}

	stats, err := h.stats.GetActivityStats(r.Context(), goalID, windowDays)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityStatsResponse(*stats))
}

func (h *Handler) milestonesRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	if _, ok := h.requireWrite(w, r); !ok {
		return
	}

	var req CreateMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	milestone, err := h.tracker.CreateMilestone(r.Context(), domain.CreateMilestoneInput{
		GoalID:             req.GoalID,
		Title:              req.Title,
		Description:        req.Description,
		TargetDate:         req.TargetDate,
		CompletionCriteria: req.CompletionCriteria,
		OrderIndex:         req.OrderIndex,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMilestoneView(*milestone))
}

func (h *Handler) milestoneSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/milestones/")
	parts := strings.Split(rest, "/")
	if parts[0] == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing milestone id")
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodPatch:
			h.updateMilestone(w, r, id)
		case http.MethodDelete:
			h.deleteMilestone(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		}
	case len(parts) == 2 && r.Method == http.MethodPost:
		switch parts[1] {
		case "achieve":
			h.achieveMilestone(w, r, id)
		case "miss":
			h.missMilestone(w, r, id)
		case "start":
			h.startMilestone(w, r, id)
		default:
			writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		}
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) updateMilestone(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.requireWrite(w, r); !ok {
		return
	}

	var req UpdateMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	milestone, err := h.tracker.UpdateMilestone(r.Context(), id, domain.UpdateMilestoneInput{
		Title:              req.Title,
		Description:        req.Description,
		TargetDate:         req.TargetDate,
		CompletionCriteria: req.CompletionCriteria,
		Notes:              req.Notes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMilestoneView(*milestone))
}

func (h *Handler) deleteMilestone(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.requireWrite(w, r); !ok {
		return
	}

	if err := h.tracker.DeleteMilestone(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) achieveMilestone(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.requireWrite(w, r); !ok {
		return
	}

	req := decodeNotes(r)
	milestone, err := h.tracker.AchieveMilestone(r.Context(), id, req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMilestoneView(*milestone))
}

func (h *Handler) missMilestone(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.requireWrite(w, r); !ok {
		return
	}

	req := decodeNotes(r)
	milestone, err := h.tracker.MarkMilestoneMissed(r.Context(), id, req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMilestoneView(*milestone))
}

func (h *Handler) startMilestone(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.requireWrite(w, r); !ok {
		return
	}

	milestone, err := h.tracker.StartMilestone(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMilestoneView(*milestone))
}

func (h *Handler) listMilestones(w http.ResponseWriter, r *http.Request, goalID string) {
	if _, ok := h.requireRead(w, r); !ok {
		return
	}

	milestones, err := h.tracker.ListMilestones(r.Context(), goalID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]MilestoneView, 0, len(milestones))
	for _, milestone := range milestones {
		items = append(items, toMilestoneView(milestone))
	}
	writeJSON(w, http.StatusOK, ListMilestonesResponse{Items: items})
}

func (h *Handler) milestoneStats(w http.ResponseWriter, r *http.Request, goalID string) {
	if _, ok := h.requireRead(w, r); !ok {
		return
	}

	stats, err := h.stats.GetMilestoneStats(r.Context(), goalID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMilestoneStatsResponse(*stats))
}

func (h *Handler) reorderMilestones(w http.ResponseWriter, r *http.Request, goalID string) {
	if _, ok := h.requireWrite(w, r); !ok {
		return
	}

	var req ReorderMilestonesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	milestones, err := h.tracker.ReorderMilestones(r.Context(), goalID, req.MilestoneIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]MilestoneView, 0, len(milestones))
	for _, milestone := range milestones {
		items = append(items, toMilestoneView(milestone))
	}
	writeJSON(w, http.StatusOK, ListMilestonesResponse{Items: items})
}

func (h *Handler) requireWrite(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(auth.ScopeGoalsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope goals:write required")
		return nil, false
	}
	return claims, true
}

func (h *Handler) requireRead(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(auth.ScopeGoalsRead) && !claims.HasScope(auth.ScopeGoalsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope goals:read required")
		return nil, false
	}
	return claims, true
}

func decodeNotes(r *http.Request) MilestoneNotesRequest {
	var req MilestoneNotesRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	return req
}

func toSuccessLevel(value *string) *domain.SuccessLevel {
	if value == nil {
		return nil
	}
	level := domain.SuccessLevel(*value)
	return &level
}

func toPromptKinds(values []string) []domain.PromptKind {
	if values == nil {
		return nil
	}
	prompts := make([]domain.PromptKind, 0, len(values))
	for _, value := range values {
		prompts = append(prompts, domain.PromptKind(value))
	}
	return prompts
}

// parseTimeParam reads an optional RFC3339 or date-only query parameter.
func parseTimeParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, true
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed, true
	}
	if parsed, err := time.Parse(time.DateOnly, raw); err == nil {
		return parsed, true
	}
	writeError(w, http.StatusBadRequest, "validation_failed", "invalid "+name+" parameter")
	return time.Time{}, false
}

func writeDomainError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		writeError(w, http.StatusBadRequest, "validation_failed", validationErr.Error())
		return
	}
	var notFoundErr *domain.NotFoundError
	if errors.As(err, &notFoundErr) {
		writeError(w, http.StatusNotFound, "not_found", notFoundErr.Error())
		return
	}
	var reorderErr *domain.ReorderConsistencyError
	if errors.As(err, &reorderErr) {
		writeError(w, http.StatusConflict, "reorder_failed", reorderErr.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "server_error", err.Error())
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
