package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/goalprogress/internal/auth"
	"example.com/goalprogress/internal/domain"
	"example.com/goalprogress/internal/persistence/memory"
)

func newTestMux() (*http.ServeMux, *memory.Store) {
	store := memory.NewStore()
	calculator := domain.NewCalculator(store, store.Milestones(), store.Activities(), 0)
	handler := NewHandler(
		domain.NewGoalService(store),
		domain.NewActivityLedger(store, store.Activities(), calculator),
		domain.NewMilestoneTracker(store, store.Milestones(), calculator),
		domain.NewStatistics(store, store.Activities(), store.Milestones()),
	)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux, store
}

func writerClaims() *auth.Claims {
	return &auth.Claims{
		Subject: "tester",
		StaffID: "staff-7",
		Scopes: map[string]struct{}{
			auth.ScopeGoalsWrite: {},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func readerClaims() *auth.Claims {
	return &auth.Claims{
		Subject: "tester",
		StaffID: "staff-7",
		Scopes: map[string]struct{}{
			auth.ScopeGoalsRead: {},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func doRequest(mux *http.ServeMux, claims *auth.Claims, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if claims != nil {
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func createTestGoal(t *testing.T, mux *http.ServeMux) GoalView {
	t.Helper()
	rr := doRequest(mux, writerClaims(), http.MethodPost, "/v1/goals", CreateGoalRequest{
		OutcomeID: "outcome-1",
		Title:     "Order lunch independently",
		Priority:  "high",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var goal GoalView
	if err := json.Unmarshal(rr.Body.Bytes(), &goal); err != nil {
		t.Fatalf("failed to decode goal: %v", err)
	}
	return goal
}

func TestCreateAndGetGoal(t *testing.T) {
	mux, _ := newTestMux()
	goal := createTestGoal(t, mux)

	if goal.Status != "active" {
		t.Fatalf("expected active goal got %s", goal.Status)
	}
	if goal.ProgressPct != 0 {
		t.Fatalf("expected zero progress got %d", goal.ProgressPct)
	}

	rr := doRequest(mux, readerClaims(), http.MethodGet, "/v1/goals/"+goal.GoalID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(mux, readerClaims(), http.MethodGet, "/v1/goals?outcome_id=outcome-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var list ListGoalsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("expected 1 goal got %d", len(list.Items))
	}
}

func TestCreateGoalRequiresWriteScope(t *testing.T) {
	mux, _ := newTestMux()

	rr := doRequest(mux, readerClaims(), http.MethodPost, "/v1/goals", CreateGoalRequest{
		OutcomeID: "outcome-1",
		Title:     "x",
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}

	rr = doRequest(mux, nil, http.MethodPost, "/v1/goals", CreateGoalRequest{
		OutcomeID: "outcome-1",
		Title:     "x",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestLogActivityUsesClaimStaffID(t *testing.T) {
	mux, store := newTestMux()
	goal := createTestGoal(t, mux)

	rating := 5
	rr := doRequest(mux, writerClaims(), http.MethodPost, "/v1/activities", LogActivityRequest{
		GoalID:         goal.GoalID,
		ActivityDate:   time.Now().UTC(),
		ActivityType:   "community_outing",
		ProgressRating: &rating,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}

	var view ActivityView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode activity: %v", err)
	}
	if view.StaffID != "staff-7" {
		t.Fatalf("expected staff id from claims, got %q", view.StaffID)
	}

	stored, err := store.Get(context.Background(), goal.GoalID)
	if err != nil || stored == nil {
		t.Fatalf("goal lookup failed: %v", err)
	}
	if stored.ProgressPct != 30 {
		t.Fatalf("expected recomputed progress 30 got %d", stored.ProgressPct)
	}
}

func TestLogActivityValidationFailure(t *testing.T) {
	mux, _ := newTestMux()
	goal := createTestGoal(t, mux)

	rating := 9
	rr := doRequest(mux, writerClaims(), http.MethodPost, "/v1/activities", LogActivityRequest{
		GoalID:         goal.GoalID,
		ActivityDate:   time.Now().UTC(),
		ActivityType:   "community_outing",
		ProgressRating: &rating,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}

	var payload map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if payload["type"] != "validation_failed" {
		t.Fatalf("expected validation_failed got %q", payload["type"])
	}
}

func TestUpdateAndDeleteActivity(t *testing.T) {
	mux, _ := newTestMux()
	goal := createTestGoal(t, mux)

	rr := doRequest(mux, writerClaims(), http.MethodPost, "/v1/activities", LogActivityRequest{
		GoalID:       goal.GoalID,
		ActivityDate: time.Now().UTC(),
		ActivityType: "meal_prep",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var view ActivityView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode activity: %v", err)
	}

	description := "prepared sandwich with minimal support"
	rr = doRequest(mux, writerClaims(), http.MethodPatch, "/v1/activities/"+view.ActivityID, UpdateActivityRequest{
		Description: &description,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(mux, writerClaims(), http.MethodDelete, "/v1/activities/"+view.ActivityID, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(mux, writerClaims(), http.MethodDelete, "/v1/activities/"+view.ActivityID, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestMilestoneLifecycleEndpoints(t *testing.T) {
	mux, _ := newTestMux()
	goal := createTestGoal(t, mux)

	rr := doRequest(mux, writerClaims(), http.MethodPost, "/v1/milestones", CreateMilestoneRequest{
		GoalID: goal.GoalID,
		Title:  "Gather ingredients",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var milestone MilestoneView
	if err := json.Unmarshal(rr.Body.Bytes(), &milestone); err != nil {
		t.Fatalf("failed to decode milestone: %v", err)
	}
	if milestone.OrderIndex != 1 {
		t.Fatalf("expected order index 1 got %d", milestone.OrderIndex)
	}

	rr = doRequest(mux, writerClaims(), http.MethodPost, "/v1/milestones/"+milestone.MilestoneID+"/start", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(mux, writerClaims(), http.MethodPost, "/v1/milestones/"+milestone.MilestoneID+"/achieve", MilestoneNotesRequest{Notes: "done"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var achieved MilestoneView
	if err := json.Unmarshal(rr.Body.Bytes(), &achieved); err != nil {
		t.Fatalf("failed to decode milestone: %v", err)
	}
	if achieved.Status != "achieved" || achieved.AchievedDate == nil {
		t.Fatalf("expected achieved milestone with date, got %+v", achieved)
	}

	rr = doRequest(mux, readerClaims(), http.MethodGet, "/v1/goals/"+goal.GoalID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var refreshed GoalView
	if err := json.Unmarshal(rr.Body.Bytes(), &refreshed); err != nil {
		t.Fatalf("failed to decode goal: %v", err)
	}
	if refreshed.ProgressPct != 70 {
		t.Fatalf("expected progress 70 got %d", refreshed.ProgressPct)
	}

	rr = doRequest(mux, readerClaims(), http.MethodGet, "/v1/goals/"+goal.GoalID+"/milestones/stats", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var stats MilestoneStatsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.CompletionRate != 100 {
		t.Fatalf("expected completion rate 100 got %d", stats.CompletionRate)
	}
}

func TestReorderMilestonesEndpoint(t *testing.T) {
	mux, _ := newTestMux()
	goal := createTestGoal(t, mux)

	var ids []string
	for i := 0; i < 3; i++ {
		rr := doRequest(mux, writerClaims(), http.MethodPost, "/v1/milestones", CreateMilestoneRequest{
			GoalID: goal.GoalID,
			Title:  "step",
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
		}
		var milestone MilestoneView
		if err := json.Unmarshal(rr.Body.Bytes(), &milestone); err != nil {
			t.Fatalf("failed to decode milestone: %v", err)
		}
		ids = append(ids, milestone.MilestoneID)
	}

	reversed := []string{ids[2], ids[1], ids[0]}
	rr := doRequest(mux, writerClaims(), http.MethodPut, "/v1/goals/"+goal.GoalID+"/milestones/order", ReorderMilestonesRequest{
		MilestoneIDs: reversed,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var list ListMilestonesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list.Items) != 3 || list.Items[0].MilestoneID != ids[2] {
		t.Fatalf("unexpected ordering: %+v", list.Items)
	}

	// Partial id set is rejected before any write.
	rr = doRequest(mux, writerClaims(), http.MethodPut, "/v1/goals/"+goal.GoalID+"/milestones/order", ReorderMilestonesRequest{
		MilestoneIDs: []string{ids[0]},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestActivityTimelineAndStatsEndpoints(t *testing.T) {
	mux, _ := newTestMux()
	goal := createTestGoal(t, mux)

	rr := doRequest(mux, writerClaims(), http.MethodPost, "/v1/activities", LogActivityRequest{
		GoalID:       goal.GoalID,
		ActivityDate: time.Now().UTC(),
		ActivityType: "session",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(mux, readerClaims(), http.MethodGet, "/v1/goals/"+goal.GoalID+"/activities", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(mux, readerClaims(), http.MethodGet, "/v1/goals/"+goal.GoalID+"/activities/timeline", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(mux, readerClaims(), http.MethodGet, "/v1/goals/"+goal.GoalID+"/activities/timeline?start_date=yesterday", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(mux, readerClaims(), http.MethodGet, "/v1/goals/"+goal.GoalID+"/activities/stats?window_days=7", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var stats ActivityStatsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.TotalActivities != 1 || stats.WindowDays != 7 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestGoalStatusEndpoint(t *testing.T) {
	mux, _ := newTestMux()
	goal := createTestGoal(t, mux)

	rr := doRequest(mux, writerClaims(), http.MethodPost, "/v1/goals/"+goal.GoalID+"/status", UpdateGoalStatusRequest{Status: "paused"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var view GoalView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode goal: %v", err)
	}
	if view.Status != "paused" {
		t.Fatalf("expected paused got %s", view.Status)
	}

	rr = doRequest(mux, writerClaims(), http.MethodPost, "/v1/goals/"+goal.GoalID+"/status", UpdateGoalStatusRequest{Status: "archived"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	mux, _ := newTestMux()
	goal := createTestGoal(t, mux)

	rr := doRequest(mux, writerClaims(), http.MethodDelete, "/v1/goals/"+goal.GoalID, nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rr.Code)
	}
}
