// Package memory provides in-memory repositories for unit tests and local
// development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/goalprogress/internal/domain"
)

// Store keeps goals, milestones, and activities in maps guarded by one
// mutex. It satisfies the three domain repository interfaces.
type Store struct {
	mu         sync.RWMutex
	goals      map[string]domain.Goal
	milestones map[string]domain.Milestone
	activities map[string]domain.Activity
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		goals:      make(map[string]domain.Goal),
		milestones: make(map[string]domain.Milestone),
		activities: make(map[string]domain.Activity),
	}
}

// Create stores a goal.
func (s *Store) Create(ctx context.Context, goal domain.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.goals[goal.ID]; exists {
		return fmt.Errorf("goal %s already exists", goal.ID)
	}
	s.goals[goal.ID] = goal
	return nil
}

// Get returns the goal or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	goal, ok := s.goals[id]
	if !ok {
		return nil, nil
	}
	return &goal, nil
}

// ListByOutcome returns goals under the outcome, oldest first.
func (s *Store) ListByOutcome(ctx context.Context, outcomeID string) ([]domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Goal, 0)
	for _, goal := range s.goals {
		if goal.OutcomeID == outcomeID {
			out = append(out, goal)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateStatus transitions a goal's lifecycle state.
func (s *Store) UpdateStatus(ctx context.Context, id string, status domain.GoalStatus, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	goal, ok := s.goals[id]
	if !ok {
		return fmt.Errorf("goal %s does not exist", id)
	}
	goal.Status = status
	goal.UpdatedAt = updatedAt
	s.goals[id] = goal
	return nil
}

// UpdateProgress persists the derived progress value.
func (s *Store) UpdateProgress(ctx context.Context, id string, progressPct int, recalculatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	goal, ok := s.goals[id]
	if !ok {
		return fmt.Errorf("goal %s does not exist", id)
	}
	goal.ProgressPct = progressPct
	ts := recalculatedAt
	goal.LastRecalculatedAt = &ts
	s.goals[id] = goal
	return nil
}

// MilestoneStore adapts Store to domain.MilestoneRepository. Separate
// receiver types keep the three Create methods from colliding.
type MilestoneStore struct {
	store *Store
}

// Milestones returns the milestone repository view of the store.
func (s *Store) Milestones() *MilestoneStore {
	return &MilestoneStore{store: s}
}

// Create stores a milestone.
func (m *MilestoneStore) Create(ctx context.Context, milestone domain.Milestone) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if _, exists := m.store.milestones[milestone.ID]; exists {
		return fmt.Errorf("milestone %s already exists", milestone.ID)
	}
	m.store.milestones[milestone.ID] = milestone
	return nil
}

// Update overwrites a milestone.
func (m *MilestoneStore) Update(ctx context.Context, milestone domain.Milestone) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if _, exists := m.store.milestones[milestone.ID]; !exists {
		return fmt.Errorf("milestone %s does not exist", milestone.ID)
	}
	m.store.milestones[milestone.ID] = milestone
	return nil
}

// Delete removes a milestone.
func (m *MilestoneStore) Delete(ctx context.Context, id string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if _, exists := m.store.milestones[id]; !exists {
		return fmt.Errorf("milestone %s does not exist", id)
	}
	delete(m.store.milestones, id)
	return nil
}

// Get returns the milestone or nil when absent.
func (m *MilestoneStore) Get(ctx context.Context, id string) (*domain.Milestone, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	milestone, ok := m.store.milestones[id]
	if !ok {
		return nil, nil
	}
	return &milestone, nil
}

// ListByGoal returns milestones ordered by order index.
func (m *MilestoneStore) ListByGoal(ctx context.Context, goalID string) ([]domain.Milestone, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	out := make([]domain.Milestone, 0)
	for _, milestone := range m.store.milestones {
		if milestone.GoalID == goalID {
			out = append(out, milestone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex == out[j].OrderIndex {
			return out[i].ID < out[j].ID
		}
		return out[i].OrderIndex < out[j].OrderIndex
	})
	return out, nil
}

// CountByGoal counts the goal's milestones.
func (m *MilestoneStore) CountByGoal(ctx context.Context, goalID string) (int, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	count := 0
	for _, milestone := range m.store.milestones {
		if milestone.GoalID == goalID {
			count++
		}
	}
	return count, nil
}

// Reorder reassigns order indexes as one batch. All ids are checked before
// any write so a failure leaves the ordering untouched.
func (m *MilestoneStore) Reorder(ctx context.Context, goalID string, orderedIDs []string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	for _, id := range orderedIDs {
		milestone, ok := m.store.milestones[id]
		if !ok || milestone.GoalID != goalID {
			return fmt.Errorf("milestone %s does not belong to goal %s", id, goalID)
		}
	}

	now := time.Now().UTC()
	for position, id := range orderedIDs {
		milestone := m.store.milestones[id]
		milestone.OrderIndex = position + 1
		milestone.UpdatedAt = now
		m.store.milestones[id] = milestone
	}
	return nil
}

// ActivityStore adapts Store to domain.ActivityRepository.
type ActivityStore struct {
	store *Store
}

// Activities returns the activity repository view of the store.
func (s *Store) Activities() *ActivityStore {
	return &ActivityStore{store: s}
}

// Create stores an activity.
func (a *ActivityStore) Create(ctx context.Context, activity domain.Activity) error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	if _, exists := a.store.activities[activity.ID]; exists {
		return fmt.Errorf("activity %s already exists", activity.ID)
	}
	a.store.activities[activity.ID] = activity
	return nil
}

// Update overwrites an activity.
func (a *ActivityStore) Update(ctx context.Context, activity domain.Activity) error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	if _, exists := a.store.activities[activity.ID]; !exists {
		return fmt.Errorf("activity %s does not exist", activity.ID)
	}
	a.store.activities[activity.ID] = activity
	return nil
}

// Delete removes an activity.
func (a *ActivityStore) Delete(ctx context.Context, id string) error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	if _, exists := a.store.activities[id]; !exists {
		return fmt.Errorf("activity %s does not exist", id)
	}
	delete(a.store.activities, id)
	return nil
}

// Get returns the activity or nil when absent.
func (a *ActivityStore) Get(ctx context.Context, id string) (*domain.Activity, error) {
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	activity, ok := a.store.activities[id]
	if !ok {
		return nil, nil
	}
	return &activity, nil
}

// ListByGoal returns up to limit activities, most recent first.
func (a *ActivityStore) ListByGoal(ctx context.Context, goalID string, limit int) ([]domain.Activity, error) {
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	out := a.collect(goalID, time.Time{}, time.Time{})
	sort.Slice(out, func(i, j int) bool {
		if out[i].ActivityDate.Equal(out[j].ActivityDate) {
			return out[i].ID > out[j].ID
		}
		return out[i].ActivityDate.After(out[j].ActivityDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByGoalWindow returns activities inside the window, oldest first.
func (a *ActivityStore) ListByGoalWindow(ctx context.Context, goalID string, from, to time.Time) ([]domain.Activity, error) {
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	out := a.collect(goalID, from, to)
	sort.Slice(out, func(i, j int) bool {
		if out[i].ActivityDate.Equal(out[j].ActivityDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].ActivityDate.Before(out[j].ActivityDate)
	})
	return out, nil
}

func (a *ActivityStore) collect(goalID string, from, to time.Time) []domain.Activity {
	out := make([]domain.Activity, 0)
	for _, activity := range a.store.activities {
		if activity.GoalID != goalID {
			continue
		}
		if !from.IsZero() && activity.ActivityDate.Before(from) {
			continue
		}
		if !to.IsZero() && activity.ActivityDate.After(to) {
			continue
		}
		out = append(out, activity)
	}
	return out
}
