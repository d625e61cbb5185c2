package domain

import (
	"errors"
	"fmt"
)

// ErrGoalNotFound is returned when a goal id does not resolve.
var ErrGoalNotFound = errors.New("goal not found")

// ValidationError reports malformed input on a single field. No partial
// write occurs when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// NotFoundError reports an id that did not resolve to a record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ReorderConsistencyError reports a milestone reorder batch that could not
// be applied as a whole. The ordering on disk is unchanged when it is
// returned.
type ReorderConsistencyError struct {
	GoalID string
	Reason string
}

func (e *ReorderConsistencyError) Error() string {
	return fmt.Sprintf("milestone reorder for goal %s failed: %s", e.GoalID, e.Reason)
}

// RecomputeError wraps a progress recomputation failure. Mutation paths log
// it and keep the goal's previous progress value; it never fails the
// triggering write.
type RecomputeError struct {
	GoalID string
	Err    error
}

func (e *RecomputeError) Error() string {
	return fmt.Sprintf("progress recompute for goal %s failed: %v", e.GoalID, e.Err)
}

func (e *RecomputeError) Unwrap() error {
	return e.Err
}
