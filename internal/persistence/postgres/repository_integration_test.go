//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/goalprogress/internal/domain"
)

func TestRepositoryRoundTripAndOutbox(t *testing.T) {
	ctx := context.Background()

	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	goal := domain.Goal{
		ID:        uuid.NewString(),
		OutcomeID: uuid.NewString(),
		Title:     "Order lunch independently",
		GoalType:  "skill_acquisition",
		Status:    domain.GoalStatusActive,
		Priority:  domain.GoalPriorityHigh,
		Frequency: "daily",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Goals().Create(ctx, goal))

	stored, err := repo.Goals().Get(ctx, goal.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, goal.Title, stored.Title)
	require.Equal(t, 0, stored.ProgressPct)
	require.Nil(t, stored.LastRecalculatedAt)

	missing, err := repo.Goals().Get(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, missing)

	rating := 4
	duration := 25
	level := domain.SuccessIndependent
	activity := domain.Activity{
		ID:             uuid.NewString(),
		GoalID:         goal.ID,
		StaffID:        uuid.NewString(),
		ActivityDate:   now,
		ActivityType:   "community_outing",
		DurationMin:    &duration,
		SuccessLevel:   &level,
		Prompts:        []domain.PromptKind{domain.PromptVerbal, domain.PromptGestural},
		ProgressRating: &rating,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, repo.Activities().Create(ctx, activity))

	loaded, err := repo.Activities().Get(ctx, activity.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, activity.Prompts, loaded.Prompts)
	require.Equal(t, level, *loaded.SuccessLevel)
	require.Equal(t, rating, *loaded.ProgressRating)

	require.NoError(t, repo.Goals().UpdateProgress(ctx, goal.ID, 30, now))

	stored, err = repo.Goals().Get(ctx, goal.ID)
	require.NoError(t, err)
	require.Equal(t, 30, stored.ProgressPct)
	require.NotNil(t, stored.LastRecalculatedAt)

	require.Equal(t, 1, countOutbox(t, ctx, pool, "activity.logged"))
	require.Equal(t, 1, countOutbox(t, ctx, pool, "goal.progress_recalculated"))

	require.NoError(t, repo.Activities().Delete(ctx, activity.ID))
	require.Equal(t, 1, countOutbox(t, ctx, pool, "activity.removed"))
}

func TestMilestoneAchievementEmitsOnce(t *testing.T) {
	ctx := context.Background()

	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	goal := domain.Goal{
		ID:        uuid.NewString(),
		OutcomeID: uuid.NewString(),
		Title:     "Prepare a snack",
		Status:    domain.GoalStatusActive,
		Priority:  domain.GoalPriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Goals().Create(ctx, goal))

	milestone := domain.Milestone{
		ID:         uuid.NewString(),
		GoalID:     goal.ID,
		Title:      "Gather ingredients with prompts",
		OrderIndex: 1,
		Status:     domain.MilestoneStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, repo.Milestones().Create(ctx, milestone))

	achievedAt := now
	milestone.Status = domain.MilestoneStatusAchieved
	milestone.AchievedDate = &achievedAt
	milestone.UpdatedAt = now
	require.NoError(t, repo.Milestones().Update(ctx, milestone))
	require.Equal(t, 1, countOutbox(t, ctx, pool, "milestone.achieved"))

	// A second write that is already achieved must not emit again.
	milestone.Notes = "verified during session"
	require.NoError(t, repo.Milestones().Update(ctx, milestone))
	require.Equal(t, 1, countOutbox(t, ctx, pool, "milestone.achieved"))
}

func TestReorderRollsBackOnUnknownID(t *testing.T) {
	ctx := context.Background()

	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	goal := domain.Goal{
		ID:        uuid.NewString(),
		OutcomeID: uuid.NewString(),
		Title:     "Use public transport",
		Status:    domain.GoalStatusActive,
		Priority:  domain.GoalPriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Goals().Create(ctx, goal))

	var ids []string
	for i := 1; i <= 3; i++ {
		milestone := domain.Milestone{
			ID:         uuid.NewString(),
			GoalID:     goal.ID,
			Title:      "step",
			OrderIndex: i,
			Status:     domain.MilestoneStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		require.NoError(t, repo.Milestones().Create(ctx, milestone))
		ids = append(ids, milestone.ID)
	}

	err := repo.Milestones().Reorder(ctx, goal.ID, []string{ids[2], uuid.NewString(), ids[0]})
	require.Error(t, err)

	milestones, err := repo.Milestones().ListByGoal(ctx, goal.ID)
	require.NoError(t, err)
	require.Len(t, milestones, 3)
	for i, milestone := range milestones {
		require.Equal(t, i+1, milestone.OrderIndex)
		require.Equal(t, ids[i], milestone.ID)
	}
}

func startDatabase(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("careplatform"),
		postgrescontainer.WithUsername("care"),
		postgrescontainer.WithPassword("care"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))
	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func countOutbox(t *testing.T, ctx context.Context, pool *pgxpool.Pool, eventType string) int {
	t.Helper()
	var count int
	err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type=$1`, eventType).Scan(&count)
	require.NoError(t, err)
	return count
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../db/postgres/migrations/0001_init.up.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		path := resolvePath(t, rel)
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
