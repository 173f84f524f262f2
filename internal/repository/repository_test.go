package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/taskforge/internal/task"
)

// backends returns one instance of each Repository implementation, each
// sharing the assertion suite below. sqlite uses a throwaway file DSN
// since :memory: would vanish between Load/ListAll calls on a fresh
// connection.
func backends(t *testing.T) map[string]Repository {
	t.Helper()

	mem := NewMemory()

	fileRepo, err := NewFile(t.TempDir())
	require.NoError(t, err)

	sqliteRepo, err := NewSQLite(filepath.Join(t.TempDir(), "workflows.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteRepo.Close() })

	return map[string]Repository{
		"memory": mem,
		"file":   fileRepo,
		"sqlite": sqliteRepo,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			w := task.NewWorkflow("t-1", "book a flight")
			w.AppendStep(&task.Step{ID: "s1", AgentID: "booking", Role: task.RoleWorker})

			require.NoError(t, repo.Save(ctx, w))

			got, err := repo.Load(ctx, "t-1")
			require.NoError(t, err)
			assert.Equal(t, "t-1", got.TaskID)
			assert.Equal(t, "book a flight", got.OriginalRequest)
			require.Len(t, got.Steps, 1)
			assert.Equal(t, "booking", got.Steps[0].AgentID)
		})
	}
}

func TestLoadMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.Load(ctx, "does-not-exist")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDeleteRemovesWorkflow(t *testing.T) {
	ctx := context.Background()
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			w := task.NewWorkflow("t-del", "cancel a ticket")
			require.NoError(t, repo.Save(ctx, w))

			require.NoError(t, repo.Delete(ctx, "t-del"))

			exists, err := repo.Exists(ctx, "t-del")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestListAllReturnsEverySavedWorkflow(t *testing.T) {
	ctx := context.Background()
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.Save(ctx, task.NewWorkflow("a", "x")))
			require.NoError(t, repo.Save(ctx, task.NewWorkflow("b", "y")))

			all, err := repo.ListAll(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)
		})
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	ctx := context.Background()
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			w := task.NewWorkflow("t-1", "first version")
			require.NoError(t, repo.Save(ctx, w))

			w.Phase = task.PhaseCompleted
			require.NoError(t, repo.Save(ctx, w))

			got, err := repo.Load(ctx, "t-1")
			require.NoError(t, err)
			assert.Equal(t, task.PhaseCompleted, got.Phase)
		})
	}
}
