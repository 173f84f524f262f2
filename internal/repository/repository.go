// Package repository persists Workflow state across the three pluggable
// backends named in SPEC_FULL.md §4.9, grounded on the teacher's
// pkg/checkpoint/{manager,storage}.go save/load/clear split and
// wrap-with-%w error style.
package repository

import (
	"context"
	"errors"

	"github.com/kadirpekel/taskforge/internal/task"
)

// ErrNotFound is returned by Load when taskID has no saved workflow.
var ErrNotFound = errors.New("repository: workflow not found")

// Repository persists and retrieves Workflow snapshots. Save must be
// durable before the caller releases its per-task lock (§4.9 "save before
// unlock"), so implementations must not buffer writes past Save
// returning.
type Repository interface {
	Save(ctx context.Context, w *task.Workflow) error
	Load(ctx context.Context, taskID string) (*task.Workflow, error)
	Delete(ctx context.Context, taskID string) error
	ListAll(ctx context.Context) ([]*task.Workflow, error)
	Exists(ctx context.Context, taskID string) (bool, error)
}
