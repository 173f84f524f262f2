package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kadirpekel/taskforge/internal/task"
)

// FileRepository persists one JSON file per task under dir, writing via a
// temp-file-then-rename so a crash mid-write never leaves a corrupt
// snapshot — the same atomic-write discipline the teacher's checkpoint
// storage relies on its session backend to provide.
type FileRepository struct {
	mu  sync.Mutex
	dir string
}

// NewFile creates a FileRepository rooted at dir, creating it if absent.
func NewFile(dir string) (*FileRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("repository: create dir %s: %w", dir, err)
	}
	return &FileRepository{dir: dir}, nil
}

func (r *FileRepository) pathFor(taskID string) string {
	return filepath.Join(r.dir, taskID+".json")
}

func (r *FileRepository) Save(_ context.Context, w *task.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("repository: marshal workflow %s: %w", w.TaskID, err)
	}

	final := r.pathFor(w.TaskID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("repository: write temp file for %s: %w", w.TaskID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("repository: rename into place for %s: %w", w.TaskID, err)
	}
	return nil
}

func (r *FileRepository) Load(_ context.Context, taskID string) (*task.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.pathFor(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: read %s: %w", taskID, err)
	}
	var w task.Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("repository: unmarshal %s: %w", taskID, err)
	}
	return &w, nil
}

func (r *FileRepository) Delete(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.pathFor(taskID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("repository: delete %s: %w", taskID, err)
	}
	return nil
}

func (r *FileRepository) ListAll(_ context.Context) ([]*task.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("repository: list %s: %w", r.dir, err)
	}
	var out []*task.Workflow
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, e.Name()))
		if err != nil {
			continue
		}
		var w task.Workflow
		if err := json.Unmarshal(data, &w); err != nil {
			continue
		}
		out = append(out, &w)
	}
	return out, nil
}

func (r *FileRepository) Exists(_ context.Context, taskID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := os.Stat(r.pathFor(taskID))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("repository: stat %s: %w", taskID, err)
}
