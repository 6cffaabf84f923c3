// Package memory provides an in-process store.TaskStore. It is the engine
// used by tests and by the server when database.driver is "memory".
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/task-tracker/internal/domain"
	"github.com/phrazzld/task-tracker/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/phrazzld/task-tracker/internal/platform/memory")

// TaskStore keeps tasks in a mutex-guarded map. Values are cloned on the way
// in and out so callers never share memory with the store.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task
}

var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[uuid.UUID]*domain.Task),
	}
}

// GetByID retrieves a task by its ID.
func (s *TaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	_, span := tracer.Start(ctx, "memory.TaskStore.GetByID",
		trace.WithAttributes(attribute.String("task.id", id.String())),
	)
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		span.SetAttributes(attribute.Bool("task.found", false))
		return nil, store.ErrTaskNotFound
	}

	span.SetAttributes(attribute.Bool("task.found", true))
	return task.Clone(), nil
}

// GetAll returns every task, most recently updated first.
func (s *TaskStore) GetAll(ctx context.Context) ([]*domain.Task, error) {
	_, span := tracer.Start(ctx, "memory.TaskStore.GetAll")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*domain.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task.Clone())
	}
	sortTasks(tasks)

	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

// Add stores a copy of task with a fresh row version.
func (s *TaskStore) Add(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	_, span := tracer.Start(ctx, "memory.TaskStore.Add")
	defer span.End()

	stored := task.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.RowVersion = store.NewRowVersion()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[stored.ID]; exists {
		return nil, fmt.Errorf("%w: task %s", store.ErrDuplicate, stored.ID)
	}
	s.tasks[stored.ID] = stored

	span.SetAttributes(attribute.String("task.id", stored.ID.String()))
	return stored.Clone(), nil
}

// Update replaces the stored task when the caller's row version is current.
// The version comparison and the swap happen under the same lock.
func (s *TaskStore) Update(ctx context.Context, task *domain.Task) error {
	_, span := tracer.Start(ctx, "memory.TaskStore.Update",
		trace.WithAttributes(attribute.String("task.id", task.ID.String())),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[task.ID]
	if !ok || !bytes.Equal(current.RowVersion, task.RowVersion) {
		span.SetAttributes(attribute.Bool("task.conflict", true))
		return fmt.Errorf("%w: task %s", store.ErrConcurrencyConflict, task.ID)
	}

	next := task.Clone()
	next.CreatedAtUTC = current.CreatedAtUTC
	next.RowVersion = store.NewRowVersion()
	s.tasks[task.ID] = next

	task.RowVersion = bytes.Clone(next.RowVersion)
	task.CreatedAtUTC = current.CreatedAtUTC
	return nil
}

// Delete removes the task with task.ID if it is present.
func (s *TaskStore) Delete(ctx context.Context, task *domain.Task) error {
	_, span := tracer.Start(ctx, "memory.TaskStore.Delete",
		trace.WithAttributes(attribute.String("task.id", task.ID.String())),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, task.ID)
	return nil
}

// Search filters in process and returns the requested page.
func (s *TaskStore) Search(ctx context.Context, criteria store.SearchCriteria) ([]*domain.Task, error) {
	_, span := tracer.Start(ctx, "memory.TaskStore.Search")
	defer span.End()

	criteria = criteria.Normalize()

	s.mu.RLock()
	matched := make([]*domain.Task, 0)
	for _, task := range s.tasks {
		if criteria.Matches(task) {
			matched = append(matched, task.Clone())
		}
	}
	s.mu.RUnlock()

	sortTasks(matched)

	offset := criteria.Offset()
	if offset < 0 || offset >= len(matched) {
		return []*domain.Task{}, nil
	}
	end := len(matched)
	if remaining := end - offset; remaining > criteria.PageSize {
		end = offset + criteria.PageSize
	}

	page := matched[offset:end]
	span.SetAttributes(attribute.Int("task.count", len(page)))
	return page, nil
}

// Len returns the number of stored tasks.
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// sortTasks applies the search order: UpdatedAtUTC desc, Priority desc, ID.
func sortTasks(tasks []*domain.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if !a.UpdatedAtUTC.Equal(b.UpdatedAtUTC) {
			return a.UpdatedAtUTC.After(b.UpdatedAtUTC)
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
}
