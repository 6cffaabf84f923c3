package store

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/task-tracker/internal/domain"
)

// Paging defaults applied by SearchCriteria.Normalize.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// RowVersionSize is the length in bytes of every row version token.
const RowVersionSize = 16

// TaskRepository is the keyed CRUD capability over tasks.
type TaskRepository interface {
	// GetByID retrieves a task by its ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// GetAll returns every task in the store's natural order.
	GetAll(ctx context.Context) ([]*domain.Task, error)

	// Add persists a new task. It assigns an ID when the task has none and
	// always assigns a fresh RowVersion. The returned task is the persisted
	// representation.
	Add(ctx context.Context, task *domain.Task) (*domain.Task, error)

	// Update persists the task's fields if task.RowVersion equals the stored
	// version. Returns ErrConcurrencyConflict otherwise. On success the new
	// version is written back into task.RowVersion.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes the task with task.ID. Deleting a missing row is not an error.
	Delete(ctx context.Context, task *domain.Task) error
}

// TaskSearcher is the filtered, sorted and paginated scan capability.
type TaskSearcher interface {
	// Search returns the page of tasks matching criteria, ordered by
	// UpdatedAtUTC descending and Priority descending. Pages past the end
	// yield an empty slice.
	Search(ctx context.Context, criteria SearchCriteria) ([]*domain.Task, error)
}

// TaskStore is implemented by every storage engine.
type TaskStore interface {
	TaskRepository
	TaskSearcher
}

// SearchCriteria filters a task search. Nil pointers mean "no filter".
type SearchCriteria struct {
	Keyword     string
	IsCompleted *bool
	Priority    *domain.Priority
	DueFromUTC  *time.Time
	DueToUTC    *time.Time
	Page        int
	PageSize    int
}

// Normalize trims the keyword, converts bounds to UTC, applies paging
// defaults and caps PageSize at MaxPageSize.
func (c SearchCriteria) Normalize() SearchCriteria {
	c.Keyword = strings.TrimSpace(c.Keyword)
	if c.DueFromUTC != nil {
		from := c.DueFromUTC.UTC()
		c.DueFromUTC = &from
	}
	if c.DueToUTC != nil {
		to := c.DueToUTC.UTC()
		c.DueToUTC = &to
	}
	if c.Page < 1 {
		c.Page = DefaultPage
	}
	if c.PageSize < 1 {
		c.PageSize = DefaultPageSize
	}
	if c.PageSize > MaxPageSize {
		c.PageSize = MaxPageSize
	}
	return c
}

// Offset is the number of rows skipped before the current page. It
// saturates at math.MaxInt, so a page past any possible row count is empty
// rather than wrapping around to a negative offset.
func (c SearchCriteria) Offset() int {
	c = c.Normalize()
	if c.Page-1 > math.MaxInt/c.PageSize {
		return math.MaxInt
	}
	return (c.Page - 1) * c.PageSize
}

// Matches reports whether task satisfies every filter in c. It is used by
// engines that filter in process.
func (c SearchCriteria) Matches(task *domain.Task) bool {
	if c.Keyword != "" {
		keyword := strings.ToLower(strings.TrimSpace(c.Keyword))
		inTitle := strings.Contains(strings.ToLower(task.Title), keyword)
		inDescription := task.Description != nil &&
			strings.Contains(strings.ToLower(*task.Description), keyword)
		if !inTitle && !inDescription {
			return false
		}
	}
	if c.IsCompleted != nil && task.IsCompleted != *c.IsCompleted {
		return false
	}
	if c.Priority != nil && task.Priority != *c.Priority {
		return false
	}
	if c.DueFromUTC != nil && (task.DueDate == nil || task.DueDate.Before(*c.DueFromUTC)) {
		return false
	}
	if c.DueToUTC != nil && (task.DueDate == nil || task.DueDate.After(*c.DueToUTC)) {
		return false
	}
	return true
}

// NewRowVersion returns a fresh opaque version token.
func NewRowVersion() []byte {
	v := uuid.New()
	return v[:]
}

// EscapeLike escapes the LIKE wildcards in s so it matches literally when
// used with ESCAPE '\'.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
