package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/task-tracker/internal/cache"
	"github.com/phrazzld/task-tracker/internal/domain"
	"github.com/phrazzld/task-tracker/internal/platform/logger"
	"github.com/phrazzld/task-tracker/internal/platform/telemetry"
	"github.com/phrazzld/task-tracker/internal/redact"
	"github.com/phrazzld/task-tracker/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultCacheTTL applies to item and search entries unless overridden.
const DefaultCacheTTL = time.Hour

var tracer = otel.Tracer("github.com/phrazzld/task-tracker/internal/service")

// TaskView is the caller-facing projection of a task.
type TaskView struct {
	ID           uuid.UUID
	Title        string
	Description  *string
	DueDate      *time.Time
	IsCompleted  bool
	Priority     domain.Priority
	CreatedAtUTC time.Time
	UpdatedAtUTC time.Time
	RowVersion   []byte
}

// CreateTaskInput carries the caller-supplied fields of a new task.
type CreateTaskInput struct {
	Title       string
	Description *string
	DueDate     *time.Time
	Priority    domain.Priority
}

// UpdateTaskInput carries a full replacement of a task's mutable fields and
// the row version the caller last observed.
type UpdateTaskInput struct {
	ID          uuid.UUID
	Title       string
	Description *string
	DueDate     *time.Time
	Priority    domain.Priority
	IsCompleted bool
	RowVersion  []byte
}

// SearchQuery filters and pages a task search. Nil pointers mean no filter;
// Page and PageSize below 1 fall back to store defaults.
type SearchQuery struct {
	Keyword     string
	IsCompleted *bool
	Priority    *domain.Priority
	DueFromUTC  *time.Time
	DueToUTC    *time.Time
	Page        int
	PageSize    int
}

func (q SearchQuery) criteria() store.SearchCriteria {
	return store.SearchCriteria{
		Keyword:     q.Keyword,
		IsCompleted: q.IsCompleted,
		Priority:    q.Priority,
		DueFromUTC:  q.DueFromUTC,
		DueToUTC:    q.DueToUTC,
		Page:        q.Page,
		PageSize:    q.PageSize,
	}.Normalize()
}

// TaskService provides task operations over a store with a read-through cache.
type TaskService interface {
	// Create persists a new task and invalidates cached searches.
	Create(ctx context.Context, input CreateTaskInput) (TaskView, error)

	// GetByID returns the task, or ErrTaskNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (TaskView, error)

	// Update applies input if input.RowVersion is current. Returns
	// ErrTaskNotFound or ErrConcurrencyConflict.
	Update(ctx context.Context, input UpdateTaskInput) (TaskView, error)

	// Delete removes the task, or returns ErrTaskNotFound.
	Delete(ctx context.Context, id uuid.UUID) error

	// Search returns one page of matching tasks.
	Search(ctx context.Context, query SearchQuery) ([]TaskView, error)
}

// Option customizes a task service.
type Option func(*taskServiceImpl)

// WithCacheTTLs sets the item and search entry lifetimes.
func WithCacheTTLs(item, search time.Duration) Option {
	return func(s *taskServiceImpl) {
		if item > 0 {
			s.itemTTL = item
		}
		if search > 0 {
			s.searchTTL = search
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *taskServiceImpl) {
		if now != nil {
			s.now = now
		}
	}
}

// taskServiceImpl implements the TaskService interface
type taskServiceImpl struct {
	store     store.TaskStore
	cache     cache.Cache
	metrics   *telemetry.CacheMetrics
	logger    *slog.Logger
	itemTTL   time.Duration
	searchTTL time.Duration
	now       func() time.Time
}

// NewTaskService creates a new TaskService.
// It returns an error if the store is nil. A nil cache disables caching and
// nil metrics record nothing.
func NewTaskService(
	taskStore store.TaskStore,
	taskCache cache.Cache,
	metrics *telemetry.CacheMetrics,
	logger *slog.Logger,
	opts ...Option,
) (TaskService, error) {
	if taskStore == nil {
		return nil, domain.NewValidationError("taskStore", "cannot be nil", domain.ErrValidation)
	}
	if taskCache == nil {
		taskCache = cache.Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &taskServiceImpl{
		store:     taskStore,
		cache:     taskCache,
		metrics:   metrics,
		logger:    logger.With(slog.String("component", "task_service")),
		itemTTL:   DefaultCacheTTL,
		searchTTL: DefaultCacheTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// timestamp is the current UTC time at the precision every store keeps.
func (s *taskServiceImpl) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Create implements TaskService.Create
func (s *taskServiceImpl) Create(ctx context.Context, input CreateTaskInput) (view TaskView, err error) {
	ctx, span := tracer.Start(ctx, "TaskService.Create")
	defer func() { endSpan(span, err) }()

	log := logger.FromContextOrDefault(ctx, s.logger)

	now := s.timestamp()
	task := &domain.Task{
		Title:        domain.NormalizeTitle(input.Title),
		Description:  domain.NormalizeDescription(input.Description),
		DueDate:      normalizeDue(input.DueDate),
		IsCompleted:  false,
		Priority:     input.Priority,
		CreatedAtUTC: now,
		UpdatedAtUTC: now,
	}
	if err := task.Validate(); err != nil {
		return TaskView{}, err
	}

	added, err := s.store.Add(ctx, task)
	if err != nil {
		log.Error("failed to add task", redact.ErrorAttr(err))
		return TaskView{}, NewServiceError("task", "create", err)
	}
	span.SetAttributes(attribute.String("task.id", added.ID.String()))

	// A new task can appear in any search, but no item entry can exist yet.
	s.invalidateSearches(ctx)

	log.Debug("task created", slog.String("task_id", added.ID.String()))
	return project(added), nil
}

// GetByID implements TaskService.GetByID
func (s *taskServiceImpl) GetByID(ctx context.Context, id uuid.UUID) (view TaskView, err error) {
	ctx, span := tracer.Start(ctx, "TaskService.GetByID",
		trace.WithAttributes(attribute.String("task.id", id.String())),
	)
	defer func() { endSpan(span, err) }()

	key := ItemKey(id)
	if cached, ok := s.cachedItem(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	task, err := s.load(ctx, id, "get")
	if err != nil {
		return TaskView{}, err
	}

	view = project(task)
	s.setCache(ctx, telemetry.CacheNamespaceItem, key, cloneView(view), s.itemTTL)
	return view, nil
}

// Update implements TaskService.Update
func (s *taskServiceImpl) Update(ctx context.Context, input UpdateTaskInput) (view TaskView, err error) {
	ctx, span := tracer.Start(ctx, "TaskService.Update",
		trace.WithAttributes(attribute.String("task.id", input.ID.String())),
	)
	defer func() { endSpan(span, err) }()

	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := s.load(ctx, input.ID, "update")
	if err != nil {
		return TaskView{}, err
	}

	task.Title = domain.NormalizeTitle(input.Title)
	task.Description = domain.NormalizeDescription(input.Description)
	task.DueDate = normalizeDue(input.DueDate)
	task.Priority = input.Priority
	task.IsCompleted = input.IsCompleted
	task.UpdatedAtUTC = s.timestamp()
	// The store compares against what the caller saw, not what was loaded.
	task.RowVersion = append([]byte(nil), input.RowVersion...)

	if err := task.Validate(); err != nil {
		return TaskView{}, err
	}

	if err := s.store.Update(ctx, task); err != nil {
		if errors.Is(err, store.ErrConcurrencyConflict) {
			log.Info("task update rejected on stale row version",
				slog.String("task_id", input.ID.String()))
			return TaskView{}, err
		}
		log.Error("failed to update task",
			slog.String("task_id", input.ID.String()),
			redact.ErrorAttr(err))
		return TaskView{}, NewServiceError("task", "update", err)
	}

	s.removeCache(ctx, telemetry.CacheNamespaceItem, ItemKey(task.ID))
	s.invalidateSearches(ctx)

	log.Debug("task updated", slog.String("task_id", task.ID.String()))
	return project(task), nil
}

// Delete implements TaskService.Delete
func (s *taskServiceImpl) Delete(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := tracer.Start(ctx, "TaskService.Delete",
		trace.WithAttributes(attribute.String("task.id", id.String())),
	)
	defer func() { endSpan(span, err) }()

	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := s.load(ctx, id, "delete")
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, task); err != nil {
		log.Error("failed to delete task",
			slog.String("task_id", id.String()),
			redact.ErrorAttr(err))
		return NewServiceError("task", "delete", err)
	}

	s.removeCache(ctx, telemetry.CacheNamespaceItem, ItemKey(id))
	s.invalidateSearches(ctx)

	log.Debug("task deleted", slog.String("task_id", id.String()))
	return nil
}

// Search implements TaskService.Search
func (s *taskServiceImpl) Search(ctx context.Context, query SearchQuery) (views []TaskView, err error) {
	ctx, span := tracer.Start(ctx, "TaskService.Search")
	defer func() { endSpan(span, err) }()

	log := logger.FromContextOrDefault(ctx, s.logger)

	criteria := query.criteria()
	key := SearchKey(criteria)
	span.SetAttributes(
		attribute.Int("search.page", criteria.Page),
		attribute.Int("search.page_size", criteria.PageSize),
	)

	if cached, ok := s.cachedSearch(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	tasks, err := s.store.Search(ctx, criteria)
	if err != nil {
		log.Error("failed to search tasks", redact.ErrorAttr(err))
		return nil, NewServiceError("task", "search", err)
	}

	views = make([]TaskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, project(task))
	}
	s.setCache(ctx, telemetry.CacheNamespaceSearch, key, cloneViews(views), s.searchTTL)

	span.SetAttributes(attribute.Int("search.results", len(views)))
	return views, nil
}

// load reads a task from the store, mapping absence to ErrTaskNotFound.
func (s *taskServiceImpl) load(ctx context.Context, id uuid.UUID, operation string) (*domain.Task, error) {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrTaskNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to load task",
			slog.String("task_id", id.String()),
			slog.String("operation", operation),
			redact.ErrorAttr(err))
		return nil, NewServiceError("task", operation, err)
	}
	return task, nil
}

func (s *taskServiceImpl) cachedItem(ctx context.Context, key string) (TaskView, bool) {
	value, ok := s.getCache(ctx, telemetry.CacheNamespaceItem, key)
	if !ok {
		return TaskView{}, false
	}
	view, ok := value.(TaskView)
	if !ok {
		s.discardMalformed(ctx, telemetry.CacheNamespaceItem, key, value)
		return TaskView{}, false
	}
	return cloneView(view), true
}

func (s *taskServiceImpl) cachedSearch(ctx context.Context, key string) ([]TaskView, bool) {
	value, ok := s.getCache(ctx, telemetry.CacheNamespaceSearch, key)
	if !ok {
		return nil, false
	}
	views, ok := value.([]TaskView)
	if !ok {
		s.discardMalformed(ctx, telemetry.CacheNamespaceSearch, key, value)
		return nil, false
	}
	return cloneViews(views), true
}

// getCache treats every cache failure as a miss; failures are logged and
// counted separately from misses.
func (s *taskServiceImpl) getCache(ctx context.Context, namespace, key string) (any, bool) {
	value, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.cacheFailure(ctx, namespace, "get", key, err)
		return nil, false
	}
	if !ok {
		s.metrics.Miss(ctx, namespace)
		return nil, false
	}
	s.metrics.Hit(ctx, namespace)
	return value, true
}

func (s *taskServiceImpl) setCache(ctx context.Context, namespace, key string, value any, ttl time.Duration) {
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.cacheFailure(ctx, namespace, "set", key, err)
	}
}

func (s *taskServiceImpl) removeCache(ctx context.Context, namespace, key string) {
	if err := s.cache.Remove(ctx, key); err != nil {
		s.cacheFailure(ctx, namespace, "remove", key, err)
	}
}

func (s *taskServiceImpl) invalidateSearches(ctx context.Context) {
	if err := s.cache.RemoveByPrefix(ctx, SearchKeyPrefix); err != nil {
		s.cacheFailure(ctx, telemetry.CacheNamespaceSearch, "remove_prefix", SearchKeyPrefix, err)
	}
}

func (s *taskServiceImpl) discardMalformed(ctx context.Context, namespace, key string, value any) {
	s.cacheFailure(ctx, namespace, "decode", key, fmt.Errorf("unexpected cached type %T", value))
	s.removeCache(ctx, namespace, key)
}

func (s *taskServiceImpl) cacheFailure(ctx context.Context, namespace, operation, key string, err error) {
	s.metrics.Error(ctx, namespace)
	logger.FromContextOrDefault(ctx, s.logger).Warn("task cache operation failed",
		slog.String("cache_namespace", namespace),
		slog.String("cache_operation", operation),
		slog.String("cache_key", key),
		redact.ErrorAttr(err))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errorKind(err))
	}
	span.End()
}

// errorKind gives span statuses a bounded vocabulary.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		return "not_found"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	default:
		return "internal"
	}
}

func project(task *domain.Task) TaskView {
	return TaskView{
		ID:           task.ID,
		Title:        task.Title,
		Description:  domain.CloneString(task.Description),
		DueDate:      domain.CloneTime(task.DueDate),
		IsCompleted:  task.IsCompleted,
		Priority:     task.Priority,
		CreatedAtUTC: task.CreatedAtUTC,
		UpdatedAtUTC: task.UpdatedAtUTC,
		RowVersion:   append([]byte(nil), task.RowVersion...),
	}
}

func cloneView(v TaskView) TaskView {
	v.Description = domain.CloneString(v.Description)
	v.DueDate = domain.CloneTime(v.DueDate)
	v.RowVersion = append([]byte(nil), v.RowVersion...)
	return v
}

func cloneViews(views []TaskView) []TaskView {
	out := make([]TaskView, len(views))
	for i, v := range views {
		out[i] = cloneView(v)
	}
	return out
}

// normalizeDue copies a due date as UTC at store precision.
func normalizeDue(due *time.Time) *time.Time {
	if due == nil {
		return nil
	}
	v := due.UTC().Truncate(time.Microsecond)
	return &v
}
