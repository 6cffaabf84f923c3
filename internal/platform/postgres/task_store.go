package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/task-tracker/internal/domain"
	"github.com/phrazzld/task-tracker/internal/platform/logger"
	"github.com/phrazzld/task-tracker/internal/redact"
	"github.com/phrazzld/task-tracker/internal/store"
)

const taskColumns = `id, title, description, due_date, is_completed, priority, created_at, updated_at, row_version`

// PostgresTaskStore implements store.TaskStore using PostgreSQL.
type PostgresTaskStore struct {
	db store.DBTX
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a new PostgresTaskStore. db may be a pool or
// a transaction.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

// GetByID retrieves a task by its ID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		mapped := MapError(err)
		if store.IsNotFoundError(mapped) {
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task",
			slog.String("task_id", id.String()),
			redact.ErrorAttr(err))
		return nil, store.NewStoreError("task", "get", "failed to get task", mapped)
	}
	return task, nil
}

// GetAll returns every task in search order.
func (s *PostgresTaskStore) GetAll(ctx context.Context) ([]*domain.Task, error) {
	return s.query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY updated_at DESC, priority DESC, id`)
}

// Add inserts task with a fresh row version.
func (s *PostgresTaskStore) Add(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	stored := task.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.RowVersion = store.NewRowVersion()
	// timestamptz keeps microseconds.
	stored.CreatedAtUTC = stored.CreatedAtUTC.UTC().Truncate(time.Microsecond)
	stored.UpdatedAtUTC = stored.UpdatedAtUTC.UTC().Truncate(time.Microsecond)

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		stored.ID,
		stored.Title,
		stored.Description,
		utcPtr(stored.DueDate),
		stored.IsCompleted,
		int16(stored.Priority),
		stored.CreatedAtUTC,
		stored.UpdatedAtUTC,
		stored.RowVersion,
	)
	if err != nil {
		log.Error("failed to insert task",
			slog.String("task_id", stored.ID.String()),
			redact.ErrorAttr(err))
		return nil, store.NewStoreError("task", "add", "failed to insert task", MapError(err))
	}

	if stored.DueDate != nil {
		due := stored.DueDate.UTC().Truncate(time.Microsecond)
		stored.DueDate = &due
	}
	return stored, nil
}

// Update writes task if its row version is still current.
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	next := store.NewRowVersion()
	query := `
		UPDATE tasks
		SET title = $1, description = $2, due_date = $3, is_completed = $4,
		    priority = $5, updated_at = $6, row_version = $7
		WHERE id = $8 AND row_version = $9
	`
	result, err := s.db.ExecContext(ctx, query,
		task.Title,
		task.Description,
		utcPtr(task.DueDate),
		task.IsCompleted,
		int16(task.Priority),
		task.UpdatedAtUTC.UTC(),
		next,
		task.ID,
		task.RowVersion,
	)
	if err != nil {
		log.Error("failed to update task",
			slog.String("task_id", task.ID.String()),
			redact.ErrorAttr(err))
		return store.NewStoreError("task", "update", "failed to update task", MapError(err))
	}

	if err := checkVersionedUpdate(result); err != nil {
		if store.IsConcurrencyConflict(err) {
			return fmt.Errorf("%w: task %s", err, task.ID)
		}
		log.Error("failed to read rows affected",
			slog.String("task_id", task.ID.String()),
			redact.ErrorAttr(err))
		return store.NewStoreError("task", "update", "failed to read rows affected", err)
	}

	task.RowVersion = next
	return nil
}

// Delete removes the task row. A missing row is not an error.
func (s *PostgresTaskStore) Delete(ctx context.Context, task *domain.Task) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, task.ID); err != nil {
		logger.FromContext(ctx).Error("failed to delete task",
			slog.String("task_id", task.ID.String()),
			redact.ErrorAttr(err))
		return store.NewStoreError("task", "delete", "failed to delete task", MapError(err))
	}
	return nil
}

// Search runs the filtered, ordered and paginated query.
func (s *PostgresTaskStore) Search(ctx context.Context, criteria store.SearchCriteria) ([]*domain.Task, error) {
	criteria = criteria.Normalize()

	var (
		where []string
		args  []any
	)
	param := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if criteria.Keyword != "" {
		p := param("%" + store.EscapeLike(criteria.Keyword) + "%")
		where = append(where, `(title ILIKE `+p+` ESCAPE '\' OR description ILIKE `+p+` ESCAPE '\')`)
	}
	if criteria.IsCompleted != nil {
		where = append(where, `is_completed = `+param(*criteria.IsCompleted))
	}
	if criteria.Priority != nil {
		where = append(where, `priority = `+param(int16(*criteria.Priority)))
	}
	if criteria.DueFromUTC != nil {
		where = append(where, `due_date >= `+param(*criteria.DueFromUTC))
	}
	if criteria.DueToUTC != nil {
		where = append(where, `due_date <= `+param(*criteria.DueToUTC))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY updated_at DESC, priority DESC, id`
	query += ` LIMIT ` + param(criteria.PageSize) + ` OFFSET ` + param(criteria.Offset())

	return s.query(ctx, query, args...)
}

func (s *PostgresTaskStore) query(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", redact.ErrorAttr(err))
		return nil, store.NewStoreError("task", "search", "failed to query tasks", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan task row", redact.ErrorAttr(err))
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating task rows", redact.ErrorAttr(err))
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task     domain.Task
		priority int16
	)
	if err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.DueDate,
		&task.IsCompleted,
		&priority,
		&task.CreatedAtUTC,
		&task.UpdatedAtUTC,
		&task.RowVersion,
	); err != nil {
		return nil, err
	}

	task.Priority = domain.Priority(priority)
	task.CreatedAtUTC = task.CreatedAtUTC.UTC()
	task.UpdatedAtUTC = task.UpdatedAtUTC.UTC()
	task.DueDate = utcPtr(task.DueDate)
	return &task, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
