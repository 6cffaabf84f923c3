// Package sqlite provides a store.TaskStore backed by an embedded SQLite
// database (modernc.org/sqlite, no cgo). It is the default engine.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/task-tracker/internal/domain"
	"github.com/phrazzld/task-tracker/internal/platform/logger"
	"github.com/phrazzld/task-tracker/internal/platform/sqlite/migrations"
	"github.com/phrazzld/task-tracker/internal/redact"
	"github.com/phrazzld/task-tracker/internal/store"
	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const taskColumns = `id, title, description, due_date, is_completed, priority, created_at, updated_at, row_version`

// foldFunc is a Unicode-aware lower(); the built-in one folds ASCII only.
const foldFunc = "task_fold"

func init() {
	msqlite.MustRegisterDeterministicScalarFunction(foldFunc, 1, foldCase)
}

func foldCase(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// TaskStore persists tasks in SQLite.
type TaskStore struct {
	db *sql.DB
}

var _ store.TaskStore = (*TaskStore)(nil)

func toMicros(value time.Time) int64 {
	return value.UTC().UnixMicro()
}

func fromMicros(value int64) time.Time {
	return time.UnixMicro(value).UTC()
}

// Open opens the database file at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*TaskStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows one writer; a single connection turns lock contention
	// into queueing inside database/sql.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &TaskStore{db: db}, nil
}

// Migrate applies every pending embedded migration.
func Migrate(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		logger.FromContext(ctx).Info("applied sqlite migration",
			slog.Int64("version", r.Source.Version),
			slog.Duration("duration", r.Duration))
	}
	return nil
}

// Close closes the database handle.
func (s *TaskStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PingContext reports whether the database is reachable.
func (s *TaskStore) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetByID retrieves a task by its ID.
func (s *TaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id.String())
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTaskNotFound
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to get task",
			slog.String("task_id", id.String()),
			redact.ErrorAttr(err))
		return nil, store.NewStoreError("task", "get", "failed to get task", err)
	}
	return task, nil
}

// GetAll returns every task in search order.
func (s *TaskStore) GetAll(ctx context.Context) ([]*domain.Task, error) {
	return s.query(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY updated_at DESC, priority DESC, id`)
}

// Add inserts task with a fresh row version.
func (s *TaskStore) Add(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	stored := task.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.RowVersion = store.NewRowVersion()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID.String(),
		stored.Title,
		nullString(stored.Description),
		nullMicros(stored.DueDate),
		stored.IsCompleted,
		int(stored.Priority),
		toMicros(stored.CreatedAtUTC),
		toMicros(stored.UpdatedAtUTC),
		stored.RowVersion,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: task %s", store.ErrDuplicate, stored.ID)
		}
		logger.FromContext(ctx).Error("failed to insert task",
			slog.String("task_id", stored.ID.String()),
			redact.ErrorAttr(err))
		return nil, store.NewStoreError("task", "add", "failed to insert task", err)
	}

	stored.CreatedAtUTC = fromMicros(toMicros(stored.CreatedAtUTC))
	stored.UpdatedAtUTC = fromMicros(toMicros(stored.UpdatedAtUTC))
	return stored, nil
}

// Update writes task if its row version is still current. The compare and
// the write are a single statement.
func (s *TaskStore) Update(ctx context.Context, task *domain.Task) error {
	next := store.NewRowVersion()
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks
		    SET title = ?, description = ?, due_date = ?, is_completed = ?,
		        priority = ?, updated_at = ?, row_version = ?
		  WHERE id = ? AND row_version = ?`,
		task.Title,
		nullString(task.Description),
		nullMicros(task.DueDate),
		task.IsCompleted,
		int(task.Priority),
		toMicros(task.UpdatedAtUTC),
		next,
		task.ID.String(),
		task.RowVersion,
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to update task",
			slog.String("task_id", task.ID.String()),
			redact.ErrorAttr(err))
		return store.NewStoreError("task", "update", "failed to update task", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("task", "update", "failed to read rows affected", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: task %s", store.ErrConcurrencyConflict, task.ID)
	}

	task.RowVersion = next
	return nil
}

// Delete removes the row with task.ID. A missing row is not an error.
func (s *TaskStore) Delete(ctx context.Context, task *domain.Task) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, task.ID.String()); err != nil {
		logger.FromContext(ctx).Error("failed to delete task",
			slog.String("task_id", task.ID.String()),
			redact.ErrorAttr(err))
		return store.NewStoreError("task", "delete", "failed to delete task", err)
	}
	return nil
}

// Search runs the filtered, ordered and paginated query.
func (s *TaskStore) Search(ctx context.Context, criteria store.SearchCriteria) ([]*domain.Task, error) {
	criteria = criteria.Normalize()

	var (
		where []string
		args  []any
	)
	if criteria.Keyword != "" {
		pattern := "%" + store.EscapeLike(strings.ToLower(criteria.Keyword)) + "%"
		where = append(where, `(`+foldFunc+`(title) LIKE ? ESCAPE '\' OR `+foldFunc+`(coalesce(description, '')) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if criteria.IsCompleted != nil {
		where = append(where, `is_completed = ?`)
		args = append(args, *criteria.IsCompleted)
	}
	if criteria.Priority != nil {
		where = append(where, `priority = ?`)
		args = append(args, int(*criteria.Priority))
	}
	if criteria.DueFromUTC != nil {
		where = append(where, `due_date >= ?`)
		args = append(args, toMicros(*criteria.DueFromUTC))
	}
	if criteria.DueToUTC != nil {
		where = append(where, `due_date <= ?`)
		args = append(args, toMicros(*criteria.DueToUTC))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY updated_at DESC, priority DESC, id LIMIT ? OFFSET ?`
	args = append(args, criteria.PageSize, criteria.Offset())

	return s.query(ctx, query, args...)
}

func (s *TaskStore) query(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContext(ctx).Error("failed to query tasks",
			redact.ErrorAttr(err))
		return nil, store.NewStoreError("task", "search", "failed to query tasks", err)
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*domain.Task, error) {
	var (
		id          string
		description sql.NullString
		dueDate     sql.NullInt64
		priority    int
		createdAt   int64
		updatedAt   int64
		task        domain.Task
	)
	if err := row.Scan(&id, &task.Title, &description, &dueDate, &task.IsCompleted,
		&priority, &createdAt, &updatedAt, &task.RowVersion); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse task id %q: %w", id, err)
	}
	task.ID = parsed
	task.Priority = domain.Priority(priority)
	task.CreatedAtUTC = fromMicros(createdAt)
	task.UpdatedAtUTC = fromMicros(updatedAt)
	if description.Valid {
		task.Description = &description.String
	}
	if dueDate.Valid {
		due := fromMicros(dueDate.Int64)
		task.DueDate = &due
	}
	return &task, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicros(*t), Valid: true}
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
