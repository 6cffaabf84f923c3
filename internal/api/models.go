package api

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/task-tracker/internal/domain"
	"github.com/phrazzld/task-tracker/internal/service"
	"github.com/phrazzld/task-tracker/internal/store"
)

// Query parameter names accepted by task searches.
const (
	QueryKeyword     = "keyword"
	QueryIsCompleted = "isCompleted"
	QueryPriority    = "priority"
	QueryDueFrom     = "dueFromUtc"
	QueryDueTo       = "dueToUtc"
	QueryPage        = "page"
	QueryPageSize    = "pageSize"
)

// CreateTaskRequest defines the payload for creating a task.
type CreateTaskRequest struct {
	Title       string           `json:"title"       validate:"required,max=200"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	DueDate     *time.Time       `json:"dueDate"`
	Priority    *domain.Priority `json:"priority"    validate:"required"`
}

// ToInput converts the request into service input.
func (r CreateTaskRequest) ToInput() service.CreateTaskInput {
	input := service.CreateTaskInput{
		Title:       r.Title,
		Description: r.Description,
		DueDate:     r.DueDate,
	}
	if r.Priority != nil {
		input.Priority = *r.Priority
	}
	return input
}

// UpdateTaskRequest defines the payload for replacing a task. RowVersion is
// the version the client last read, base64 encoded on the wire.
type UpdateTaskRequest struct {
	ID          uuid.UUID        `json:"id"          validate:"required"`
	Title       string           `json:"title"       validate:"required,max=200"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	DueDate     *time.Time       `json:"dueDate"`
	Priority    *domain.Priority `json:"priority"    validate:"required"`
	IsCompleted bool             `json:"isCompleted"`
	RowVersion  []byte           `json:"rowVersion"  validate:"required,len=16"`
}

// ToInput converts the request into service input.
func (r UpdateTaskRequest) ToInput() service.UpdateTaskInput {
	input := service.UpdateTaskInput{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		DueDate:     r.DueDate,
		IsCompleted: r.IsCompleted,
		RowVersion:  r.RowVersion,
	}
	if r.Priority != nil {
		input.Priority = *r.Priority
	}
	return input
}

// SearchTasksRequest holds the parsed query of a task search.
type SearchTasksRequest struct {
	Keyword     string           `json:"keyword"     validate:"max=200"`
	IsCompleted *bool            `json:"isCompleted"`
	Priority    *domain.Priority `json:"priority"`
	DueFromUTC  *time.Time       `json:"dueFromUtc"`
	DueToUTC    *time.Time       `json:"dueToUtc"`
	Page        int              `json:"page"        validate:"min=1"`
	PageSize    int              `json:"pageSize"    validate:"min=1,max=100"`
}

// ToQuery converts the request into a service search query.
func (r SearchTasksRequest) ToQuery() service.SearchQuery {
	return service.SearchQuery{
		Keyword:     r.Keyword,
		IsCompleted: r.IsCompleted,
		Priority:    r.Priority,
		DueFromUTC:  r.DueFromUTC,
		DueToUTC:    r.DueToUTC,
		Page:        r.Page,
		PageSize:    r.PageSize,
	}
}

// ParseSearchTasksRequest reads and validates search parameters. Absent
// parameters take their defaults; malformed ones are validation errors.
func ParseSearchTasksRequest(values url.Values) (SearchTasksRequest, error) {
	req := SearchTasksRequest{
		Keyword:  values.Get(QueryKeyword),
		Page:     store.DefaultPage,
		PageSize: store.DefaultPageSize,
	}

	if raw := strings.TrimSpace(values.Get(QueryIsCompleted)); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return req, domain.NewValidationError(QueryIsCompleted, "must be true or false", domain.ErrValidation)
		}
		req.IsCompleted = &v
	}
	if raw := strings.TrimSpace(values.Get(QueryPriority)); raw != "" {
		p, err := domain.ParsePriority(raw)
		if err != nil {
			return req, domain.NewValidationError(QueryPriority, "must be Low, Medium or High", err)
		}
		req.Priority = &p
	}

	var err error
	if req.DueFromUTC, err = parseTimeParam(values, QueryDueFrom); err != nil {
		return req, err
	}
	if req.DueToUTC, err = parseTimeParam(values, QueryDueTo); err != nil {
		return req, err
	}
	if req.Page, err = parseIntParam(values, QueryPage, req.Page); err != nil {
		return req, err
	}
	if req.PageSize, err = parseIntParam(values, QueryPageSize, req.PageSize); err != nil {
		return req, err
	}

	if err := validateRequest(req); err != nil {
		return req, err
	}
	return req, nil
}

// Layouts accepted for date parameters, most specific first. Values without
// a zone are UTC.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", time.DateOnly}

// ParseTime parses a date parameter in any of the accepted layouts.
func ParseTime(raw string) (time.Time, error) {
	var firstErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func parseTimeParam(values url.Values, name string) (*time.Time, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := ParseTime(raw)
	if err != nil {
		return nil, domain.NewValidationError(name, "must be an RFC 3339 timestamp", domain.ErrValidation)
	}
	return &t, nil
}

func parseIntParam(values url.Values, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be an integer", domain.ErrValidation)
	}
	return n, nil
}

// TaskResponse is the wire form of a task.
type TaskResponse struct {
	ID           uuid.UUID       `json:"id"`
	Title        string          `json:"title"`
	Description  *string         `json:"description"`
	DueDate      *time.Time      `json:"dueDate"`
	IsCompleted  bool            `json:"isCompleted"`
	Priority     domain.Priority `json:"priority"`
	CreatedAtUTC time.Time       `json:"createdAtUtc"`
	UpdatedAtUTC time.Time       `json:"updatedAtUtc"`
	RowVersion   []byte          `json:"rowVersion"`
}

func taskToResponse(v service.TaskView) TaskResponse {
	return TaskResponse{
		ID:           v.ID,
		Title:        v.Title,
		Description:  v.Description,
		DueDate:      v.DueDate,
		IsCompleted:  v.IsCompleted,
		Priority:     v.Priority,
		CreatedAtUTC: v.CreatedAtUTC,
		UpdatedAtUTC: v.UpdatedAtUTC,
		RowVersion:   v.RowVersion,
	}
}

func tasksToResponse(views []service.TaskView) []TaskResponse {
	out := make([]TaskResponse, 0, len(views))
	for _, v := range views {
		out = append(out, taskToResponse(v))
	}
	return out
}
