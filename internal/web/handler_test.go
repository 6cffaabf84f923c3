package web

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/task-tracker/internal/cache"
	"github.com/phrazzld/task-tracker/internal/domain"
	"github.com/phrazzld/task-tracker/internal/platform/memory"
	"github.com/phrazzld/task-tracker/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc    service.TaskService
	router http.Handler
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	svc, err := service.NewTaskService(memory.NewTaskStore(), cache.Disabled{}, nil, slog.Default())
	require.NoError(t, err)
	return fixture{svc: svc, router: NewHandler(svc, slog.Default()).Routes()}
}

func (f fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func (f fixture) post(t *testing.T, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f fixture) create(t *testing.T, title string) service.TaskView {
	t.Helper()

	view, err := f.svc.Create(context.Background(), service.CreateTaskInput{Title: title, Priority: domain.PriorityMedium})
	require.NoError(t, err)
	return view
}

func TestIndex(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Buy milk")
	f.create(t, "Write <report>")

	w := f.get(t, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "Buy milk")
	assert.Contains(t, body, "Write &lt;report&gt;")

	w = f.get(t, "/?keyword=milk")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Buy milk")
	assert.NotContains(t, w.Body.String(), "report")
}

func TestIndexInvalidQueryShowsErrors(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Hidden")

	w := f.get(t, "/?page=zero")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "page must be an integer")
	assert.Contains(t, body, "No tasks found.")
	assert.NotContains(t, body, "Hidden")
}

func TestIndexPaging(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.create(t, "Task")
	}

	w := f.get(t, "/?pageSize=2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "page=2")

	w = f.get(t, "/?pageSize=2&page=2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Previous")
	assert.NotContains(t, w.Body.String(), "Next")
}

func TestCreateTask(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/new")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `action="/tasks/new"`)

	w = f.post(t, "/new", url.Values{
		"title":       {"  Plan trip "},
		"description": {"  "},
		"dueDate":     {"2025-07-01T10:30"},
		"priority":    {"High"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	assert.Equal(t, "/tasks", w.Header().Get("Location"))

	views, err := f.svc.Search(context.Background(), service.SearchQuery{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Plan trip", views[0].Title)
	assert.Nil(t, views[0].Description)
	assert.Equal(t, domain.PriorityHigh, views[0].Priority)
	require.NotNil(t, views[0].DueDate)
	assert.Equal(t, "2025-07-01T10:30:00Z", views[0].DueDate.Format("2006-01-02T15:04:05Z07:00"))
}

func TestCreateTaskInvalidRerendersForm(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		form    url.Values
		message string
	}{
		{"missing title", url.Values{"priority": {"Low"}}, "Title is required"},
		{"blank title", url.Values{"title": {"   "}, "priority": {"Low"}}, "Title is required"},
		{"long title", url.Values{"title": {strings.Repeat("t", 201)}, "priority": {"Low"}}, "at most 200"},
		{"bad priority", url.Values{"title": {"x"}, "priority": {"Urgent"}}, "Priority must be"},
		{"bad due date", url.Values{"title": {"x"}, "priority": {"Low"}, "dueDate": {"soon"}}, "Due date is not a valid date"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := f.post(t, "/new", tc.form)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), tc.message)
			assert.Contains(t, w.Body.String(), `<form method="post"`)
		})
	}

	views, err := f.svc.Search(context.Background(), service.SearchQuery{})
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestDetails(t *testing.T) {
	f := newFixture(t)
	view := f.create(t, "Inspect me")

	w := f.get(t, "/"+view.ID.String())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Inspect me")
	assert.Contains(t, w.Body.String(), "/tasks/"+view.ID.String()+"/edit")

	w = f.get(t, "/"+uuid.New().String())
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Task not found")

	w = f.get(t, "/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEditTask(t *testing.T) {
	f := newFixture(t)
	view := f.create(t, "Draft")
	version := base64.StdEncoding.EncodeToString(view.RowVersion)

	w := f.get(t, "/"+view.ID.String()+"/edit")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="rowVersion"`)
	assert.Contains(t, w.Body.String(), `value="Draft"`)

	form := url.Values{
		"id":          {view.ID.String()},
		"rowVersion":  {version},
		"title":       {"Final"},
		"priority":    {"Low"},
		"isCompleted": {"true"},
	}
	w = f.post(t, "/"+view.ID.String()+"/edit", form)
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	assert.Equal(t, "/tasks/"+view.ID.String(), w.Header().Get("Location"))

	updated, err := f.svc.GetByID(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, "Final", updated.Title)
	assert.True(t, updated.IsCompleted)

	// Replaying the same form carries a stale version.
	w = f.post(t, "/"+view.ID.String()+"/edit", form)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "modified by another request")
}

func TestEditTaskRejectsMismatchedID(t *testing.T) {
	f := newFixture(t)
	view := f.create(t, "Mine")

	w := f.post(t, "/"+view.ID.String()+"/edit", url.Values{
		"id":         {uuid.New().String()},
		"rowVersion": {base64.StdEncoding.EncodeToString(view.RowVersion)},
		"title":      {"Theirs"},
		"priority":   {"Low"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteTask(t *testing.T) {
	f := newFixture(t)
	view := f.create(t, "Temporary")

	w := f.post(t, "/"+view.ID.String()+"/delete", nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/tasks", w.Header().Get("Location"))

	_, err := f.svc.GetByID(context.Background(), view.ID)
	assert.True(t, errors.Is(err, service.ErrTaskNotFound))

	w = f.post(t, "/"+view.ID.String()+"/delete", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
