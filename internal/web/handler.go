package web

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/task-tracker/internal/api"
	"github.com/phrazzld/task-tracker/internal/api/shared"
	"github.com/phrazzld/task-tracker/internal/domain"
	"github.com/phrazzld/task-tracker/internal/platform/logger"
	"github.com/phrazzld/task-tracker/internal/redact"
	"github.com/phrazzld/task-tracker/internal/service"
)

var priorityNames = []string{
	domain.PriorityLow.String(),
	domain.PriorityMedium.String(),
	domain.PriorityHigh.String(),
}

// Handler serves the task pages.
type Handler struct {
	tasks  service.TaskService
	logger *slog.Logger
}

// NewHandler creates a new Handler
func NewHandler(tasks service.TaskService, logger *slog.Logger) *Handler {
	if tasks == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("task service cannot be nil for web Handler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for web Handler")
	}
	return &Handler{
		tasks:  tasks,
		logger: logger.With(slog.String("component", "web_handler")),
	}
}

// Routes returns the page router, to be mounted at /tasks.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Index)
	r.Get("/new", h.NewTask)
	r.Post("/new", h.CreateTask)
	r.Get("/{id}", h.Details)
	r.Get("/{id}/edit", h.EditTask)
	r.Post("/{id}/edit", h.UpdateTask)
	r.Post("/{id}/delete", h.DeleteTask)
	return r
}

type indexPage struct {
	Query      searchForm
	Priorities []string
	Tasks      []service.TaskView
	Errors     fieldErrors
	PrevURL    string
	NextURL    string
}

type formPage struct {
	Heading    string
	Action     string
	Form       taskForm
	Priorities []string
	Errors     fieldErrors
}

type detailsPage struct {
	Task service.TaskView
}

type errorPage struct {
	Status     int
	StatusText string
	Message    string
	TraceID    string
}

// Index handles GET /tasks
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	page := indexPage{
		Query:      readSearchForm(values),
		Priorities: priorityNames,
		Tasks:      []service.TaskView{},
	}

	req, err := api.ParseSearchTasksRequest(values)
	if err != nil {
		if errs, ok := fieldErrorsFrom(err); ok {
			page.Errors = errs
		} else {
			page.Errors = fieldErrors{"query": api.SanitizeValidationError(err)}
		}
		h.render(w, r, http.StatusOK, "index", page)
		return
	}
	page.Query.Page = req.Page
	page.Query.PageSize = req.PageSize

	views, err := h.tasks.Search(r.Context(), req.ToQuery())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	page.Tasks = views
	if req.Page > 1 {
		page.PrevURL = pageURL(values, req.Page-1)
	}
	if len(views) == req.PageSize {
		page.NextURL = pageURL(values, req.Page+1)
	}

	h.render(w, r, http.StatusOK, "index", page)
}

// NewTask handles GET /tasks/new
func (h *Handler) NewTask(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "form", h.createPage(taskForm{Priority: domain.PriorityMedium.String()}, nil))
}

// CreateTask handles POST /tasks/new
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, domain.NewValidationError("form", "could not be parsed", domain.ErrValidation))
		return
	}
	form := readTaskForm(r.PostForm)
	form.ID, form.RowVersion = "", ""

	req, errs := form.createRequest()
	if len(errs) > 0 {
		h.render(w, r, http.StatusOK, "form", h.createPage(form, errs))
		return
	}

	view, err := h.tasks.Create(r.Context(), req.ToInput())
	if err != nil {
		if errs, ok := fieldErrorsFrom(err); ok {
			h.render(w, r, http.StatusOK, "form", h.createPage(form, errs))
			return
		}
		h.renderError(w, r, err)
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).
		Info("task created", slog.String("task_id", view.ID.String()))
	http.Redirect(w, r, "/tasks", http.StatusSeeOther)
}

// Details handles GET /tasks/{id}
func (h *Handler) Details(w http.ResponseWriter, r *http.Request) {
	id, err := api.GetPathUUID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	view, err := h.tasks.GetByID(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "details", detailsPage{Task: view})
}

// EditTask handles GET /tasks/{id}/edit
func (h *Handler) EditTask(w http.ResponseWriter, r *http.Request) {
	id, err := api.GetPathUUID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	view, err := h.tasks.GetByID(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "form", h.editPage(formFromView(view), nil))
}

// UpdateTask handles POST /tasks/{id}/edit
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := api.GetPathUUID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, domain.NewValidationError("form", "could not be parsed", domain.ErrValidation))
		return
	}
	form := readTaskForm(r.PostForm)

	req, errs := form.updateRequest(id)
	if _, mismatch := errs["id"]; mismatch {
		h.renderError(w, r, domain.NewValidationError("id", "does not match the task being edited", domain.ErrValidation))
		return
	}
	form.ID = id.String()
	if len(errs) > 0 {
		h.render(w, r, http.StatusOK, "form", h.editPage(form, errs))
		return
	}

	if _, err := h.tasks.Update(r.Context(), req.ToInput()); err != nil {
		if errs, ok := fieldErrorsFrom(err); ok {
			h.render(w, r, http.StatusOK, "form", h.editPage(form, errs))
			return
		}
		h.renderError(w, r, err)
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).
		Info("task updated", slog.String("task_id", id.String()))
	http.Redirect(w, r, "/tasks/"+id.String(), http.StatusSeeOther)
}

// DeleteTask handles POST /tasks/{id}/delete
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := api.GetPathUUID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	if err := h.tasks.Delete(r.Context(), id); err != nil {
		h.renderError(w, r, err)
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).
		Info("task deleted", slog.String("task_id", id.String()))
	http.Redirect(w, r, "/tasks", http.StatusSeeOther)
}

func (h *Handler) createPage(form taskForm, errs fieldErrors) formPage {
	return formPage{Heading: "New task", Action: "/tasks/new", Form: form, Priorities: priorityNames, Errors: errs}
}

func (h *Handler) editPage(form taskForm, errs fieldErrors) formPage {
	return formPage{
		Heading:    "Edit task",
		Action:     "/tasks/" + form.ID + "/edit",
		Form:       form,
		Priorities: priorityNames,
		Errors:     errs,
	}
}

// renderError renders the error page with the status from the API error
// table. Server errors are logged and never shown.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := api.MapErrorToStatusCode(err)
	message := api.GetSafeErrorMessage(err)

	log := logger.FromContextOrDefault(r.Context(), h.logger)
	if status >= http.StatusInternalServerError {
		log.Error("page request failed", slog.String("path", r.URL.Path), redact.ErrorAttr(err))
	} else {
		log.Debug("page request rejected", slog.String("path", r.URL.Path), slog.Int("status_code", status))
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			message = validationErr.Error()
		}
	}

	h.render(w, r, status, "error", errorPage{
		Status:     status,
		StatusText: http.StatusText(status),
		Message:    message,
		TraceID:    shared.GetTraceID(r.Context()),
	})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	var buf bytes.Buffer
	if err := pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		logger.FromContextOrDefault(r.Context(), h.logger).
			Error("failed to render page", slog.String("page", page), redact.ErrorAttr(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
