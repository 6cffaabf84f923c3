package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/task-tracker/internal/api/shared"
	"github.com/phrazzld/task-tracker/internal/domain"
	"github.com/phrazzld/task-tracker/internal/platform/logger"
	"github.com/phrazzld/task-tracker/internal/service"
)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	tasks  service.TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(tasks service.TaskService, logger *slog.Logger) *TaskHandler {
	if tasks == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("task service cannot be nil for TaskHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}

	return &TaskHandler{
		tasks:  tasks,
		logger: logger.With(slog.String("component", "task_handler")),
	}
}

// ListTasks handles GET /api/tasks requests
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	req, err := ParseSearchTasksRequest(r.URL.Query())
	if err != nil {
		log.Debug("invalid search query", slog.String("query", r.URL.RawQuery))
		HandleAPIError(w, r, err)
		return
	}

	views, err := h.tasks.Search(r.Context(), req.ToQuery())
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, tasksToResponse(views))
}

// GetTask handles GET /api/tasks/{id} requests
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := GetPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	view, err := h.tasks.GetByID(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(view))
}

// CreateTask handles POST /api/tasks requests
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateTaskRequest
	if err := decodeRequest(w, r, &req); err != nil {
		HandleAPIError(w, r, err)
		return
	}
	if err := validateRequest(req); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	view, err := h.tasks.Create(r.Context(), req.ToInput())
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	log.Info("task created", slog.String("task_id", view.ID.String()))
	w.Header().Set("Location", "/api/tasks/"+view.ID.String())
	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(view))
}

// UpdateTask handles PUT /api/tasks/{id} requests
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, err := GetPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	var req UpdateTaskRequest
	if err := decodeRequest(w, r, &req); err != nil {
		HandleAPIError(w, r, err)
		return
	}
	if err := validateRequest(req); err != nil {
		HandleAPIError(w, r, err)
		return
	}
	if req.ID != id {
		HandleAPIError(w, r, domain.NewValidationError("id", "does not match the task ID in the path", domain.ErrValidation))
		return
	}

	if _, err := h.tasks.Update(r.Context(), req.ToInput()); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	log.Info("task updated", slog.String("task_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

// DeleteTask handles DELETE /api/tasks/{id} requests
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, err := GetPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	if err := h.tasks.Delete(r.Context(), id); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	log.Info("task deleted", slog.String("task_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}
