package web

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/task-tracker/internal/api"
	"github.com/phrazzld/task-tracker/internal/api/shared"
	"github.com/phrazzld/task-tracker/internal/domain"
	"github.com/phrazzld/task-tracker/internal/service"
)

// formTimeLayout matches <input type="datetime-local">.
const formTimeLayout = "2006-01-02T15:04"

// taskForm is the raw state of the create and edit forms.
type taskForm struct {
	ID          string
	Title       string
	Description string
	DueDate     string
	Priority    string
	IsCompleted bool
	RowVersion  string
}

// fieldErrors maps a form field name to its message.
type fieldErrors map[string]string

func (e fieldErrors) add(field, message string) {
	if _, exists := e[field]; !exists {
		e[field] = message
	}
}

func readTaskForm(values url.Values) taskForm {
	completed, _ := strconv.ParseBool(values.Get("isCompleted"))
	return taskForm{
		ID:          strings.TrimSpace(values.Get("id")),
		Title:       values.Get("title"),
		Description: values.Get("description"),
		DueDate:     strings.TrimSpace(values.Get("dueDate")),
		Priority:    strings.TrimSpace(values.Get("priority")),
		IsCompleted: completed,
		RowVersion:  strings.TrimSpace(values.Get("rowVersion")),
	}
}

func formFromView(v service.TaskView) taskForm {
	f := taskForm{
		ID:          v.ID.String(),
		Title:       v.Title,
		Priority:    v.Priority.String(),
		IsCompleted: v.IsCompleted,
		RowVersion:  base64.StdEncoding.EncodeToString(v.RowVersion),
	}
	if v.Description != nil {
		f.Description = *v.Description
	}
	if v.DueDate != nil {
		f.DueDate = v.DueDate.UTC().Format(formTimeLayout)
	}
	return f
}

// createRequest converts and validates the form as a create request.
func (f taskForm) createRequest() (api.CreateTaskRequest, fieldErrors) {
	errs := fieldErrors{}
	req := api.CreateTaskRequest{
		Title:       f.Title,
		Description: &f.Description,
		DueDate:     f.parseDue(errs),
		Priority:    f.parsePriority(errs),
	}
	collectValidation(shared.ValidateRequest(req), errs)
	return req, errs
}

// updateRequest converts and validates the form as an update of pathID.
func (f taskForm) updateRequest(pathID uuid.UUID) (api.UpdateTaskRequest, fieldErrors) {
	errs := fieldErrors{}
	req := api.UpdateTaskRequest{
		ID:          pathID,
		Title:       f.Title,
		Description: &f.Description,
		DueDate:     f.parseDue(errs),
		Priority:    f.parsePriority(errs),
		IsCompleted: f.IsCompleted,
	}
	if f.ID != "" && f.ID != pathID.String() {
		errs.add("id", "Task ID mismatch")
	}
	version, err := base64.StdEncoding.DecodeString(f.RowVersion)
	if err != nil {
		errs.add("rowVersion", "The form is out of date; reload the task and try again")
	}
	req.RowVersion = version
	collectValidation(shared.ValidateRequest(req), errs)
	return req, errs
}

func (f taskForm) parseDue(errs fieldErrors) *time.Time {
	if f.DueDate == "" {
		return nil
	}
	t, err := api.ParseTime(f.DueDate)
	if err != nil {
		errs.add("dueDate", "Due date is not a valid date")
		return nil
	}
	return &t
}

func (f taskForm) parsePriority(errs fieldErrors) *domain.Priority {
	if f.Priority == "" {
		return nil
	}
	p, err := domain.ParsePriority(f.Priority)
	if err != nil {
		errs.add("priority", "Priority must be Low, Medium or High")
		return nil
	}
	return &p
}

var fieldLabels = map[string]string{
	"id":          "Task ID",
	"title":       "Title",
	"description": "Description",
	"dueDate":     "Due date",
	"priority":    "Priority",
	"rowVersion":  "Row version",
}

func collectValidation(err error, errs fieldErrors) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return
	}
	for _, fe := range fieldErrs {
		label := fieldLabels[fe.Field()]
		if label == "" {
			label = fe.Field()
		}
		switch fe.Tag() {
		case "required":
			errs.add(fe.Field(), label+" is required")
		case "max":
			errs.add(fe.Field(), label+" must be at most "+fe.Param()+" characters")
		default:
			errs.add(fe.Field(), label+" is invalid")
		}
	}
}

// fieldErrorsFrom extracts a field message from a service validation error.
func fieldErrorsFrom(err error) (fieldErrors, bool) {
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		return nil, false
	}
	label := fieldLabels[validationErr.Field]
	if label == "" {
		label = validationErr.Field
	}
	return fieldErrors{validationErr.Field: label + " " + validationErr.Message}, true
}

// searchForm echoes the search inputs back into the listing page.
type searchForm struct {
	Keyword     string
	IsCompleted string
	Priority    string
	DueFrom     string
	DueTo       string
	Page        int
	PageSize    int
}

func readSearchForm(values url.Values) searchForm {
	f := searchForm{
		Keyword:     values.Get(api.QueryKeyword),
		IsCompleted: strings.TrimSpace(values.Get(api.QueryIsCompleted)),
		DueFrom:     strings.TrimSpace(values.Get(api.QueryDueFrom)),
		DueTo:       strings.TrimSpace(values.Get(api.QueryDueTo)),
		Page:        1,
		PageSize:    20,
	}
	if p, err := domain.ParsePriority(values.Get(api.QueryPriority)); err == nil {
		f.Priority = p.String()
	}
	return f
}

// pageURL is the listing URL for page with every other filter preserved.
func pageURL(values url.Values, page int) string {
	q := url.Values{}
	for k, v := range values {
		q[k] = v
	}
	q.Set(api.QueryPage, strconv.Itoa(page))
	return "/tasks?" + q.Encode()
}
