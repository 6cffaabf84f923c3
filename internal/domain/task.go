package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Field limits shared by request validation and the SQL schemas.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
)

// Priority is an ordered urgency scale. The ordinal value is significant:
// searches sort High before Medium before Low.
type Priority int

// Supported priorities.
const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

var priorityNames = [...]string{"Low", "Medium", "High"}

// String returns the display name of the priority.
func (p Priority) String() string {
	if !p.Valid() {
		return "Priority(" + strconv.Itoa(int(p)) + ")"
	}
	return priorityNames[p]
}

// Valid reports whether p is one of the defined priorities.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

// ParsePriority accepts a priority name (case-insensitive) or its ordinal.
func ParsePriority(s string) (Priority, error) {
	s = strings.TrimSpace(s)
	for i, name := range priorityNames {
		if strings.EqualFold(s, name) {
			return Priority(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && Priority(n).Valid() {
		return Priority(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}

// MarshalJSON encodes the priority by name.
func (p Priority) MarshalJSON() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, int(p))
	}
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts either the name or the ordinal number.
func (p *Priority) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParsePriority(s)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPriority, data)
	}
	if !Priority(n).Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPriority, n)
	}
	*p = Priority(n)
	return nil
}

// Task is the only persisted entity. ID and RowVersion are owned by the
// store: the store assigns the ID on insert and regenerates RowVersion on
// every successful insert or update.
type Task struct {
	ID           uuid.UUID
	Title        string
	Description  *string
	DueDate      *time.Time
	IsCompleted  bool
	Priority     Priority
	CreatedAtUTC time.Time
	UpdatedAtUTC time.Time
	RowVersion   []byte
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Description = CloneString(t.Description)
	c.DueDate = CloneTime(t.DueDate)
	c.RowVersion = bytes.Clone(t.RowVersion)
	return &c
}

// Validate checks the invariants a normalized task must satisfy before it
// reaches a store.
func (t *Task) Validate() error {
	if t.Title == "" {
		return NewValidationError("title", "is required", ErrEmptyTitle)
	}
	if utf8.RuneCountInString(t.Title) > MaxTitleLength {
		return NewValidationError("title", fmt.Sprintf("must be at most %d characters", MaxTitleLength), ErrTitleTooLong)
	}
	if t.Description != nil && utf8.RuneCountInString(*t.Description) > MaxDescriptionLength {
		return NewValidationError("description",
			fmt.Sprintf("must be at most %d characters", MaxDescriptionLength), ErrDescriptionTooLong)
	}
	if !t.Priority.Valid() {
		return NewValidationError("priority", "is invalid", ErrInvalidPriority)
	}
	return nil
}

// NormalizeTitle trims surrounding whitespace.
func NormalizeTitle(title string) string {
	return strings.TrimSpace(title)
}

// NormalizeDescription trims the description and maps blank input to nil.
func NormalizeDescription(description *string) *string {
	if description == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*description)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// CloneString copies an optional string.
func CloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// CloneTime copies an optional timestamp.
func CloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
