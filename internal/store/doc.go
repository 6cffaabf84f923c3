// Package store defines the persistence capabilities the task service depends
// on. Storage engines live under internal/platform and implement both the
// keyed CRUD capability (TaskRepository) and the search capability
// (TaskSearcher); TaskStore composes the two.
package store
