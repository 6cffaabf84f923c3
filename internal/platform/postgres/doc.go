// Package postgres provides the PostgreSQL implementation of store.TaskStore.
// It handles query execution, mapping between domain tasks and rows, the
// embedded schema migrations, and translation of driver errors into the
// sentinels defined in internal/store.
package postgres
