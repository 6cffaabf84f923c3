// Package testdb provides utilities for PostgreSQL integration tests. Tests
// that use it are built with the integration tag and skip themselves when no
// database URL is configured.
package testdb
