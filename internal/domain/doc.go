// Package domain contains the task entity, its priority scale and the
// normalization rules applied to user input. It has no knowledge of
// storage, caching or transport.
package domain
