package cache

import (
	"context"
	"time"
)

// Disabled is a Cache that stores nothing: every Get misses and every
// write succeeds without effect.
type Disabled struct{}

var _ Cache = Disabled{}

// Set implements Cache.
func (Disabled) Set(context.Context, string, any, time.Duration) error { return nil }

// Get implements Cache.
func (Disabled) Get(context.Context, string) (any, bool, error) { return nil, false, nil }

// Remove implements Cache.
func (Disabled) Remove(context.Context, string) error { return nil }

// RemoveByPrefix implements Cache.
func (Disabled) RemoveByPrefix(context.Context, string) error { return nil }
