package cache

import (
	"strings"
	"sync"
)

// KeyIndex records which keys have been written to a cache whose primitive
// cannot enumerate its keys. It is safe for concurrent use. Entries that
// expire inside the primitive may linger here; they only cost a miss.
type KeyIndex struct {
	keys sync.Map
}

// NewKeyIndex returns an empty index.
func NewKeyIndex() *KeyIndex {
	return &KeyIndex{}
}

// Add records key.
func (x *KeyIndex) Add(key string) {
	x.keys.Store(key, struct{}{})
}

// Remove forgets key.
func (x *KeyIndex) Remove(key string) {
	x.keys.Delete(key)
}

// Contains reports whether key is recorded.
func (x *KeyIndex) Contains(key string) bool {
	_, ok := x.keys.Load(key)
	return ok
}

// WithPrefix returns a snapshot of the recorded keys starting with prefix.
func (x *KeyIndex) WithPrefix(prefix string) []string {
	var matched []string
	x.keys.Range(func(k, _ any) bool {
		if key := k.(string); strings.HasPrefix(key, prefix) {
			matched = append(matched, key)
		}
		return true
	})
	return matched
}

// Len returns the number of recorded keys.
func (x *KeyIndex) Len() int {
	n := 0
	x.keys.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
