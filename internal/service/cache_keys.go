package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/task-tracker/internal/store"
)

// Cache key prefixes. Every search key starts with SearchKeyPrefix so that a
// single prefix removal invalidates all cached searches.
const (
	ItemKeyPrefix   = "tasks:item:"
	SearchKeyPrefix = "tasks:search:"
)

const absent = "-"

// ItemKey is the cache key for a single task projection.
func ItemKey(id uuid.UUID) string {
	return ItemKeyPrefix + id.String()
}

// SearchKey derives the cache key for normalized criteria. The keyword comes
// first and the remaining six fields never contain a separator, so distinct
// criteria always yield distinct keys.
func SearchKey(c store.SearchCriteria) string {
	var b strings.Builder
	b.WriteString(SearchKeyPrefix)
	b.WriteString(c.Keyword)
	b.WriteByte('|')
	if c.IsCompleted != nil {
		b.WriteString(strconv.FormatBool(*c.IsCompleted))
	} else {
		b.WriteString(absent)
	}
	b.WriteByte('|')
	if c.Priority != nil {
		b.WriteString(c.Priority.String())
	} else {
		b.WriteString(absent)
	}
	b.WriteByte('|')
	b.WriteString(formatBound(c.DueFromUTC))
	b.WriteByte('|')
	b.WriteString(formatBound(c.DueToUTC))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(c.Page))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(c.PageSize))
	return b.String()
}

func formatBound(t *time.Time) string {
	if t == nil {
		return absent
	}
	return t.UTC().Format(time.RFC3339Nano)
}
