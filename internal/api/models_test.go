package api

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/task-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSearchTasksRequest(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		req, err := ParseSearchTasksRequest(url.Values{})
		require.NoError(t, err)
		assert.Equal(t, 1, req.Page)
		assert.Equal(t, 20, req.PageSize)
		assert.Nil(t, req.IsCompleted)
		assert.Nil(t, req.Priority)
	})

	t.Run("all parameters", func(t *testing.T) {
		req, err := ParseSearchTasksRequest(url.Values{
			QueryKeyword:     {"report"},
			QueryIsCompleted: {"true"},
			QueryPriority:    {"high"},
			QueryDueFrom:     {"2025-05-01T12:00:00+02:00"},
			QueryDueTo:       {"2025-05-31"},
			QueryPage:        {"2"},
			QueryPageSize:    {"50"},
		})
		require.NoError(t, err)
		assert.Equal(t, "report", req.Keyword)
		require.NotNil(t, req.IsCompleted)
		assert.True(t, *req.IsCompleted)
		require.NotNil(t, req.Priority)
		assert.Equal(t, domain.PriorityHigh, *req.Priority)
		assert.Equal(t, time.Date(2025, time.May, 1, 10, 0, 0, 0, time.UTC), *req.DueFromUTC)
		assert.Equal(t, time.Date(2025, time.May, 31, 0, 0, 0, 0, time.UTC), *req.DueToUTC)
		assert.Equal(t, 2, req.Page)
		assert.Equal(t, 50, req.PageSize)

		q := req.ToQuery()
		assert.Equal(t, "report", q.Keyword)
		assert.Equal(t, 50, q.PageSize)
	})

	invalid := []url.Values{
		{QueryIsCompleted: {"maybe"}},
		{QueryPriority: {"urgent"}},
		{QueryPriority: {"3"}},
		{QueryDueFrom: {"yesterday"}},
		{QueryPage: {"0"}},
		{QueryPage: {"x"}},
		{QueryPageSize: {"101"}},
		{QueryPageSize: {"0"}},
		{QueryKeyword: {strings.Repeat("k", 201)}},
	}
	for _, values := range invalid {
		t.Run("invalid "+values.Encode(), func(t *testing.T) {
			_, err := ParseSearchTasksRequest(values)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}
