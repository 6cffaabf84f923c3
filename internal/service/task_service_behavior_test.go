package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/task-tracker/internal/cache"
	"github.com/phrazzld/task-tracker/internal/domain"
	"github.com/phrazzld/task-tracker/internal/platform/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickingClock advances one millisecond per reading so every write gets a
// distinct UpdatedAtUTC.
func tickingClock() func() time.Time {
	var ticks atomic.Int64
	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * time.Millisecond)
	}
}

type cacheVariant struct {
	name  string
	cache func(t *testing.T) cache.Cache
}

var cacheVariants = []cacheVariant{
	{name: "map", cache: func(*testing.T) cache.Cache { return newMapCache() }},
	{name: "ristretto", cache: func(t *testing.T) cache.Cache {
		c, err := cache.NewMemoryCache(cache.MemoryOptions{MaxEntries: 1000})
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		return c
	}},
	{name: "disabled", cache: func(*testing.T) cache.Cache { return cache.Disabled{} }},
}

func newMemoryService(t *testing.T, c cache.Cache) TaskService {
	t.Helper()

	svc, err := NewTaskService(memory.NewTaskStore(), c, nil, slog.Default(), WithClock(tickingClock()))
	require.NoError(t, err)
	return svc
}

func forEachCache(t *testing.T, fn func(t *testing.T, svc TaskService)) {
	for _, v := range cacheVariants {
		v := v
		t.Run(v.name, func(t *testing.T) {
			t.Parallel()
			fn(t, newMemoryService(t, v.cache(t)))
		})
	}
}

func TestTaskService_EndToEnd(t *testing.T) {
	forEachCache(t, func(t *testing.T, svc TaskService) {
		ctx := context.Background()

		created, err := svc.Create(ctx, CreateTaskInput{Title: "  X  ", Priority: domain.PriorityLow})
		require.NoError(t, err)
		assert.Equal(t, "X", created.Title)
		assert.False(t, created.IsCompleted)

		fetched, err := svc.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created, fetched)

		updated, err := svc.Update(ctx, UpdateTaskInput{
			ID:          created.ID,
			Title:       "Y",
			Priority:    domain.PriorityHigh,
			IsCompleted: true,
			RowVersion:  fetched.RowVersion,
		})
		require.NoError(t, err)
		assert.NotEqual(t, fetched.RowVersion, updated.RowVersion)

		fetched, err = svc.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Y", fetched.Title)
		assert.True(t, fetched.IsCompleted)
		assert.Equal(t, domain.PriorityHigh, fetched.Priority)
		assert.Equal(t, created.CreatedAtUTC, fetched.CreatedAtUTC)

		_, err = svc.Update(ctx, UpdateTaskInput{
			ID: created.ID, Title: "Z", RowVersion: created.RowVersion,
		})
		assert.ErrorIs(t, err, ErrConcurrencyConflict)

		require.NoError(t, svc.Delete(ctx, created.ID))
		_, err = svc.GetByID(ctx, created.ID)
		assert.ErrorIs(t, err, ErrTaskNotFound)
		assert.ErrorIs(t, svc.Delete(ctx, created.ID), ErrTaskNotFound)
	})
}

func TestTaskService_NormalizationIsIdempotent(t *testing.T) {
	forEachCache(t, func(t *testing.T, svc TaskService) {
		ctx := context.Background()

		created, err := svc.Create(ctx, CreateTaskInput{
			Title:       "\t Plan sprint \n",
			Description: strPtr("  agenda  "),
		})
		require.NoError(t, err)

		updated, err := svc.Update(ctx, UpdateTaskInput{
			ID:          created.ID,
			Title:       created.Title,
			Description: created.Description,
			RowVersion:  created.RowVersion,
		})
		require.NoError(t, err)
		assert.Equal(t, created.Title, updated.Title)
		require.NotNil(t, updated.Description)
		assert.Equal(t, "agenda", *updated.Description)
	})
}

func TestTaskService_CacheCoherence(t *testing.T) {
	forEachCache(t, func(t *testing.T, svc TaskService) {
		ctx := context.Background()

		created, err := svc.Create(ctx, CreateTaskInput{Title: "Original"})
		require.NoError(t, err)

		// Warm both namespaces.
		_, err = svc.GetByID(ctx, created.ID)
		require.NoError(t, err)
		before, err := svc.Search(ctx, SearchQuery{Keyword: "original"})
		require.NoError(t, err)
		require.Len(t, before, 1)

		_, err = svc.Update(ctx, UpdateTaskInput{
			ID: created.ID, Title: "Renamed", RowVersion: created.RowVersion,
		})
		require.NoError(t, err)

		got, err := svc.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)

		after, err := svc.Search(ctx, SearchQuery{Keyword: "original"})
		require.NoError(t, err)
		assert.Empty(t, after)

		require.NoError(t, svc.Delete(ctx, created.ID))
		_, err = svc.GetByID(ctx, created.ID)
		assert.ErrorIs(t, err, ErrTaskNotFound)
		all, err := svc.Search(ctx, SearchQuery{})
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestTaskService_MutationsInvalidateEverySearch(t *testing.T) {
	ctx := context.Background()
	c := newMapCache()
	svc := newMemoryService(t, c)

	seed, err := svc.Create(ctx, CreateTaskInput{Title: "Seed"})
	require.NoError(t, err)

	warm := func() {
		t.Helper()
		for _, q := range []SearchQuery{{}, {Keyword: "seed"}, {Page: 2}, {PageSize: 5}} {
			_, err := svc.Search(ctx, q)
			require.NoError(t, err)
		}
		require.Equal(t, 4, c.countPrefix(SearchKeyPrefix))
	}

	warm()
	_, err = svc.GetByID(ctx, seed.ID)
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateTaskInput{Title: "Another"})
	require.NoError(t, err)
	assert.Zero(t, c.countPrefix(SearchKeyPrefix), "create")
	assert.True(t, c.has(ItemKey(seed.ID)), "create leaves item keys alone")

	warm()
	seed, err = svc.Update(ctx, UpdateTaskInput{ID: seed.ID, Title: "Seed 2", RowVersion: seed.RowVersion})
	require.NoError(t, err)
	assert.Zero(t, c.countPrefix(SearchKeyPrefix), "update")
	assert.False(t, c.has(ItemKey(seed.ID)))

	warm()
	require.NoError(t, svc.Delete(ctx, seed.ID))
	assert.Zero(t, c.countPrefix(SearchKeyPrefix), "delete")
}

func TestTaskService_SingleWriterWins(t *testing.T) {
	forEachCache(t, func(t *testing.T, svc TaskService) {
		ctx := context.Background()

		created, err := svc.Create(ctx, CreateTaskInput{Title: "Contended"})
		require.NoError(t, err)

		const writers = 8
		var (
			wg        sync.WaitGroup
			successes atomic.Int32
			conflicts atomic.Int32
		)
		start := make(chan struct{})
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := svc.Update(ctx, UpdateTaskInput{
					ID: created.ID, Title: "Writer", RowVersion: created.RowVersion,
				})
				switch {
				case err == nil:
					successes.Add(1)
				case assert.ErrorIs(t, err, ErrConcurrencyConflict):
					conflicts.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), successes.Load())
		assert.Equal(t, int32(writers-1), conflicts.Load())
	})
}

func TestTaskService_SearchPaging(t *testing.T) {
	forEachCache(t, func(t *testing.T, svc TaskService) {
		ctx := context.Background()

		for i := 0; i < 15; i++ {
			_, err := svc.Create(ctx, CreateTaskInput{Title: "Task", Priority: domain.Priority(i % 3)})
			require.NoError(t, err)
		}

		first, err := svc.Search(ctx, SearchQuery{Page: 1, PageSize: 10})
		require.NoError(t, err)
		second, err := svc.Search(ctx, SearchQuery{Page: 2, PageSize: 10})
		require.NoError(t, err)
		third, err := svc.Search(ctx, SearchQuery{Page: 3, PageSize: 10})
		require.NoError(t, err)

		require.Len(t, first, 10)
		require.Len(t, second, 5)
		assert.Empty(t, third)

		seen := map[string]bool{}
		all := append(append([]TaskView{}, first...), second...)
		for i, v := range all {
			assert.False(t, seen[v.ID.String()], "pages overlap")
			seen[v.ID.String()] = true
			if i > 0 {
				assert.False(t, v.UpdatedAtUTC.After(all[i-1].UpdatedAtUTC), "newest first")
			}
		}
	})
}

func TestTaskService_ReturnedViewsAreIsolated(t *testing.T) {
	forEachCache(t, func(t *testing.T, svc TaskService) {
		ctx := context.Background()

		created, err := svc.Create(ctx, CreateTaskInput{Title: "Isolated", Description: strPtr("keep")})
		require.NoError(t, err)

		first, err := svc.GetByID(ctx, created.ID)
		require.NoError(t, err)
		*first.Description = "tampered"
		first.RowVersion[0] ^= 0xff

		second, err := svc.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "keep", *second.Description)
		assert.Equal(t, created.RowVersion, second.RowVersion)
	})
}
