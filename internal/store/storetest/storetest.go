// Package storetest holds the behavioural contract shared by every
// store.TaskStore engine. Engine packages call Run from their own tests.
package storetest

import (
	"context"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/task-tracker/internal/domain"
	"github.com/phrazzld/task-tracker/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) store.TaskStore

// baseTime is truncated to milliseconds so every engine round-trips it exactly.
var baseTime = time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)

// Run executes the full contract against the engine produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("Add assigns id and row version", func(t *testing.T) { testAdd(t, newStore(t)) })
	t.Run("Add keeps a caller supplied id", func(t *testing.T) { testAddKeepsID(t, newStore(t)) })
	t.Run("GetByID round trips every field", func(t *testing.T) { testGetByID(t, newStore(t)) })
	t.Run("GetByID miss", func(t *testing.T) { testGetByIDMiss(t, newStore(t)) })
	t.Run("GetAll", func(t *testing.T) { testGetAll(t, newStore(t)) })
	t.Run("Update with current version", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("Update with stale version", func(t *testing.T) { testUpdateStale(t, newStore(t)) })
	t.Run("Update after delete", func(t *testing.T) { testUpdateDeleted(t, newStore(t)) })
	t.Run("Concurrent updates single writer wins", func(t *testing.T) { testConcurrentUpdates(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("Search filters", func(t *testing.T) { testSearchFilters(t, newStore(t)) })
	t.Run("Search order and pagination", func(t *testing.T) { testSearchPagination(t, newStore(t)) })
	t.Run("Search keyword folds non-ASCII case", func(t *testing.T) { testSearchUnicodeKeyword(t, newStore(t)) })
	t.Run("Search far past the last page", func(t *testing.T) { testSearchHugePage(t, newStore(t)) })
}

// NewTask builds a valid, unsaved task.
func NewTask(title string, priority domain.Priority, updatedAt time.Time) *domain.Task {
	return &domain.Task{
		Title:        title,
		Priority:     priority,
		CreatedAtUTC: updatedAt,
		UpdatedAtUTC: updatedAt,
	}
}

func ptr[T any](v T) *T { return &v }

func mustAdd(t *testing.T, s store.TaskStore, task *domain.Task) *domain.Task {
	t.Helper()
	added, err := s.Add(context.Background(), task)
	require.NoError(t, err)
	return added
}

func assertSameTask(t *testing.T, want, got *domain.Task) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.Description, got.Description)
	if want.DueDate == nil {
		assert.Nil(t, got.DueDate)
	} else if assert.NotNil(t, got.DueDate) {
		assert.True(t, want.DueDate.Equal(*got.DueDate), "due date: want %v got %v", want.DueDate, got.DueDate)
	}
	assert.Equal(t, want.IsCompleted, got.IsCompleted)
	assert.Equal(t, want.Priority, got.Priority)
	assert.True(t, want.CreatedAtUTC.Equal(got.CreatedAtUTC), "created: want %v got %v", want.CreatedAtUTC, got.CreatedAtUTC)
	assert.True(t, want.UpdatedAtUTC.Equal(got.UpdatedAtUTC), "updated: want %v got %v", want.UpdatedAtUTC, got.UpdatedAtUTC)
	assert.Equal(t, want.RowVersion, got.RowVersion)
}

func testAdd(t *testing.T, s store.TaskStore) {
	added := mustAdd(t, s, NewTask("Write report", domain.PriorityMedium, baseTime))

	assert.NotEqual(t, uuid.Nil, added.ID)
	assert.Len(t, added.RowVersion, store.RowVersionSize)
	assert.Equal(t, "Write report", added.Title)
}

func testAddKeepsID(t *testing.T, s store.TaskStore) {
	id := uuid.New()
	task := NewTask("Fixed id", domain.PriorityLow, baseTime)
	task.ID = id

	added := mustAdd(t, s, task)
	assert.Equal(t, id, added.ID)

	_, err := s.Add(context.Background(), &domain.Task{ID: id, Title: "dup", CreatedAtUTC: baseTime, UpdatedAtUTC: baseTime})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func testGetByID(t *testing.T, s store.TaskStore) {
	task := NewTask("Plan sprint", domain.PriorityHigh, baseTime)
	task.Description = ptr("Backlog grooming")
	task.DueDate = ptr(baseTime.Add(48 * time.Hour))
	task.IsCompleted = true
	task.CreatedAtUTC = baseTime.Add(-time.Hour)
	added := mustAdd(t, s, task)

	got, err := s.GetByID(context.Background(), added.ID)
	require.NoError(t, err)
	assertSameTask(t, added, got)
	assert.Equal(t, time.UTC, got.UpdatedAtUTC.Location())
}

func testGetByIDMiss(t *testing.T, s store.TaskStore) {
	got, err := s.GetByID(context.Background(), uuid.New())
	assert.Nil(t, got)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testGetAll(t *testing.T, s store.TaskStore) {
	all, err := s.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	a := mustAdd(t, s, NewTask("a", domain.PriorityLow, baseTime))
	b := mustAdd(t, s, NewTask("b", domain.PriorityLow, baseTime))

	all, err = s.GetAll(context.Background())
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(all))
	for _, task := range all {
		ids = append(ids, task.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, ids)
}

func testUpdate(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	added := mustAdd(t, s, NewTask("Draft", domain.PriorityLow, baseTime))
	original := append([]byte(nil), added.RowVersion...)

	added.Title = "Final"
	added.Description = ptr("done")
	added.IsCompleted = true
	added.Priority = domain.PriorityHigh
	added.UpdatedAtUTC = baseTime.Add(time.Minute)
	require.NoError(t, s.Update(ctx, added))

	assert.NotEqual(t, original, added.RowVersion, "update must regenerate the row version")
	assert.Len(t, added.RowVersion, store.RowVersionSize)

	got, err := s.GetByID(ctx, added.ID)
	require.NoError(t, err)
	assertSameTask(t, added, got)
	assert.True(t, baseTime.Equal(got.CreatedAtUTC), "created timestamp never changes")
}

func testUpdateStale(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	added := mustAdd(t, s, NewTask("Draft", domain.PriorityLow, baseTime))
	stale := append([]byte(nil), added.RowVersion...)

	require.NoError(t, s.Update(ctx, added))

	conflicting := added.Clone()
	conflicting.RowVersion = stale
	conflicting.Title = "lost update"
	err := s.Update(ctx, conflicting)
	assert.ErrorIs(t, err, store.ErrConcurrencyConflict)

	got, err := s.GetByID(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, "Draft", got.Title)
	assert.Equal(t, added.RowVersion, got.RowVersion)
}

func testUpdateDeleted(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	added := mustAdd(t, s, NewTask("Gone", domain.PriorityLow, baseTime))
	require.NoError(t, s.Delete(ctx, added))

	assert.ErrorIs(t, s.Update(ctx, added), store.ErrConcurrencyConflict)
}

func testConcurrentUpdates(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	added := mustAdd(t, s, NewTask("Contended", domain.PriorityLow, baseTime))

	const writers = 8
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			candidate := added.Clone()
			candidate.Priority = domain.PriorityHigh
			candidate.UpdatedAtUTC = baseTime.Add(time.Duration(i+1) * time.Second)
			<-start
			err := s.Update(ctx, candidate)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case store.IsConcurrencyConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected update error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, conflicts)
}

func testDelete(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	added := mustAdd(t, s, NewTask("Remove me", domain.PriorityLow, baseTime))
	kept := mustAdd(t, s, NewTask("Keep me", domain.PriorityLow, baseTime))

	require.NoError(t, s.Delete(ctx, added))

	_, err := s.GetByID(ctx, added.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetByID(ctx, kept.ID)
	assert.NoError(t, err)

	// The stale in-memory object still identifies the row by id.
	assert.NoError(t, s.Delete(ctx, added))
}

func testSearchFilters(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	due := baseTime.Add(72 * time.Hour)

	report := NewTask("Quarterly REPORT", domain.PriorityHigh, baseTime.Add(3*time.Minute))
	report.DueDate = ptr(due)
	report = mustAdd(t, s, report)

	groceries := NewTask("Groceries", domain.PriorityLow, baseTime.Add(2*time.Minute))
	groceries.Description = ptr("milk, eggs and the monthly report stamps")
	groceries.IsCompleted = true
	groceries = mustAdd(t, s, groceries)

	dentist := NewTask("Dentist", domain.PriorityMedium, baseTime.Add(time.Minute))
	dentist.DueDate = ptr(due.Add(24 * time.Hour))
	dentist = mustAdd(t, s, dentist)

	search := func(c store.SearchCriteria) []uuid.UUID {
		t.Helper()
		res, err := s.Search(ctx, c)
		require.NoError(t, err)
		require.NotNil(t, res)
		ids := make([]uuid.UUID, 0, len(res))
		for _, task := range res {
			ids = append(ids, task.ID)
		}
		return ids
	}

	assert.Equal(t, []uuid.UUID{report.ID, groceries.ID, dentist.ID}, search(store.SearchCriteria{}))
	assert.Equal(t, []uuid.UUID{report.ID, groceries.ID}, search(store.SearchCriteria{Keyword: "report"}))
	assert.Equal(t, []uuid.UUID{report.ID, groceries.ID}, search(store.SearchCriteria{Keyword: "  Report "}))
	assert.Equal(t, []uuid.UUID{groceries.ID}, search(store.SearchCriteria{IsCompleted: ptr(true)}))
	assert.Equal(t, []uuid.UUID{report.ID, dentist.ID}, search(store.SearchCriteria{IsCompleted: ptr(false)}))
	assert.Equal(t, []uuid.UUID{dentist.ID}, search(store.SearchCriteria{Priority: ptr(domain.PriorityMedium)}))
	assert.Equal(t, []uuid.UUID{report.ID}, search(store.SearchCriteria{DueFromUTC: ptr(due), DueToUTC: ptr(due)}))
	assert.Equal(t, []uuid.UUID{dentist.ID}, search(store.SearchCriteria{DueFromUTC: ptr(due.Add(time.Second))}))
	assert.Equal(t, []uuid.UUID{report.ID, dentist.ID}, search(store.SearchCriteria{DueToUTC: ptr(due.Add(48 * time.Hour))}))
	assert.Empty(t, search(store.SearchCriteria{Keyword: "100%"}))
	assert.Empty(t, search(store.SearchCriteria{Keyword: "report", Priority: ptr(domain.PriorityMedium)}))
}

func testSearchPagination(t *testing.T, s store.TaskStore) {
	ctx := context.Background()

	// Five update instants, three priorities each: ties on UpdatedAtUTC are
	// broken by priority.
	var all []*domain.Task
	for i := 0; i < 15; i++ {
		updated := baseTime.Add(time.Duration(i/3) * time.Minute)
		task := NewTask("task", domain.Priority(i%3), updated)
		all = append(all, mustAdd(t, s, task))
	}

	expected := append([]*domain.Task(nil), all...)
	sort.SliceStable(expected, func(i, j int) bool {
		if !expected[i].UpdatedAtUTC.Equal(expected[j].UpdatedAtUTC) {
			return expected[i].UpdatedAtUTC.After(expected[j].UpdatedAtUTC)
		}
		return expected[i].Priority > expected[j].Priority
	})

	page1, err := s.Search(ctx, store.SearchCriteria{Page: 1, PageSize: 10})
	require.NoError(t, err)
	page2, err := s.Search(ctx, store.SearchCriteria{Page: 2, PageSize: 10})
	require.NoError(t, err)
	page3, err := s.Search(ctx, store.SearchCriteria{Page: 3, PageSize: 10})
	require.NoError(t, err)

	require.Len(t, page1, 10)
	require.Len(t, page2, 5)
	assert.NotNil(t, page3)
	assert.Empty(t, page3)

	got := append(append([]*domain.Task(nil), page1...), page2...)
	for i := range expected {
		assert.Equal(t, expected[i].ID, got[i].ID, "position %d", i)
	}

	seen := make(map[uuid.UUID]bool)
	for _, task := range got {
		assert.False(t, seen[task.ID], "pages must be disjoint")
		seen[task.ID] = true
	}
}

func testSearchUnicodeKeyword(t *testing.T, s store.TaskStore) {
	ctx := context.Background()

	school := mustAdd(t, s, NewTask("ÉCOLE inscriptions", domain.PriorityHigh, baseTime.Add(2*time.Minute)))
	street := NewTask("Errands", domain.PriorityLow, baseTime.Add(time.Minute))
	street.Description = ptr("Post office on Straße")
	street = mustAdd(t, s, street)
	mustAdd(t, s, NewTask("Ecole without accent", domain.PriorityMedium, baseTime))

	for keyword, want := range map[string]uuid.UUID{
		"école":   school.ID,
		"ÉCOLE":   school.ID,
		"éCoLe":   school.ID,
		"STRASSE": uuid.Nil,
		"STRAßE":  street.ID,
	} {
		res, err := s.Search(ctx, store.SearchCriteria{Keyword: keyword})
		require.NoError(t, err, keyword)
		if want == uuid.Nil {
			assert.Empty(t, res, keyword)
			continue
		}
		require.Len(t, res, 1, keyword)
		assert.Equal(t, want, res[0].ID, keyword)
	}
}

func testSearchHugePage(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		mustAdd(t, s, NewTask("task", domain.PriorityLow, baseTime.Add(time.Duration(i)*time.Minute)))
	}

	for _, criteria := range []store.SearchCriteria{
		{Page: math.MaxInt / 50, PageSize: 100},
		{Page: math.MaxInt, PageSize: 1},
		{Page: math.MaxInt, PageSize: math.MaxInt},
	} {
		res, err := s.Search(ctx, criteria)
		require.NoError(t, err)
		assert.NotNil(t, res)
		assert.Empty(t, res, "page %d size %d", criteria.Page, criteria.PageSize)
	}
}
