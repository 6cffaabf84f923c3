// Package service holds the task use cases. TaskService sits between the
// HTTP adapters and a store.TaskStore and owns three concerns the store does
// not: input normalization, the optimistic-concurrency update path, and the
// read-through cache with its invalidation protocol.
//
// Cached values are projections (TaskView), never domain.Task. Item entries
// live under "tasks:item:<id>" and search results under "tasks:search:";
// every successful mutation drops the whole search prefix, and Update and
// Delete also drop the item key. A cache that errors degrades to a miss.
package service
