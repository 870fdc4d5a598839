package vmap

// UpdateRequest is a single unit of work handed to the worker pool: a
// reference to one map plus the elapsed tick delta, created by the tick
// driver, owned by the queue while pending and by a worker while executing,
// then discarded. An UpdateRequest is never reused (§3).
type UpdateRequest struct {
	Map     Map
	DiffMS  int64
	StartMS int64
}
