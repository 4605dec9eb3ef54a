package cluster

import (
	"sort"
	"sync"
	"time"
)

// Registry tracks storage nodes currently marked as failed, plus when each
// failure was recorded. It backs the reconstruction planner's liveness
// checks and lets outages be simulated without real network failures.
//
// State is process-local and resets on restart. All operations hold a
// single mutex for the duration of the map access only; the registry never
// performs I/O under the lock.
type Registry struct {
	mu     sync.Mutex
	failed map[string]time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		failed: make(map[string]time.Time),
	}
}

// MarkFailed records a node as failed. Returns true if the node was newly
// marked, false if it was already failed.
func (r *Registry) MarkFailed(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.failed[nodeID]; ok {
		return false
	}
	r.failed[nodeID] = time.Now().UTC()
	return true
}

// Restore clears a node's failed mark. Returns true if the node was
// previously failed, false otherwise.
func (r *Registry) Restore(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.failed[nodeID]; !ok {
		return false
	}
	delete(r.failed, nodeID)
	return true
}

// IsFailed reports whether a node is currently marked failed.
func (r *Registry) IsFailed(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.failed[nodeID]
	return ok
}

// Snapshot returns a copy of the failed set with failure timestamps.
func (r *Registry) Snapshot() map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]time.Time, len(r.failed))
	for node, at := range r.failed {
		out[node] = at
	}
	return out
}

// FailedNodes returns the failed node ids in sorted order.
func (r *Registry) FailedNodes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.failed))
	for node := range r.failed {
		out = append(out, node)
	}
	sort.Strings(out)
	return out
}

// OnlineNodes filters the failed nodes out of the given list, preserving
// order.
func (r *Registry) OnlineNodes(all []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(all))
	for _, node := range all {
		if _, ok := r.failed[node]; !ok {
			out = append(out, node)
		}
	}
	return out
}

// ClearAll removes every failed mark and returns how many were cleared.
func (r *Registry) ClearAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := len(r.failed)
	r.failed = make(map[string]time.Time)
	return count
}
