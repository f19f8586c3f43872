// Package events fans out tree-changed and decoration-refresh signals to
// presentation collaborators.
package events

import (
	"sync"

	"verisync/internal/model"
)

// TreeEvent describes a tree structure change. All set means consumers should
// re-read the whole tree; otherwise Component names the changed subtree.
type TreeEvent struct {
	All       bool
	Component model.ComponentID
}

// TreeListener receives tree structure changes.
type TreeListener func(TreeEvent)

// DecorationListener is told that per-file decoration buckets are stale and
// must be recomputed from the tree.
type DecorationListener func()

// Hub is a minimal observer registry. Dispatch is synchronous and
// fire-and-forget: there is no queue, and a consumer that misses an event
// recomputes from the tree, which stays the single source of truth.
type Hub struct {
	mu          sync.Mutex
	nextID      int
	tree        map[int]TreeListener
	decorations map[int]DecorationListener
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		tree:        make(map[int]TreeListener),
		decorations: make(map[int]DecorationListener),
	}
}

// OnTreeChanged registers a listener for tree structure changes and returns
// its unsubscribe function.
func (h *Hub) OnTreeChanged(l TreeListener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.tree[id] = l
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.tree, id)
	}
}

// OnDecorationsChanged registers a listener for decoration refreshes and
// returns its unsubscribe function.
func (h *Hub) OnDecorationsChanged(l DecorationListener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.decorations[id] = l
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.decorations, id)
	}
}

// EmitTreeChanged delivers ev to every tree listener.
func (h *Hub) EmitTreeChanged(ev TreeEvent) {
	h.mu.Lock()
	listeners := make([]TreeListener, 0, len(h.tree))
	for _, l := range h.tree {
		listeners = append(listeners, l)
	}
	h.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

// EmitDecorationsChanged tells every decoration listener to recompute.
func (h *Hub) EmitDecorationsChanged() {
	h.mu.Lock()
	listeners := make([]DecorationListener, 0, len(h.decorations))
	for _, l := range h.decorations {
		listeners = append(listeners, l)
	}
	h.mu.Unlock()

	for _, l := range listeners {
		l()
	}
}
