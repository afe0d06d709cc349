// Package bufferpool implements a paged buffer pool with LRU eviction,
// partitioned into independently-locked instances (a parallel buffer pool)
// for reduced contention under concurrent access.
package bufferpool

import (
	"container/list"
	"sync"

	"github.com/mnohosten/pagestore/pkg/storage"
)

// Replacer tracks which frames are eligible for eviction (unpinned) and
// picks a victim among them. Pin removes a frame from eligibility; Unpin
// makes it eligible again.
type Replacer interface {
	Victim() (storage.FrameID, bool)
	Pin(id storage.FrameID)
	Unpin(id storage.FrameID)
	Size() int
}

// LRUReplacer evicts the least recently unpinned frame first. Frames move to
// the back of an ordered list on Unpin and are removed from it on Pin; the
// victim is always taken from the front.
type LRUReplacer struct {
	mu    sync.Mutex
	order *list.List
	index map[storage.FrameID]*list.Element
}

// NewLRUReplacer returns an LRUReplacer with no frames yet marked unpinned.
func NewLRUReplacer(poolSize int) *LRUReplacer {
	return &LRUReplacer{
		order: list.New(),
		index: make(map[storage.FrameID]*list.Element, poolSize),
	}
}

// Victim removes and returns the least recently unpinned frame, if any.
func (r *LRUReplacer) Victim() (storage.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem := r.order.Front()
	if elem == nil {
		return 0, false
	}
	id := elem.Value.(storage.FrameID)
	r.order.Remove(elem)
	delete(r.index, id)
	return id, true
}

// Pin removes a frame from eviction eligibility. A no-op if the frame is not
// currently tracked.
func (r *LRUReplacer) Pin(id storage.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if elem, ok := r.index[id]; ok {
		r.order.Remove(elem)
		delete(r.index, id)
	}
}

// Unpin marks a frame eligible for eviction. A no-op if the frame is already
// tracked.
func (r *LRUReplacer) Unpin(id storage.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[id]; ok {
		return
	}
	r.index[id] = r.order.PushBack(id)
}

// Size reports the number of frames currently eligible for eviction.
func (r *LRUReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

var _ Replacer = (*LRUReplacer)(nil)
