package bufferpool

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/mnohosten/pagestore/pkg/storage"
)

// ParallelBufferPool stripes pages across a fixed set of independently
// locked BufferPoolInstance partitions by page id modulo instance count,
// so operations on pages in different partitions never contend on the same
// mutex.
type ParallelBufferPool struct {
	numInstances int
	instances    []*BufferPoolInstance
	startIndex   uint64
}

// NewParallelBufferPool creates numInstances instances, each with poolSize
// frames, all sharing the same backing disk manager.
func NewParallelBufferPool(numInstances, poolSize int, disk storage.DiskManager) *ParallelBufferPool {
	instances := make([]*BufferPoolInstance, numInstances)
	for i := range instances {
		instances[i] = NewBufferPoolInstance(poolSize, numInstances, i, disk)
	}
	return &ParallelBufferPool{
		numInstances: numInstances,
		instances:    instances,
	}
}

// instanceFor returns the partition responsible for id.
func (pbp *ParallelBufferPool) instanceFor(id storage.PageID) *BufferPoolInstance {
	return pbp.instances[int(id)%pbp.numInstances]
}

// FetchPage pins and returns the frame holding id.
func (pbp *ParallelBufferPool) FetchPage(id storage.PageID) (*Frame, error) {
	return pbp.instanceFor(id).FetchPage(id)
}

// UnpinPage decrements the pin count of a resident page.
func (pbp *ParallelBufferPool) UnpinPage(id storage.PageID, dirty bool) error {
	return pbp.instanceFor(id).UnpinPage(id, dirty)
}

// FlushPage writes a resident page to disk if dirty.
func (pbp *ParallelBufferPool) FlushPage(id storage.PageID) error {
	return pbp.instanceFor(id).FlushPage(id)
}

// DeletePage removes a page from the pool and reclaims its frame and id.
func (pbp *ParallelBufferPool) DeletePage(id storage.PageID) error {
	return pbp.instanceFor(id).DeletePage(id)
}

// FlushAllPages writes every dirty resident page in every instance to disk,
// visiting instances in order.
func (pbp *ParallelBufferPool) FlushAllPages() error {
	for _, inst := range pbp.instances {
		if err := inst.FlushAllPages(); err != nil {
			return err
		}
	}
	return nil
}

// NewPageAt allocates a fresh page in the instance that owns seed, blocking
// on that instance's lock. Callers that do not care which instance owns the
// new page should use NewPage, which scans instances without blocking.
func (pbp *ParallelBufferPool) NewPageAt(seed storage.PageID) (storage.PageID, *Frame, error) {
	return pbp.instanceFor(seed).NewPage()
}

// newPageRoundRobin makes one non-blocking pass over all instances starting
// from a rotating offset, trying only instances it can acquire without
// waiting. It returns ErrNoFreeFrame if every instance is either locked by
// another caller or has no frame to give up.
func (pbp *ParallelBufferPool) newPageRoundRobin() (storage.PageID, *Frame, error) {
	start := int(atomic.AddUint64(&pbp.startIndex, 1)-1) % pbp.numInstances

	for i := 0; i < pbp.numInstances; i++ {
		idx := (start + i) % pbp.numInstances
		inst := pbp.instances[idx]

		if !inst.mu.TryLock() {
			continue
		}
		id, frame, err := inst.newPageLocked()
		inst.mu.Unlock()

		if err == nil {
			return id, frame, nil
		}
		if !errors.Is(err, ErrNoFreeFrame) {
			return 0, nil, err
		}
	}
	return 0, nil, ErrNoFreeFrame
}

// NewPage allocates a fresh page in whichever instance can provide one
// without blocking, scanning instances round-robin. It returns
// ErrNoFreeFrame if every instance is momentarily busy or full of pinned
// frames.
func (pbp *ParallelBufferPool) NewPage() (storage.PageID, *Frame, error) {
	return pbp.newPageRoundRobin()
}

// NewPageBlocking retries NewPage's round-robin scan until an instance
// yields a page or ctx is done.
func (pbp *ParallelBufferPool) NewPageBlocking(ctx context.Context) (storage.PageID, *Frame, error) {
	for {
		id, frame, err := pbp.newPageRoundRobin()
		if err == nil {
			return id, frame, nil
		}
		if !errors.Is(err, ErrNoFreeFrame) {
			return 0, nil, err
		}

		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}
