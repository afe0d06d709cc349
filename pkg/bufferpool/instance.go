package bufferpool

import (
	"fmt"
	"sync"

	"github.com/mnohosten/pagestore/pkg/storage"
)

// BufferPoolInstance is one partition of a parallel buffer pool: a fixed
// set of frames, an LRU replacer over the unpinned ones, a page table
// mapping resident page ids to frames, and a free list of frames holding no
// page (never used, or released by DeletePage). Page ids it allocates are congruent to instanceIndex modulo
// numInstances, so two instances never collide on an id.
//
// All exported methods serialize on a single mutex; the frame payload
// itself is guarded separately by each Frame's own RWMutex so that a caller
// holding a pinned frame can read or write its bytes without blocking other
// instance operations.
type BufferPoolInstance struct {
	mu sync.Mutex

	numInstances   int
	instanceIndex  int
	nextPageID     uint32
	deletedPageIDs []storage.PageID

	replacer  Replacer
	frames    []*Frame
	pageTable map[storage.PageID]storage.FrameID
	freeList  []storage.FrameID

	disk storage.DiskManager
}

// NewBufferPoolInstance allocates poolSize empty frames for the instance at
// instanceIndex out of numInstances total instances, backed by disk.
func NewBufferPoolInstance(poolSize, numInstances, instanceIndex int, disk storage.DiskManager) *BufferPoolInstance {
	frames := make([]*Frame, poolSize)
	freeList := make([]storage.FrameID, poolSize)
	for i := range frames {
		frames[i] = &Frame{id: storage.FrameID(i)}
		freeList[i] = storage.FrameID(i)
	}

	return &BufferPoolInstance{
		numInstances:  numInstances,
		instanceIndex: instanceIndex,
		nextPageID:    uint32(instanceIndex),
		replacer:      NewLRUReplacer(poolSize),
		frames:        frames,
		pageTable:     make(map[storage.PageID]storage.FrameID, poolSize),
		freeList:      freeList,
		disk:          disk,
	}
}

// allocFrame returns a free frame if one exists, otherwise evicts the LRU
// victim. Callers must hold mu.
func (bpi *BufferPoolInstance) allocFrame() (storage.FrameID, bool) {
	if n := len(bpi.freeList); n > 0 {
		id := bpi.freeList[n-1]
		bpi.freeList = bpi.freeList[:n-1]
		return id, true
	}
	return bpi.replacer.Victim()
}

// allocPageID reuses a deleted page id if one is available, otherwise mints
// the next id in this instance's stripe. Callers must hold mu.
func (bpi *BufferPoolInstance) allocPageID() storage.PageID {
	if n := len(bpi.deletedPageIDs); n > 0 {
		id := bpi.deletedPageIDs[n-1]
		bpi.deletedPageIDs = bpi.deletedPageIDs[:n-1]
		return id
	}
	id := storage.PageID(bpi.nextPageID)
	bpi.nextPageID += uint32(bpi.numInstances)
	return id
}

// evictLocked writes the victim frame's payload to disk if dirty and
// removes its prior page mapping. Callers must hold mu.
func (bpi *BufferPoolInstance) evictLocked(frameID storage.FrameID) error {
	victim := bpi.frames[frameID]
	if !victim.resident {
		return nil
	}
	if victim.dirty {
		if err := bpi.disk.WritePage(victim.pageID, &victim.buf); err != nil {
			return fmt.Errorf("bufferpool: flush evicted page %d: %w", victim.pageID, err)
		}
	}
	delete(bpi.pageTable, victim.pageID)
	return nil
}

// FetchPage pins and returns the frame holding id, reading it from disk and
// evicting a victim frame first if it is not already resident. The caller
// must call UnpinPage exactly once for each successful FetchPage/NewPage.
func (bpi *BufferPoolInstance) FetchPage(id storage.PageID) (*Frame, error) {
	bpi.mu.Lock()
	defer bpi.mu.Unlock()

	if frameID, ok := bpi.pageTable[id]; ok {
		f := bpi.frames[frameID]
		bpi.replacer.Pin(frameID)
		f.pinCount++
		return f, nil
	}

	frameID, ok := bpi.allocFrame()
	if !ok {
		return nil, ErrNoFreeFrame
	}
	bpi.replacer.Pin(frameID)

	if err := bpi.evictLocked(frameID); err != nil {
		return nil, err
	}

	f := bpi.frames[frameID]
	bpi.pageTable[id] = frameID
	f.pageID = id
	f.resident = true
	f.pinCount = 1
	f.dirty = false

	if err := bpi.disk.ReadPage(id, &f.buf); err != nil {
		return nil, fmt.Errorf("bufferpool: read page %d: %w", id, err)
	}
	return f, nil
}

// UnpinPage decrements the pin count of a resident page. Once the count
// reaches zero the frame becomes eligible for eviction again. dirty is
// OR'd into the frame's dirty bit: once set, it stays set until the page is
// flushed, regardless of how many callers unpin it with dirty=false
// afterward.
func (bpi *BufferPoolInstance) UnpinPage(id storage.PageID, dirty bool) error {
	bpi.mu.Lock()
	defer bpi.mu.Unlock()

	frameID, ok := bpi.pageTable[id]
	if !ok {
		return fmt.Errorf("bufferpool: unpin page %d: %w", id, ErrPageNotResident)
	}
	f := bpi.frames[frameID]
	if f.pinCount == 0 {
		panic(fmt.Sprintf("bufferpool: unpin page %d with pin count already zero", id))
	}
	f.pinCount--
	if f.pinCount == 0 {
		bpi.replacer.Unpin(frameID)
	}
	if dirty {
		f.dirty = true
	}
	return nil
}

// FlushPage writes a resident page's payload to disk if it is dirty.
func (bpi *BufferPoolInstance) FlushPage(id storage.PageID) error {
	bpi.mu.Lock()
	defer bpi.mu.Unlock()

	frameID, ok := bpi.pageTable[id]
	if !ok {
		return fmt.Errorf("bufferpool: flush page %d: %w", id, ErrPageNotResident)
	}
	f := bpi.frames[frameID]
	if !f.dirty {
		return nil
	}
	if err := bpi.disk.WritePage(id, &f.buf); err != nil {
		return fmt.Errorf("bufferpool: flush page %d: %w", id, err)
	}
	f.dirty = false
	return nil
}

// FlushAllPages writes every dirty resident page's payload to disk. It is
// idempotent: calling it again immediately afterward finds nothing dirty
// and writes nothing.
func (bpi *BufferPoolInstance) FlushAllPages() error {
	bpi.mu.Lock()
	defer bpi.mu.Unlock()

	for _, f := range bpi.frames {
		if f.resident && f.dirty {
			if err := bpi.disk.WritePage(f.pageID, &f.buf); err != nil {
				return fmt.Errorf("bufferpool: flush page %d: %w", f.pageID, err)
			}
			f.dirty = false
		}
	}
	return nil
}

// newPageLocked is NewPage's core logic, factored out so the parallel pool
// can attempt it under a try-lock without re-entering bpi.mu. Callers must
// hold mu.
func (bpi *BufferPoolInstance) newPageLocked() (storage.PageID, *Frame, error) {
	frameID, ok := bpi.allocFrame()
	if !ok {
		return 0, nil, ErrNoFreeFrame
	}
	bpi.replacer.Pin(frameID)

	if err := bpi.evictLocked(frameID); err != nil {
		return 0, nil, err
	}

	newID := bpi.allocPageID()
	f := bpi.frames[frameID]
	bpi.pageTable[newID] = frameID
	f.pageID = newID
	f.resident = true
	f.dirty = true
	f.pinCount = 1
	f.buf.Zero()
	return newID, f, nil
}

// NewPage allocates a fresh page id, pins its frame, and returns it zeroed
// and marked dirty.
func (bpi *BufferPoolInstance) NewPage() (storage.PageID, *Frame, error) {
	bpi.mu.Lock()
	defer bpi.mu.Unlock()
	return bpi.newPageLocked()
}

// DeletePage removes a page from this instance's page table and frees its
// frame for reuse, also reclaiming its id for a future NewPage. It is a
// no-op if the page is not currently resident. It panics if the page is
// still pinned: callers must unpin before deleting.
func (bpi *BufferPoolInstance) DeletePage(id storage.PageID) error {
	bpi.mu.Lock()
	defer bpi.mu.Unlock()

	frameID, ok := bpi.pageTable[id]
	if !ok {
		return nil
	}
	f := bpi.frames[frameID]
	if f.pinCount > 0 {
		panic(fmt.Sprintf("bufferpool: delete page %d with pin count %d", id, f.pinCount))
	}

	// Remove the frame from the replacer as well as the page table and free
	// list: an unpinned, resident frame is tracked by the replacer, and
	// leaving it there would let a later Victim() hand out a frame this
	// call is about to zero and recycle.
	bpi.replacer.Pin(frameID)

	delete(bpi.pageTable, id)
	f.resident = false
	f.dirty = false
	bpi.freeList = append(bpi.freeList, frameID)
	bpi.deletedPageIDs = append(bpi.deletedPageIDs, id)
	return nil
}
