package bufferpool

import (
	"sync"

	"github.com/mnohosten/pagestore/pkg/storage"
)

// Frame is a physical slot holding one page's byte image while it is
// resident in a buffer pool instance. Metadata (page id, pin count, dirty
// bit) is owned by the BufferPoolInstance and guarded by its own mutex;
// payload access goes through the frame's own RWMutex, acquired by callers
// (pkg/hashindex) only after the instance call that returned the frame has
// already released the instance lock.
type Frame struct {
	id  storage.FrameID
	mu  sync.RWMutex
	buf storage.PageBuf

	pageID   storage.PageID
	resident bool
	pinCount int
	dirty    bool
}

// ID returns the frame's slot index within its owning instance.
func (f *Frame) ID() storage.FrameID {
	return f.id
}

// PageID returns the id of the page currently occupying this frame. Only
// meaningful while the frame is pinned by the caller.
func (f *Frame) PageID() storage.PageID {
	return f.pageID
}

// Lock acquires exclusive access to the frame's payload.
func (f *Frame) Lock() { f.mu.Lock() }

// Unlock releases exclusive access to the frame's payload.
func (f *Frame) Unlock() { f.mu.Unlock() }

// RLock acquires shared access to the frame's payload.
func (f *Frame) RLock() { f.mu.RLock() }

// RUnlock releases shared access to the frame's payload.
func (f *Frame) RUnlock() { f.mu.RUnlock() }

// Buf returns a pointer to the frame's fixed-size byte image. Callers must
// hold Lock or RLock while touching it.
func (f *Frame) Buf() *storage.PageBuf {
	return &f.buf
}
