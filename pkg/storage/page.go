// Package storage defines the page-level data model and the Disk Manager
// interface the buffer pool reads and writes through.
package storage

import "fmt"

// PageSize is the fixed size of every on-disk and in-memory page, in bytes.
// Directory and bucket pages (pkg/hashindex) serialize into exactly this
// many bytes, in place, with no header.
const PageSize = 4096

// PageID identifies a page for the lifetime of a backing file. Ids are
// dense but not necessarily contiguous: allocation is striped across buffer
// pool instances by pkg/bufferpool, which hands out ids congruent to its own
// instance index modulo the instance count.
type PageID uint32

func (id PageID) String() string {
	return fmt.Sprintf("page(%d)", uint32(id))
}

// FrameID identifies a physical frame within a single buffer pool instance.
// It is not durable and has no meaning outside that instance.
type FrameID int

// PageBuf is the fixed-size byte image of one page. It is handed out by a
// buffer pool fetch/new and, while pinned, may be cast in place to a
// directory or bucket page view by pkg/hashindex.
type PageBuf [PageSize]byte

// Zero clears the buffer in place, matching the "zero the frame payload"
// step a fresh new_page performs.
func (b *PageBuf) Zero() {
	*b = PageBuf{}
}
