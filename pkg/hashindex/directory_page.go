package hashindex

import (
	"encoding/binary"

	"github.com/mnohosten/pagestore/pkg/storage"
)

const (
	// DirectorySize is the static slot capacity of a directory page.
	DirectorySize = 512

	// MaxGlobalDepth is the deepest the directory can grow before a split
	// that needs to double it fails: log2(DirectorySize).
	MaxGlobalDepth = 9

	dirSelfIDOff      = 0
	dirGlobalDepthOff = 4
	dirLocalDepthOff  = 8
	dirBucketIDOff    = dirLocalDepthOff + DirectorySize
)

// DirectoryPage interprets a frame's payload in place as the hash table's
// directory: its own page id, the global depth, and per-slot local depths
// and bucket page ids. It is a thin accessor; invariants between local and
// global depth are maintained by the ExtendibleHashTable, not here. Callers
// must hold the owning frame's payload lock for the lifetime of the view.
type DirectoryPage struct {
	buf *storage.PageBuf
}

// DirectoryView wraps buf without copying. The view is only valid while the
// caller retains access to the underlying frame.
func DirectoryView(buf *storage.PageBuf) DirectoryPage {
	return DirectoryPage{buf: buf}
}

// PageID returns the directory's own page id.
func (d DirectoryPage) PageID() storage.PageID {
	return storage.PageID(binary.LittleEndian.Uint32(d.buf[dirSelfIDOff:]))
}

// SetPageID records the directory's own page id.
func (d DirectoryPage) SetPageID(id storage.PageID) {
	binary.LittleEndian.PutUint32(d.buf[dirSelfIDOff:], uint32(id))
}

// GlobalDepth returns the number of hash bits currently used to index the
// directory; the active directory size is 1 << GlobalDepth.
func (d DirectoryPage) GlobalDepth() uint32 {
	return binary.LittleEndian.Uint32(d.buf[dirGlobalDepthOff:])
}

// IncrGlobalDepth adds one bit to the directory index.
func (d DirectoryPage) IncrGlobalDepth() {
	binary.LittleEndian.PutUint32(d.buf[dirGlobalDepthOff:], d.GlobalDepth()+1)
}

// LocalDepth returns the number of hash bits that uniquely identify the
// bucket referenced by slot i.
func (d DirectoryPage) LocalDepth(i int) uint8 {
	return d.buf[dirLocalDepthOff+i]
}

// SetLocalDepth records the local depth of slot i.
func (d DirectoryPage) SetLocalDepth(i int, depth uint8) {
	d.buf[dirLocalDepthOff+i] = depth
}

// BucketPageID returns the page id of the bucket referenced by slot i.
func (d DirectoryPage) BucketPageID(i int) storage.PageID {
	return storage.PageID(binary.LittleEndian.Uint32(d.buf[dirBucketIDOff+i*4:]))
}

// SetBucketPageID points slot i at the bucket stored in page id.
func (d DirectoryPage) SetBucketPageID(i int, id storage.PageID) {
	binary.LittleEndian.PutUint32(d.buf[dirBucketIDOff+i*4:], uint32(id))
}

// Mask returns the low-bits mask selecting a directory slot from a hash at
// the current global depth.
func (d DirectoryPage) Mask() uint64 {
	return (1 << d.GlobalDepth()) - 1
}
