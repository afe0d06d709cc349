// Package hashindex implements an extendible hash table persisted as pages
// through a parallel buffer pool: a directory page mapping hashed key
// prefixes to bucket pages, and bucket pages holding fixed arrays of
// key/value entries. Buckets split dynamically as they fill, doubling the
// directory when the overflowing bucket already uses every directory bit.
package hashindex

import (
	"encoding/binary"

	"github.com/mnohosten/pagestore/pkg/storage"
)

// Key and Value are the fixed-width entry halves stored in bucket pages.
// The bucket layout below is derived from their encoded sizes; changing
// either type changes the on-disk format.
type (
	Key   uint64
	Value uint64
)

const (
	keySize   = 8
	valueSize = 8
	entrySize = keySize + valueSize

	// A group of 8 entries costs 8*entrySize bytes of payload plus one
	// bitmap byte, so a page fits PageSize / (8*entrySize + 1) such groups.
	bucketBitmapBytes = storage.PageSize / (8*entrySize + 1)

	// BucketCapacity is the number of entries a single bucket page holds.
	BucketCapacity = bucketBitmapBytes * 8

	bucketEntriesOff = bucketBitmapBytes
)

// InsertResult reports the outcome of a BucketPage.Insert.
type InsertResult int

const (
	// InsertSuccess means the entry was written into an empty slot.
	InsertSuccess InsertResult = iota
	// InsertDuplicate means the exact (key, value) pair is already present.
	InsertDuplicate
	// InsertFull means no slot is empty; the bucket must split first.
	InsertFull
)

// BucketPage interprets a frame's payload in place as a bucket: a bitmap of
// occupied slots followed by a fixed array of (key, value) entries. Callers
// must hold the owning frame's payload lock (shared for reads, exclusive for
// writes) for the lifetime of the view.
type BucketPage struct {
	buf *storage.PageBuf
}

// BucketView wraps buf without copying. The view is only valid while the
// caller retains access to the underlying frame.
func BucketView(buf *storage.PageBuf) BucketPage {
	return BucketPage{buf: buf}
}

// IsReadable reports whether slot i holds a live entry.
func (b BucketPage) IsReadable(i int) bool {
	return b.buf[i/8]&(1<<(i%8)) != 0
}

func (b BucketPage) setReadable(i int) {
	b.buf[i/8] |= 1 << (i % 8)
}

func (b BucketPage) clearReadable(i int) {
	b.buf[i/8] &^= 1 << (i % 8)
}

// KeyAt returns the key stored in slot i. The slot's contents are undefined
// unless IsReadable(i).
func (b BucketPage) KeyAt(i int) Key {
	off := bucketEntriesOff + i*entrySize
	return Key(binary.LittleEndian.Uint64(b.buf[off:]))
}

// ValueAt returns the value stored in slot i. The slot's contents are
// undefined unless IsReadable(i).
func (b BucketPage) ValueAt(i int) Value {
	off := bucketEntriesOff + i*entrySize + keySize
	return Value(binary.LittleEndian.Uint64(b.buf[off:]))
}

func (b BucketPage) setEntry(i int, key Key, value Value) {
	off := bucketEntriesOff + i*entrySize
	binary.LittleEndian.PutUint64(b.buf[off:], uint64(key))
	binary.LittleEndian.PutUint64(b.buf[off+keySize:], uint64(value))
}

// GetValue collects every value stored under key, in slot order. With no
// intervening removes that is insertion order. Duplicate keys are permitted;
// each (key, value) pair is its own entry.
func (b BucketPage) GetValue(key Key) []Value {
	var result []Value
	for i := 0; i < BucketCapacity; i++ {
		if b.IsReadable(i) && b.KeyAt(i) == key {
			result = append(result, b.ValueAt(i))
		}
	}
	return result
}

// Insert writes (key, value) into the smallest empty slot. The whole bucket
// is scanned first so that an exact duplicate anywhere in it is refused even
// when an earlier empty slot exists.
func (b BucketPage) Insert(key Key, value Value) InsertResult {
	firstEmpty := -1
	for i := 0; i < BucketCapacity; i++ {
		if b.IsReadable(i) {
			if b.KeyAt(i) == key && b.ValueAt(i) == value {
				return InsertDuplicate
			}
		} else if firstEmpty < 0 {
			firstEmpty = i
		}
	}
	if firstEmpty < 0 {
		return InsertFull
	}
	b.setEntry(firstEmpty, key, value)
	b.setReadable(firstEmpty)
	return InsertSuccess
}

// Remove clears the first slot holding exactly (key, value) and reports
// whether one was found. The slot's data bytes are left in place; only the
// readable bit changes.
func (b BucketPage) Remove(key Key, value Value) bool {
	for i := 0; i < BucketCapacity; i++ {
		if b.IsReadable(i) && b.KeyAt(i) == key && b.ValueAt(i) == value {
			b.clearReadable(i)
			return true
		}
	}
	return false
}

// IsFull reports whether every slot is occupied.
func (b BucketPage) IsFull() bool {
	for i := 0; i < bucketBitmapBytes; i++ {
		if b.buf[i] != 0xff {
			return false
		}
	}
	return true
}

// NumEntries counts the live entries in the bucket.
func (b BucketPage) NumEntries() int {
	n := 0
	for i := 0; i < BucketCapacity; i++ {
		if b.IsReadable(i) {
			n++
		}
	}
	return n
}
