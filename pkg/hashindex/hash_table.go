package hashindex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/mnohosten/pagestore/pkg/bufferpool"
	"github.com/mnohosten/pagestore/pkg/storage"
)

// HashFunc maps a key to the hash whose low GlobalDepth bits select a
// directory slot. Implementations must be deterministic across runs: bucket
// placement is persisted, so a table reopened against the same file must
// hash keys identically.
type HashFunc func(Key) uint64

// FNVHash is the default HashFunc: FNV-1a over the key's little-endian
// byte image.
func FNVHash(key Key) uint64 {
	var b [keySize]byte
	binary.LittleEndian.PutUint64(b[:], uint64(key))
	h := fnv.New64a()
	h.Write(b[:])
	return h.Sum64()
}

// ExtendibleHashTable is a disk-backed hash index: one directory page plus a
// growing set of bucket pages, all fetched and pinned through a parallel
// buffer pool. Lookups and mutations may run concurrently from multiple
// goroutines; the directory frame's payload lock is held shared on the fast
// paths and exclusively only while a bucket splits.
type ExtendibleHashTable struct {
	pool      *bufferpool.ParallelBufferPool
	hash      HashFunc
	dirPageID storage.PageID
}

// NewExtendibleHashTable creates an empty table on pool: a fresh directory
// page at global depth zero whose single slot points at a fresh, empty
// bucket. A nil hash selects FNVHash.
func NewExtendibleHashTable(ctx context.Context, pool *bufferpool.ParallelBufferPool, hash HashFunc) (*ExtendibleHashTable, error) {
	if hash == nil {
		hash = FNVHash
	}

	dirID, dirFrame, err := pool.NewPageBlocking(ctx)
	if err != nil {
		return nil, fmt.Errorf("hashindex: allocate directory page: %w", err)
	}
	bucketID, _, err := pool.NewPageBlocking(ctx)
	if err != nil {
		pool.UnpinPage(dirID, false)
		return nil, fmt.Errorf("hashindex: allocate initial bucket page: %w", err)
	}

	dirFrame.Lock()
	dir := DirectoryView(dirFrame.Buf())
	dir.SetPageID(dirID)
	dir.SetBucketPageID(0, bucketID)
	dir.SetLocalDepth(0, 0)
	dirFrame.Unlock()

	if err := pool.UnpinPage(dirID, true); err != nil {
		return nil, err
	}
	if err := pool.UnpinPage(bucketID, false); err != nil {
		return nil, err
	}

	return &ExtendibleHashTable{pool: pool, hash: hash, dirPageID: dirID}, nil
}

// DirectoryPageID returns the page id of the table's directory page.
func (ht *ExtendibleHashTable) DirectoryPageID() storage.PageID {
	return ht.dirPageID
}

// fetchPage retries a pool fetch until a frame is available or ctx ends.
// Transient exhaustion (every frame pinned) resolves as concurrent callers
// unpin; any other error is final.
func (ht *ExtendibleHashTable) fetchPage(ctx context.Context, id storage.PageID) (*bufferpool.Frame, error) {
	for {
		frame, err := ht.pool.FetchPage(id)
		if err == nil {
			return frame, nil
		}
		if !errors.Is(err, bufferpool.ErrNoFreeFrame) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// GetValue returns every value stored under key, in bucket slot order, or an
// empty slice if the key is absent.
func (ht *ExtendibleHashTable) GetValue(ctx context.Context, key Key) ([]Value, error) {
	dirFrame, err := ht.fetchPage(ctx, ht.dirPageID)
	if err != nil {
		return nil, err
	}
	dirFrame.RLock()
	dir := DirectoryView(dirFrame.Buf())
	idx := int(ht.hash(key) & dir.Mask())
	bucketID := dir.BucketPageID(idx)

	bucketFrame, err := ht.fetchPage(ctx, bucketID)
	if err != nil {
		dirFrame.RUnlock()
		ht.pool.UnpinPage(ht.dirPageID, false)
		return nil, err
	}
	bucketFrame.RLock()
	values := BucketView(bucketFrame.Buf()).GetValue(key)
	bucketFrame.RUnlock()
	dirFrame.RUnlock()

	if err := ht.pool.UnpinPage(bucketID, false); err != nil {
		return nil, err
	}
	if err := ht.pool.UnpinPage(ht.dirPageID, false); err != nil {
		return nil, err
	}
	return values, nil
}

// Insert stores (key, value). It returns false without storing anything if
// the exact pair is already present, or if the bucket is full and growing it
// would push the directory past MaxGlobalDepth.
func (ht *ExtendibleHashTable) Insert(ctx context.Context, key Key, value Value) (bool, error) {
	for {
		result, err := ht.tryInsert(ctx, key, value)
		if err != nil {
			return false, err
		}
		switch result {
		case InsertSuccess:
			return true, nil
		case InsertDuplicate:
			return false, nil
		}

		// Bucket full: split it, then retry against the re-read directory.
		// Another goroutine may split the same bucket first; the split
		// revalidates under the directory's exclusive lock, so a stale
		// full-bucket observation only costs a retry.
		split, err := ht.splitBucket(ctx, key)
		if err != nil {
			return false, err
		}
		if !split {
			return false, nil
		}
	}
}

// tryInsert performs one insert attempt against the bucket currently
// responsible for key.
func (ht *ExtendibleHashTable) tryInsert(ctx context.Context, key Key, value Value) (InsertResult, error) {
	dirFrame, err := ht.fetchPage(ctx, ht.dirPageID)
	if err != nil {
		return 0, err
	}
	dirFrame.RLock()
	dir := DirectoryView(dirFrame.Buf())
	idx := int(ht.hash(key) & dir.Mask())
	bucketID := dir.BucketPageID(idx)

	bucketFrame, err := ht.fetchPage(ctx, bucketID)
	if err != nil {
		dirFrame.RUnlock()
		ht.pool.UnpinPage(ht.dirPageID, false)
		return 0, err
	}
	bucketFrame.Lock()
	result := BucketView(bucketFrame.Buf()).Insert(key, value)
	bucketFrame.Unlock()
	dirFrame.RUnlock()

	if err := ht.pool.UnpinPage(bucketID, result == InsertSuccess); err != nil {
		return 0, err
	}
	if err := ht.pool.UnpinPage(ht.dirPageID, false); err != nil {
		return 0, err
	}
	return result, nil
}

// Remove deletes the exact (key, value) pair and reports whether it was
// present. Buckets are never merged and the directory never shrinks.
func (ht *ExtendibleHashTable) Remove(ctx context.Context, key Key, value Value) (bool, error) {
	dirFrame, err := ht.fetchPage(ctx, ht.dirPageID)
	if err != nil {
		return false, err
	}
	dirFrame.RLock()
	dir := DirectoryView(dirFrame.Buf())
	idx := int(ht.hash(key) & dir.Mask())
	bucketID := dir.BucketPageID(idx)

	bucketFrame, err := ht.fetchPage(ctx, bucketID)
	if err != nil {
		dirFrame.RUnlock()
		ht.pool.UnpinPage(ht.dirPageID, false)
		return false, err
	}
	bucketFrame.Lock()
	removed := BucketView(bucketFrame.Buf()).Remove(key, value)
	bucketFrame.Unlock()
	dirFrame.RUnlock()

	if err := ht.pool.UnpinPage(bucketID, removed); err != nil {
		return false, err
	}
	if err := ht.pool.UnpinPage(ht.dirPageID, false); err != nil {
		return false, err
	}
	return removed, nil
}

// splitBucket splits the bucket responsible for key, doubling the directory
// first when the bucket's local depth already equals the global depth. It
// returns false if doubling would exceed MaxGlobalDepth. A true return does
// not guarantee this goroutine performed a split: if a concurrent writer got
// there first, or freed a slot, the caller simply retries its insert.
func (ht *ExtendibleHashTable) splitBucket(ctx context.Context, key Key) (bool, error) {
	dirFrame, err := ht.fetchPage(ctx, ht.dirPageID)
	if err != nil {
		return false, err
	}
	dirFrame.Lock()
	dir := DirectoryView(dirFrame.Buf())

	// Revalidate under the exclusive directory lock: the bucket observed
	// full by the caller may have been split or drained in the meantime.
	globalDepth := dir.GlobalDepth()
	idx := int(ht.hash(key) & dir.Mask())
	bucketID := dir.BucketPageID(idx)
	localDepth := dir.LocalDepth(idx)

	bucketFrame, err := ht.fetchPage(ctx, bucketID)
	if err != nil {
		dirFrame.Unlock()
		ht.pool.UnpinPage(ht.dirPageID, false)
		return false, err
	}
	bucketFrame.Lock()
	bucket := BucketView(bucketFrame.Buf())

	if !bucket.IsFull() {
		bucketFrame.Unlock()
		dirFrame.Unlock()
		ht.pool.UnpinPage(bucketID, false)
		ht.pool.UnpinPage(ht.dirPageID, false)
		return true, nil
	}

	if uint32(localDepth) == globalDepth && globalDepth == MaxGlobalDepth {
		bucketFrame.Unlock()
		dirFrame.Unlock()
		ht.pool.UnpinPage(bucketID, false)
		ht.pool.UnpinPage(ht.dirPageID, false)
		return false, nil
	}

	newID, newFrame, err := ht.pool.NewPageBlocking(ctx)
	if err != nil {
		bucketFrame.Unlock()
		dirFrame.Unlock()
		ht.pool.UnpinPage(bucketID, false)
		ht.pool.UnpinPage(ht.dirPageID, false)
		return false, err
	}
	newFrame.Lock()
	newBucket := BucketView(newFrame.Buf())

	if uint32(localDepth) == globalDepth {
		// The splitting bucket uses every directory bit: double the
		// directory by replicating it into its upper half, then point the
		// split image's slot at the new bucket.
		dir.IncrGlobalDepth()
		dir.SetLocalDepth(idx, localDepth+1)
		half := 1 << globalDepth
		for i := 0; i < half; i++ {
			dir.SetBucketPageID(half+i, dir.BucketPageID(i))
			dir.SetLocalDepth(half+i, dir.LocalDepth(i))
		}
		dir.SetBucketPageID(idx+half, newID)
		dir.SetLocalDepth(idx+half, localDepth+1)
	} else {
		// The directory already distinguishes more bits than the bucket
		// uses: its slots form a stride-2^localDepth progression, every
		// other member of which repoints to the new bucket.
		cycle := 1 << localDepth
		low := idx & (cycle - 1)
		numBuckets := 1 << dir.GlobalDepth()
		for i := low; i < numBuckets; i += cycle {
			if (i>>localDepth)&1 == 1 {
				dir.SetBucketPageID(i, newID)
			}
			dir.SetLocalDepth(i, localDepth+1)
		}
	}

	// Redistribute by the newly significant hash bit: entries whose bit is
	// set move to the new sibling, the rest stay put.
	for i := 0; i < BucketCapacity; i++ {
		if !bucket.IsReadable(i) {
			continue
		}
		k := bucket.KeyAt(i)
		if (ht.hash(k)>>localDepth)&1 == 1 {
			newBucket.Insert(k, bucket.ValueAt(i))
			bucket.clearReadable(i)
		}
	}

	newFrame.Unlock()
	bucketFrame.Unlock()
	dirFrame.Unlock()

	if err := ht.pool.UnpinPage(newID, true); err != nil {
		return false, err
	}
	if err := ht.pool.UnpinPage(bucketID, true); err != nil {
		return false, err
	}
	if err := ht.pool.UnpinPage(ht.dirPageID, true); err != nil {
		return false, err
	}
	return true, nil
}
