package storage

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// MmapDiskManager is an alternate DiskManager implementation backed by a
// growable memory-mapped file rather than positioned read/write syscalls.
// It implements the same DiskManager contract as FileDiskManager and is a
// drop-in replacement at construction time; there is no runtime switch.
type MmapDiskManager struct {
	mu       sync.RWMutex
	dataFile *os.File
	region   []byte
	regSize  int64
	growth   int64
}

// MmapConfig configures the initial and incremental size of the mapping.
type MmapConfig struct {
	InitialSize int64 // initial mapping size in bytes
	GrowthSize  int64 // size to grow by when a page falls outside the mapping
}

// DefaultMmapConfig returns a default configuration (256MB initial, 64MB
// growth increments).
func DefaultMmapConfig() *MmapConfig {
	return &MmapConfig{
		InitialSize: 256 * 1024 * 1024,
		GrowthSize:  64 * 1024 * 1024,
	}
}

// NewMmapDiskManager opens (creating if necessary) the backing file at path
// and maps it into the process address space.
func NewMmapDiskManager(path string, config *MmapConfig) (*MmapDiskManager, error) {
	if config == nil {
		config = DefaultMmapConfig()
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("pagestore: open data file %q: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("pagestore: stat data file: %w", err)
	}

	dm := &MmapDiskManager{dataFile: file, growth: config.GrowthSize}

	mapSize := config.InitialSize
	if info.Size() > mapSize {
		mapSize = info.Size()
	}
	if err := dm.remap(mapSize); err != nil {
		file.Close()
		return nil, fmt.Errorf("pagestore: initial mmap: %w", err)
	}

	return dm, nil
}

// remap unmaps the current region (if any), grows the backing file to
// newSize, and remaps it. Callers must hold dm.mu.
func (dm *MmapDiskManager) remap(newSize int64) error {
	if dm.region != nil {
		if err := unix.Munmap(dm.region); err != nil {
			return fmt.Errorf("munmap: %w", err)
		}
		dm.region = nil
	}

	if err := dm.dataFile.Truncate(newSize); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}

	data, err := unix.Mmap(int(dm.dataFile.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}

	dm.region = data
	dm.regSize = newSize
	return nil
}

// growLocked ensures the mapping covers at least upTo bytes. Callers must
// hold dm.mu for writing.
func (dm *MmapDiskManager) growLocked(upTo int64, growth int64) error {
	if upTo <= dm.regSize {
		return nil
	}
	newSize := dm.regSize + growth
	if upTo > newSize {
		newSize = upTo + growth
	}
	return dm.remap(newSize)
}

// ReadPage reads a page directly out of the mapped region. A page beyond
// the current mapping reads as all-zero, matching FileDiskManager's
// beyond-EOF behavior.
func (dm *MmapDiskManager) ReadPage(id PageID, out *PageBuf) error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	offset := int64(id) * PageSize
	if offset+PageSize > dm.regSize {
		out.Zero()
		return nil
	}
	copy(out[:], dm.region[offset:offset+PageSize])
	return nil
}

// WritePage writes a page directly into the mapped region, growing the
// mapping first if the page falls beyond it.
func (dm *MmapDiskManager) WritePage(id PageID, buf *PageBuf) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	offset := int64(id) * PageSize
	if err := dm.growLocked(offset+PageSize, dm.growth); err != nil {
		return fmt.Errorf("pagestore: grow mapping for page %d: %w", id, err)
	}
	copy(dm.region[offset:offset+PageSize], buf[:])
	return nil
}

// Sync flushes the mapped region to disk via msync.
func (dm *MmapDiskManager) Sync() error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	if dm.region == nil {
		return nil
	}
	if err := unix.Msync(dm.region, unix.MS_SYNC); err != nil {
		return fmt.Errorf("pagestore: msync: %w", err)
	}
	return nil
}

// Close flushes and unmaps the region, then closes the backing file.
func (dm *MmapDiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.region != nil {
		if err := unix.Msync(dm.region, unix.MS_SYNC); err != nil {
			return fmt.Errorf("pagestore: msync before close: %w", err)
		}
		if err := unix.Munmap(dm.region); err != nil {
			return fmt.Errorf("pagestore: munmap: %w", err)
		}
		dm.region = nil
	}
	return dm.dataFile.Close()
}

var _ DiskManager = (*MmapDiskManager)(nil)
