package storage

import (
	"path/filepath"
	"testing"
)

func newTestMmap(t *testing.T, cfg *MmapConfig) *MmapDiskManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mmap.db")
	dm, err := NewMmapDiskManager(path, cfg)
	if err != nil {
		t.Fatalf("NewMmapDiskManager: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	return dm
}

func TestMmapWriteReadRoundTrip(t *testing.T) {
	dm := newTestMmap(t, nil)

	var in PageBuf
	copy(in[:], []byte("mapped page"))
	if err := dm.WritePage(5, &in); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	var out PageBuf
	if err := dm.ReadPage(5, &out); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if out != in {
		t.Errorf("read back page differs from written page")
	}
}

func TestMmapReadBeyondMappingIsZero(t *testing.T) {
	dm := newTestMmap(t, &MmapConfig{InitialSize: 4 * PageSize, GrowthSize: 4 * PageSize})

	out := PageBuf{0: 0xaa}
	if err := dm.ReadPage(1000, &out); err != nil {
		t.Fatalf("ReadPage beyond mapping: %v", err)
	}
	if out != (PageBuf{}) {
		t.Errorf("page beyond mapping should read as zeroes")
	}
}

func TestMmapGrowsUnderWriteStream(t *testing.T) {
	dm := newTestMmap(t, &MmapConfig{InitialSize: 2 * PageSize, GrowthSize: 2 * PageSize})

	const numPages = 32
	for i := 0; i < numPages; i++ {
		var in PageBuf
		in[0] = byte(i)
		if err := dm.WritePage(PageID(i), &in); err != nil {
			t.Fatalf("WritePage(%d): %v", i, err)
		}
	}
	for i := 0; i < numPages; i++ {
		var out PageBuf
		if err := dm.ReadPage(PageID(i), &out); err != nil {
			t.Fatalf("ReadPage(%d): %v", i, err)
		}
		if out[0] != byte(i) {
			t.Errorf("page %d byte 0 = %d, want %d", i, out[0], i)
		}
	}
}

func TestMmapPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mmap.db")
	dm, err := NewMmapDiskManager(path, &MmapConfig{InitialSize: 4 * PageSize, GrowthSize: 4 * PageSize})
	if err != nil {
		t.Fatalf("NewMmapDiskManager: %v", err)
	}

	var in PageBuf
	copy(in[:], []byte("still here"))
	if err := dm.WritePage(1, &in); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	if err := dm.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	dm2, err := NewMmapDiskManager(path, nil)
	if err != nil {
		t.Fatalf("reopen NewMmapDiskManager: %v", err)
	}
	defer dm2.Close()

	var out PageBuf
	if err := dm2.ReadPage(1, &out); err != nil {
		t.Fatalf("ReadPage after reopen: %v", err)
	}
	if out != in {
		t.Errorf("page after reopen differs from written page")
	}
}
