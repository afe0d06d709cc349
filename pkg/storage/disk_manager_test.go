package storage

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/mnohosten/pagestore/pkg/pagecodec"
)

func TestFileDiskManagerWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := NewFileDiskManager(path, nil)
	if err != nil {
		t.Fatalf("NewFileDiskManager: %v", err)
	}
	defer dm.Close()

	var in PageBuf
	copy(in[:], []byte("page zero"))
	in[PageSize-1] = 0xff

	if err := dm.WritePage(0, &in); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	var out PageBuf
	if err := dm.ReadPage(0, &out); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if out != in {
		t.Errorf("read back page differs from written page")
	}
}

// Reading a page that was never written must not error; the contents of the
// unfilled tail are unspecified, so nothing beyond the error is asserted.
func TestFileDiskManagerReadBeyondEOFNoError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := NewFileDiskManager(path, nil)
	if err != nil {
		t.Fatalf("NewFileDiskManager: %v", err)
	}
	defer dm.Close()

	var out PageBuf
	if err := dm.ReadPage(7, &out); err != nil {
		t.Fatalf("ReadPage past EOF: %v", err)
	}
}

func TestFileDiskManagerSparseWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := NewFileDiskManager(path, nil)
	if err != nil {
		t.Fatalf("NewFileDiskManager: %v", err)
	}
	defer dm.Close()

	var high PageBuf
	high[0] = 0x42
	if err := dm.WritePage(100, &high); err != nil {
		t.Fatalf("WritePage(100): %v", err)
	}

	// The hole below page 100 reads as zeroes.
	var out PageBuf
	if err := dm.ReadPage(50, &out); err != nil {
		t.Fatalf("ReadPage(50): %v", err)
	}
	if out != (PageBuf{}) {
		t.Errorf("expected hole page to read as zeroes")
	}

	if err := dm.ReadPage(100, &out); err != nil {
		t.Fatalf("ReadPage(100): %v", err)
	}
	if out[0] != 0x42 {
		t.Errorf("page 100 byte 0 = %#x, want 0x42", out[0])
	}
}

func TestFileDiskManagerPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := NewFileDiskManager(path, nil)
	if err != nil {
		t.Fatalf("NewFileDiskManager: %v", err)
	}

	var in PageBuf
	copy(in[:], []byte("durable"))
	if err := dm.WritePage(3, &in); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	if err := dm.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	dm2, err := NewFileDiskManager(path, nil)
	if err != nil {
		t.Fatalf("reopen NewFileDiskManager: %v", err)
	}
	defer dm2.Close()

	var out PageBuf
	if err := dm2.ReadPage(3, &out); err != nil {
		t.Fatalf("ReadPage after reopen: %v", err)
	}
	if !bytes.Equal(out[:7], []byte("durable")) {
		t.Errorf("page 3 after reopen = %q, want %q", out[:7], "durable")
	}
}

func newCodecDisk(t *testing.T, path string, salt []byte) *FileDiskManager {
	t.Helper()
	codec, err := pagecodec.NewCodec(pagecodec.Config{
		Compression: pagecodec.CompressionConfig{Algorithm: pagecodec.CompressionZstd},
		Encryption: pagecodec.EncryptionConfig{
			Algorithm:  pagecodec.EncryptionChaCha20Poly1305,
			Passphrase: "test passphrase",
			Salt:       salt,
		},
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	t.Cleanup(codec.Close)

	dm, err := NewFileDiskManager(path, codec)
	if err != nil {
		t.Fatalf("NewFileDiskManager: %v", err)
	}
	return dm
}

func TestFileDiskManagerCodecRoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	salt := []byte("0123456789abcdef")

	dm := newCodecDisk(t, path, salt)
	var in PageBuf
	copy(in[:], []byte("sealed page"))
	if err := dm.WritePage(2, &in); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	if err := dm.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	dm2 := newCodecDisk(t, path, salt)
	defer dm2.Close()

	var out PageBuf
	if err := dm2.ReadPage(2, &out); err != nil {
		t.Fatalf("ReadPage after reopen: %v", err)
	}
	if out != in {
		t.Errorf("decoded page differs from original")
	}

	// A never-written slot decodes as a zero page, not an error.
	if err := dm2.ReadPage(9, &out); err != nil {
		t.Fatalf("ReadPage of unwritten slot: %v", err)
	}
	if out != (PageBuf{}) {
		t.Errorf("unwritten slot = %v..., want all zeroes", out[:8])
	}
}
