// Package pagecodec applies optional, composable transforms (compression
// then encryption) to a page's fixed-size byte image on its way to disk, and
// reverses them on the way back; storage.FileDiskManager applies them when it
// is given a Codec. Neither transform is
// visible to pkg/bufferpool or pkg/hashindex: a page read back through the
// same Codec is byte-identical to what was written.
package pagecodec

import (
	"fmt"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// CompressionAlgorithm selects the compressor applied to a page image.
type CompressionAlgorithm int

const (
	// CompressionNone disables compression.
	CompressionNone CompressionAlgorithm = iota
	// CompressionSnappy trades compression ratio for speed.
	CompressionSnappy
	// CompressionZstd gives a better ratio at moderate CPU cost.
	CompressionZstd
)

func (a CompressionAlgorithm) String() string {
	switch a {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// CompressionConfig configures the compressor.
type CompressionConfig struct {
	Algorithm CompressionAlgorithm
	// Level is the zstd compression level (1 fastest .. 19 best ratio).
	// Ignored by Snappy.
	Level int
}

// compressor wraps the klauspost/compress codecs behind one compress/
// decompress pair.
type compressor struct {
	cfg     CompressionConfig
	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
}

func newCompressor(cfg CompressionConfig) (*compressor, error) {
	c := &compressor{cfg: cfg}
	if cfg.Algorithm == CompressionZstd {
		level := cfg.Level
		if level < 1 || level > 19 {
			level = 3
		}
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("pagecodec: create zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("pagecodec: create zstd decoder: %w", err)
		}
		c.zstdEnc = enc
		c.zstdDec = dec
	}
	return c, nil
}

func (c *compressor) compress(data []byte) ([]byte, error) {
	switch c.cfg.Algorithm {
	case CompressionNone:
		return data, nil
	case CompressionSnappy:
		return snappy.Encode(nil, data), nil
	case CompressionZstd:
		return c.zstdEnc.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("pagecodec: unsupported compression algorithm %v", c.cfg.Algorithm)
	}
}

func (c *compressor) decompress(data []byte) ([]byte, error) {
	switch c.cfg.Algorithm {
	case CompressionNone:
		return data, nil
	case CompressionSnappy:
		return snappy.Decode(nil, data)
	case CompressionZstd:
		return c.zstdDec.DecodeAll(data, nil)
	default:
		return nil, fmt.Errorf("pagecodec: unsupported compression algorithm %v", c.cfg.Algorithm)
	}
}

func (c *compressor) close() {
	if c.zstdEnc != nil {
		c.zstdEnc.Close()
	}
	if c.zstdDec != nil {
		c.zstdDec.Close()
	}
}
