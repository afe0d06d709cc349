package pagecodec

import "fmt"

// Config selects the compression and encryption transforms a Codec applies.
// The zero value is the identity transform: no compression, no encryption.
type Config struct {
	Compression CompressionConfig
	Encryption  EncryptionConfig
}

// DefaultConfig returns a Config with every transform disabled, matching the
// Disk Manager's default of storing the raw 4096-byte page image unchanged.
func DefaultConfig() Config {
	return Config{
		Compression: CompressionConfig{Algorithm: CompressionNone},
		Encryption:  EncryptionConfig{Algorithm: EncryptionNone},
	}
}

// Codec composes an optional compressor and an optional encryptor into one
// Encode/Decode pair applied around a page's byte image. Encode compresses
// then seals; Decode opens then decompresses, the exact inverse order.
type Codec struct {
	cfg  Config
	comp *compressor
	enc  *encryptor
}

// NewCodec builds a Codec from cfg. A Config with both transforms set to
// their None variant yields a Codec whose Encode/Decode are no-ops, but
// callers needing that behavior should simply pass a nil *Codec to
// NewFileDiskManager instead.
func NewCodec(cfg Config) (*Codec, error) {
	comp, err := newCompressor(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("pagecodec: build compressor: %w", err)
	}
	enc, err := newEncryptor(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("pagecodec: build encryptor: %w", err)
	}
	return &Codec{cfg: cfg, comp: comp, enc: enc}, nil
}

// Encode compresses then encrypts raw, returning the bytes that should be
// persisted in place of the original page image.
func (c *Codec) Encode(raw []byte) ([]byte, error) {
	compressed, err := c.comp.compress(raw)
	if err != nil {
		return nil, fmt.Errorf("pagecodec: compress: %w", err)
	}
	sealed, err := c.enc.seal(compressed)
	if err != nil {
		return nil, fmt.Errorf("pagecodec: encrypt: %w", err)
	}
	return sealed, nil
}

// Decode reverses Encode: it opens then decompresses encoded, returning the
// original page image.
func (c *Codec) Decode(encoded []byte) ([]byte, error) {
	opened, err := c.enc.open(encoded)
	if err != nil {
		return nil, fmt.Errorf("pagecodec: decrypt: %w", err)
	}
	raw, err := c.comp.decompress(opened)
	if err != nil {
		return nil, fmt.Errorf("pagecodec: decompress: %w", err)
	}
	return raw, nil
}

// Close releases any resources held by the underlying compressor (zstd
// encoder/decoder goroutines).
func (c *Codec) Close() {
	c.comp.close()
}
