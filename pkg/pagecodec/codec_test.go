package pagecodec

import (
	"bytes"
	"strings"
	"testing"
)

func TestCodecNoneRoundTrip(t *testing.T) {
	codec, err := NewCodec(DefaultConfig())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	defer codec.Close()

	data := make([]byte, 4096)
	copy(data, []byte("hello page"))

	encoded, err := codec.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(encoded, data) {
		t.Errorf("expected identity encoding when both transforms are none")
	}

	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Errorf("decoded data doesn't match original")
	}
}

func TestCodecSnappyRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compression = CompressionConfig{Algorithm: CompressionSnappy}
	codec, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	defer codec.Close()

	data := []byte(strings.Repeat("page payload ", 200))
	encoded, err := codec.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Errorf("decoded data doesn't match original")
	}
}

func TestCodecZstdRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compression = CompressionConfig{Algorithm: CompressionZstd, Level: 3}
	codec, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	defer codec.Close()

	data := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 100))
	encoded, err := codec.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(encoded) >= len(data) {
		t.Logf("warning: zstd output (%d) not smaller than input (%d)", len(encoded), len(data))
	}
	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Errorf("decoded data doesn't match original")
	}
}

func TestCodecEncryptionRoundTrip(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Encryption = EncryptionConfig{
		Algorithm:  EncryptionChaCha20Poly1305,
		Passphrase: "correct horse battery staple",
		Salt:       salt,
	}
	codec, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	defer codec.Close()

	data := make([]byte, 4096)
	copy(data, []byte("secret page contents"))

	encoded, err := codec.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if bytes.Equal(encoded, data) {
		t.Errorf("expected ciphertext to differ from plaintext")
	}

	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Errorf("decoded data doesn't match original")
	}
}

func TestCodecEncryptionWrongKeyFails(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Encryption = EncryptionConfig{
		Algorithm:  EncryptionChaCha20Poly1305,
		Passphrase: "passphrase-one",
		Salt:       salt,
	}
	codec, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	defer codec.Close()

	data := make([]byte, 4096)
	encoded, err := codec.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	wrongCfg := cfg
	wrongCfg.Encryption.Passphrase = "passphrase-two"
	wrongCodec, err := NewCodec(wrongCfg)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	defer wrongCodec.Close()

	if _, err := wrongCodec.Decode(encoded); err == nil {
		t.Errorf("expected decode with wrong passphrase to fail")
	}
}

func TestCodecCompressionThenEncryption(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	cfg := Config{
		Compression: CompressionConfig{Algorithm: CompressionZstd, Level: 3},
		Encryption: EncryptionConfig{
			Algorithm:  EncryptionChaCha20Poly1305,
			Passphrase: "layered-secret",
			Salt:       salt,
		},
	}
	codec, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	defer codec.Close()

	data := []byte(strings.Repeat("layered page data ", 150))
	encoded, err := codec.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Errorf("decoded data doesn't match original after compression+encryption")
	}
}
