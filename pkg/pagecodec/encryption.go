package pagecodec

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

// EncryptionAlgorithm selects the AEAD cipher applied to a page image.
type EncryptionAlgorithm int

const (
	// EncryptionNone disables encryption.
	EncryptionNone EncryptionAlgorithm = iota
	// EncryptionChaCha20Poly1305 seals pages with ChaCha20-Poly1305.
	EncryptionChaCha20Poly1305
)

func (a EncryptionAlgorithm) String() string {
	switch a {
	case EncryptionNone:
		return "none"
	case EncryptionChaCha20Poly1305:
		return "chacha20poly1305"
	default:
		return "unknown"
	}
}

// pbkdf2Iterations and pbkdf2SaltSize are the password-based key derivation
// parameters; changing them invalidates keys derived by earlier builds.
const (
	pbkdf2Iterations = 100000
	pbkdf2SaltSize   = 16
)

// EncryptionConfig configures the encryptor. Passphrase is run through
// PBKDF2-SHA256 to derive the AEAD key; Salt is supplied by the caller, must
// be non-empty (NewSalt generates one), and must be persisted alongside the
// data file to decrypt it again.
type EncryptionConfig struct {
	Algorithm  EncryptionAlgorithm
	Passphrase string
	Salt       []byte
}

// encryptor wraps a chacha20poly1305 AEAD behind one seal/open pair. Nonces
// are generated per-call and prepended to the ciphertext.
type encryptor struct {
	cfg  EncryptionConfig
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
		Overhead() int
	}
}

func newEncryptor(cfg EncryptionConfig) (*encryptor, error) {
	if cfg.Algorithm == EncryptionNone {
		return &encryptor{cfg: cfg}, nil
	}
	if len(cfg.Salt) == 0 {
		return nil, fmt.Errorf("pagecodec: encryption requires a non-empty salt")
	}
	key := pbkdf2.Key([]byte(cfg.Passphrase), cfg.Salt, pbkdf2Iterations, chacha20poly1305.KeySize, sha256.New)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("pagecodec: init chacha20poly1305: %w", err)
	}
	return &encryptor{cfg: cfg, aead: aead}, nil
}

func (e *encryptor) seal(data []byte) ([]byte, error) {
	if e.cfg.Algorithm == EncryptionNone {
		return data, nil
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("pagecodec: generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nil, nonce, data, nil)
	return append(nonce, sealed...), nil
}

func (e *encryptor) open(data []byte) ([]byte, error) {
	if e.cfg.Algorithm == EncryptionNone {
		return data, nil
	}
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("pagecodec: ciphertext shorter than nonce")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plain, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("pagecodec: decrypt: %w", err)
	}
	return plain, nil
}

// NewSalt returns a fresh random salt of the size this package's key
// derivation expects.
func NewSalt() ([]byte, error) {
	salt := make([]byte, pbkdf2SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("pagecodec: generate salt: %w", err)
	}
	return salt, nil
}
