package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	// IVSize is the per-encryption random IV length (128 bits)
	IVSize = 16

	// TagSize is the GCM authentication tag length (128 bits)
	TagSize = 16
)

// ErrDecryptionFailed hides the reason a value could not be decrypted:
// tampering, wrong key and malformed input are indistinguishable.
var ErrDecryptionFailed = errors.New("failed to decrypt value")

// Sealed is the persisted form of an encrypted value, hex encoded
type Sealed struct {
	Cipher  string
	IV      string
	AuthTag string
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes for AES-256, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random IV
func Encrypt(plaintext string, key []byte) (Sealed, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return Sealed{}, err
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Sealed{}, fmt.Errorf("failed to generate iv: %w", err)
	}

	// Seal appends the tag to the ciphertext
	out := gcm.Seal(nil, iv, []byte(plaintext), nil)
	body, tag := out[:len(out)-TagSize], out[len(out)-TagSize:]

	return Sealed{
		Cipher:  hex.EncodeToString(body),
		IV:      hex.EncodeToString(iv),
		AuthTag: hex.EncodeToString(tag),
	}, nil
}

// Decrypt opens a sealed value. Any failure, including an authentication tag
// mismatch, returns ErrDecryptionFailed and no plaintext.
func Decrypt(sealed Sealed, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	body, err := hex.DecodeString(sealed.Cipher)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	iv, err := hex.DecodeString(sealed.IV)
	if err != nil || len(iv) != IVSize {
		return "", ErrDecryptionFailed
	}
	tag, err := hex.DecodeString(sealed.AuthTag)
	if err != nil || len(tag) != TagSize {
		return "", ErrDecryptionFailed
	}

	plaintext, err := gcm.Open(nil, iv, append(body, tag...), nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}
