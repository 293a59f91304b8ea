package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Mailbox credentials are stored as "iv:tag:ciphertext" with each part
// base64-encoded, under AES-256-GCM with a 12-byte nonce and 16-byte tag.

const nonceLength = 12

var ErrInvalidFormat = errors.New("invalid encrypted format")

// Cipher encrypts and decrypts mailbox credentials with a fixed key.
type Cipher struct {
	key []byte
}

// NewCipher builds a Cipher from a 64-character hex key.
func NewCipher(hexKey string) (*Cipher, error) {
	if len(hexKey) != 64 {
		return nil, errors.New("encryption key must be a 64-character hex string")
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	return &Cipher{key: key}, nil
}

// Encrypt seals plaintext into the "iv:tag:ciphertext" format.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends the tag to the ciphertext; split it back out to keep the
	// stored format compatible with records written before this service.
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ciphertext),
	}, ":"), nil
}

// Decrypt opens an "iv:tag:ciphertext" value back to plaintext.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	parts := strings.Split(encoded, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", ErrInvalidFormat
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrInvalidFormat
	}
	tag, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrInvalidFormat
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", ErrInvalidFormat
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", ErrInvalidFormat
	}

	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
