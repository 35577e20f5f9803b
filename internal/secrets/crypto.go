// Package secrets seals API keys before they reach the token store.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 16
	keySize    = 32 // AES-256
	iterations = 100000

	prefix = "enc:v1:"
)

// Sealer encrypts secrets for storage and reverses it on read
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(stored string) (string, error)
}

// Nop stores secrets as-is
type Nop struct{}

func (Nop) Seal(plaintext string) (string, error) { return plaintext, nil }
func (Nop) Open(stored string) (string, error)    { return stored, nil }

// Crypto seals with AES-256-GCM under a PBKDF2-derived key. New writes share
// one salt per process so the key is derived once; reads derive per salt and
// remember the result.
type Crypto struct {
	passphrase string
	salt       []byte

	mu   sync.Mutex
	keys map[string][]byte
}

// NewSealer returns Nop for an empty passphrase, Crypto otherwise
func NewSealer(passphrase string) (Sealer, error) {
	if passphrase == "" {
		return Nop{}, nil
	}
	return NewCrypto(passphrase)
}

// NewCrypto creates a new Crypto instance
func NewCrypto(passphrase string) (*Crypto, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase is required")
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return &Crypto{
		passphrase: passphrase,
		salt:       salt,
		keys:       make(map[string][]byte),
	}, nil
}

// deriveKey derives an AES key from passphrase and salt using PBKDF2
func (c *Crypto) deriveKey(salt []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key, ok := c.keys[string(salt)]; ok {
		return key
	}
	key := pbkdf2.Key([]byte(c.passphrase), salt, iterations, keySize, sha256.New)
	c.keys[string(salt)] = key
	return key
}

func (c *Crypto) gcm(salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.deriveKey(salt))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt encrypts plaintext using AES-256-GCM. Output is salt|nonce|ciphertext.
func (c *Crypto) Encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := c.gcm(c.salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)

	result := make([]byte, saltSize+len(sealed))
	copy(result, c.salt)
	copy(result[saltSize:], sealed)
	return result, nil
}

// Decrypt decrypts ciphertext encrypted with Encrypt
func (c *Crypto) Decrypt(data []byte) ([]byte, error) {
	if len(data) < saltSize {
		return nil, errors.New("ciphertext too short")
	}

	salt := data[:saltSize]
	ciphertext := data[saltSize:]

	gcm, err := c.gcm(salt)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertext = ciphertext[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("decryption failed: invalid passphrase or corrupted data")
	}

	return plaintext, nil
}

// Seal encrypts and encodes plaintext for a string column
func (c *Crypto) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	data, err := c.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return prefix + base64.StdEncoding.EncodeToString(data), nil
}

// Open reverses Seal. Values without the prefix predate encryption and are
// returned unchanged.
func (c *Crypto) Open(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, prefix))
	if err != nil {
		return "", errors.New("decryption failed: invalid encoding")
	}
	plaintext, err := c.Decrypt(data)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// IsSealed reports whether stored carries the sealed-value prefix
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, prefix)
}
