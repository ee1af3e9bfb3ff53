// Package secrets seals sensitive settings (provider API keys) before they
// are written to the settings table, and manages the generated keys the
// server needs across restarts.
package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealedPrefix = "sealed:v1:"

var (
	ErrNotSealed = errors.New("value is not sealed")
	ErrOpen      = errors.New("sealed value cannot be opened with this key")
)

// Box seals short strings with XChaCha20-Poly1305 under a key derived from
// the server's encryption secret.
type Box struct {
	aead cipher.AEAD
}

func NewBox(secret string) (*Box, error) {
	if secret == "" {
		return nil, errors.New("empty encryption secret")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("propdesk settings"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal returns a printable, prefixed ciphertext. Every call uses a fresh
// nonce.
func (b *Box) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize(), b.aead.NonceSize()+len(plaintext)+b.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (b *Box) Open(value string) (string, error) {
	if !IsSealed(value) {
		return "", ErrNotSealed
	}
	data, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	if len(data) < b.aead.NonceSize() {
		return "", ErrOpen
	}
	nonce, ciphertext := data[:b.aead.NonceSize()], data[b.aead.NonceSize():]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrOpen
	}
	return string(plaintext), nil
}

// Reveal opens sealed values and passes legacy plaintext through unchanged.
func (b *Box) Reveal(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	return b.Open(value)
}

func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// SettingStore is the part of the settings table used to persist keys.
type SettingStore interface {
	GetSetting(key string) string
	SetSetting(key, value string) error
}

// LoadOrCreate resolves a server key: override (from the environment) wins,
// then the stored setting, then a freshly generated key that is persisted so
// it survives restarts.
func LoadOrCreate(store SettingStore, setting, override string) (value string, created bool, err error) {
	if override != "" {
		return override, false, nil
	}
	if stored := store.GetSetting(setting); stored != "" {
		return stored, false, nil
	}
	key, err := GenerateKey()
	if err != nil {
		return "", false, fmt.Errorf("generate %s: %w", setting, err)
	}
	if err := store.SetSetting(setting, key); err != nil {
		return "", false, fmt.Errorf("persist %s: %w", setting, err)
	}
	return key, true, nil
}
