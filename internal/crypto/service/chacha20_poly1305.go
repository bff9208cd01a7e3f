package service

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	cryptoDomain "github.com/keyfold/keyfold/internal/crypto/domain"
)

// ChaCha20Poly1305Cipher implements the AEAD interface using ChaCha20-Poly1305.
//
// ChaCha20-Poly1305 combines the ChaCha20 stream cipher with the Poly1305 MAC
// for authentication. It matches AES-256-GCM's security margins while being
// efficient on platforms without AES hardware acceleration, and its
// implementation is constant-time by construction.
type ChaCha20Poly1305Cipher struct {
	aead cipher.AEAD
}

// NewChaCha20Poly1305 creates a new ChaCha20-Poly1305 cipher instance.
// The key must be exactly 32 bytes (256 bits).
func NewChaCha20Poly1305(key []byte) (*ChaCha20Poly1305Cipher, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
	}

	return &ChaCha20Poly1305Cipher{aead: aead}, nil
}

// Encrypt encrypts plaintext with optional AAD, generating a fresh 12-byte
// random nonce internally.
func (c *ChaCha20Poly1305Cipher) Encrypt(plaintext, aad []byte) (cryptoDomain.Envelope, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return cryptoDomain.Envelope{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, aad)
	return splitSealed(nonce, sealed), nil
}

// Decrypt verifies and decrypts the envelope in one atomic step. Any
// verification failure surfaces as ErrAuthenticationFailed.
func (c *ChaCha20Poly1305Cipher) Decrypt(env cryptoDomain.Envelope, aad []byte) ([]byte, error) {
	plaintext, err := c.aead.Open(nil, env.Nonce, joinSealed(env), aad)
	if err != nil {
		return nil, cryptoDomain.ErrAuthenticationFailed
	}
	return plaintext, nil
}
