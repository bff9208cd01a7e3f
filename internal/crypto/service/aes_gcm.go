package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	cryptoDomain "github.com/keyfold/keyfold/internal/crypto/domain"
)

// AESGCMCipher implements the AEAD interface using AES-256-GCM
// (Advanced Encryption Standard with Galois/Counter Mode).
//
// Security properties:
//   - 256-bit key size
//   - 12-byte nonce (96 bits, randomly generated per encryption)
//   - 16-byte authentication tag (128 bits, carried in the envelope)
//   - Authenticated encryption prevents tampering and forgery
//
// Thread safety: the cipher instance is stateless and safe for concurrent use
// from multiple goroutines. Each encryption generates a unique nonce
// independently, so (key, nonce) pairs never repeat in practice within the
// 2^96 nonce space.
type AESGCMCipher struct {
	aead cipher.AEAD
}

// NewAESGCM creates a new AES-256-GCM cipher instance. The key must be exactly
// 32 bytes (256 bits); any other length is ErrInvalidKeySize.
func NewAESGCM(key []byte) (*AESGCMCipher, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCMCipher{aead: aead}, nil
}

// Encrypt encrypts plaintext using AES-256-GCM with optional additional
// authenticated data, generating a fresh 12-byte random nonce internally.
// Either the full envelope is produced or an error is returned before any
// output is emitted; no partial-success state exists.
func (a *AESGCMCipher) Encrypt(plaintext, aad []byte) (cryptoDomain.Envelope, error) {
	nonce := make([]byte, a.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return cryptoDomain.Envelope{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := a.aead.Seal(nil, nonce, plaintext, aad)
	return splitSealed(nonce, sealed), nil
}

// Decrypt verifies and decrypts the envelope in one atomic step with the same
// AAD used during encryption. Any verification failure (wrong key, tampered
// ciphertext or tag, mismatched AAD) surfaces as the single
// ErrAuthenticationFailed outcome.
func (a *AESGCMCipher) Decrypt(env cryptoDomain.Envelope, aad []byte) ([]byte, error) {
	plaintext, err := a.aead.Open(nil, env.Nonce, joinSealed(env), aad)
	if err != nil {
		return nil, cryptoDomain.ErrAuthenticationFailed
	}
	return plaintext, nil
}

// splitSealed separates the trailing authentication tag that Seal appends to
// the ciphertext so the envelope carries its three components explicitly.
func splitSealed(nonce, sealed []byte) cryptoDomain.Envelope {
	cut := len(sealed) - cryptoDomain.TagSize
	return cryptoDomain.Envelope{
		Nonce:      nonce,
		Ciphertext: sealed[:cut],
		Tag:        sealed[cut:],
	}
}

// joinSealed rebuilds the ciphertext||tag layout Open expects.
func joinSealed(env cryptoDomain.Envelope) []byte {
	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.Tag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)
	return sealed
}
