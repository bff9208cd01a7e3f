// Package service provides the cryptographic services of the secrets core:
// PBKDF2 key derivation and AEAD ciphers (AES-256-GCM, ChaCha20-Poly1305).
package service

import (
	cryptoDomain "github.com/keyfold/keyfold/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
//
// The AAD is authenticated but not encrypted; the secrets core uses it to bind
// a ciphertext to its subject key so an envelope cannot be replayed under a
// different principal or secret type.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD, generating a fresh random
	// nonce internally. Callers never supply or reuse a nonce.
	Encrypt(plaintext, aad []byte) (cryptoDomain.Envelope, error)

	// Decrypt verifies and decrypts the envelope in one atomic step. The only
	// outcomes are the plaintext or ErrAuthenticationFailed; no code path
	// returns partially decrypted bytes.
	Decrypt(env cryptoDomain.Envelope, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// KeyDeriver defines the interface for deterministic per-secret key derivation.
type KeyDeriver interface {
	// Derive computes a 256-bit key from (principal, salt) under the given
	// parameter version. Deterministic and pure for valid inputs.
	Derive(principal string, salt []byte, paramsVersion uint) ([]byte, error)

	// GenerateSalt draws a fresh random salt of the configured length.
	GenerateSalt() ([]byte, error)

	// Verify re-derives from the candidate and compares against expectedKey in
	// constant time. Used by password-based flows only.
	Verify(candidate string, salt []byte, paramsVersion uint, expectedKey []byte) (bool, error)

	// ParamsVersion returns the parameter version used for new derivations.
	ParamsVersion() uint

	// PepperFingerprint identifies the configured pepper, empty when none.
	// Recorded per stored secret so decryption can detect a pepper change.
	PepperFingerprint() string
}
