// Package domain defines the core cryptographic domain models: AEAD algorithms,
// the wire envelope format, and the versioned key-derivation parameter records.
package domain

// Algorithm represents the cryptographic algorithm used for encryption.
//
// All supported algorithms provide Authenticated Encryption with Associated Data (AEAD),
// ensuring both confidentiality and authenticity of encrypted data.
//
// Algorithm selection guidelines:
//   - Use AESGCM on modern CPUs with AES-NI hardware acceleration
//   - Use ChaCha20 on systems without AES-NI
//   - Both provide equivalent 256-bit security when used correctly
type Algorithm string

const (
	// AESGCM represents the AES-256-GCM authenticated encryption algorithm.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 represents the ChaCha20-Poly1305 authenticated encryption algorithm.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

const (
	// KeySize is the size of derived symmetric keys in bytes (256 bits).
	KeySize = 32

	// SaltSize is the size of derivation salts in bytes (128 bits).
	SaltSize = 16

	// NonceSize is the size of AEAD nonces in bytes (96 bits).
	NonceSize = 12

	// TagSize is the size of AEAD authentication tags in bytes (128 bits).
	TagSize = 16
)
