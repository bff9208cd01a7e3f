package domain

import (
	"github.com/keyfold/keyfold/internal/errors"
)

// Cryptographic operation error definitions.
//
// These domain-specific errors wrap standard errors from internal/errors so
// callers can branch on error class with errors.Is while keeping messages
// free of information that could aid an attacker.
var (
	// ErrConfiguration indicates a caller or configuration bug (e.g., a salt of
	// the wrong length, a pepper that is not 32 bytes). Fatal, never retried.
	ErrConfiguration = errors.Wrap(errors.ErrInvalidInput, "configuration error")

	// ErrInvalidKeySize indicates the cryptographic key is not exactly 32 bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrMalformedEnvelope indicates the envelope could not be parsed: wrong
	// field count, non-hex components, or nonce/tag of the wrong decoded length.
	// Raised before any cryptographic work is attempted.
	ErrMalformedEnvelope = errors.Wrap(errors.ErrInvalidInput, "malformed envelope")

	// ErrAuthenticationFailed indicates AEAD tag verification failed.
	//
	// The message intentionally carries no detail: wrong key, tampered
	// ciphertext, and corrupted data must be indistinguishable to callers to
	// avoid oracle attacks.
	ErrAuthenticationFailed = errors.Wrap(errors.ErrInvalidInput, "decryption failed")

	// ErrUnsupportedAlgorithm indicates the requested encryption algorithm is not supported.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrUnknownParamsVersion indicates a derivation parameter version that was
	// never registered. A secret recorded with such a version cannot be decrypted.
	ErrUnknownParamsVersion = errors.Wrap(errors.ErrInvalidInput, "unknown derivation parameters version")
)
