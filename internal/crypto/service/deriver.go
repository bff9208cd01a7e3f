package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	cryptoDomain "github.com/keyfold/keyfold/internal/crypto/domain"
)

// PBKDF2Deriver implements KeyDeriver using PBKDF2 with an HMAC-SHA-256 core.
//
// Derivation is deterministic and pure: the same (principal, salt, parameter
// version) always yields the same 256-bit key, and different principals or
// salts yield unrelated outputs. The derived key exists only in transient
// memory for the duration of one cipher operation and is never persisted.
//
// An optional site-wide pepper is mixed into the derivation input. The pepper
// is not stored alongside secrets, so database exfiltration alone is not
// sufficient to mount offline guessing against principal identifiers. Each
// stored secret records the fingerprint of the pepper it was derived under,
// so decryption can refuse a pepper that no longer matches.
type PBKDF2Deriver struct {
	paramsVersion     uint
	pepper            []byte
	pepperFingerprint string
}

// NewPBKDF2Deriver creates a deriver that issues keys under the given
// registered parameter version. The pepper must be nil or exactly 32 bytes;
// anything else is ErrConfiguration. The deriver keeps its own copy of the
// pepper so the caller may zero the original.
func NewPBKDF2Deriver(paramsVersion uint, pepper []byte) (*PBKDF2Deriver, error) {
	if _, err := cryptoDomain.ParamsForVersion(paramsVersion); err != nil {
		return nil, err
	}
	if pepper != nil && len(pepper) != cryptoDomain.KeySize {
		return nil, fmt.Errorf("%w: pepper must be %d bytes, got %d",
			cryptoDomain.ErrConfiguration, cryptoDomain.KeySize, len(pepper))
	}

	d := &PBKDF2Deriver{paramsVersion: paramsVersion}
	if pepper != nil {
		d.pepper = make([]byte, len(pepper))
		copy(d.pepper, pepper)
		sum := sha256.Sum256(pepper)
		d.pepperFingerprint = hex.EncodeToString(sum[:])
	}
	return d, nil
}

// Derive computes the 256-bit key for (principal, salt) under paramsVersion.
//
// This call is CPU-bound and deliberately slow (hundreds of milliseconds at
// the default iteration count); callers must keep it off latency-sensitive
// paths. It performs no I/O and cannot fail for valid inputs.
func (d *PBKDF2Deriver) Derive(principal string, salt []byte, paramsVersion uint) ([]byte, error) {
	params, err := cryptoDomain.ParamsForVersion(paramsVersion)
	if err != nil {
		return nil, err
	}
	if principal == "" {
		return nil, fmt.Errorf("%w: principal must not be empty", cryptoDomain.ErrConfiguration)
	}
	if len(salt) != params.SaltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d",
			cryptoDomain.ErrConfiguration, params.SaltSize, len(salt))
	}

	input := make([]byte, 0, len(principal)+len(d.pepper))
	input = append(input, principal...)
	input = append(input, d.pepper...)
	defer cryptoDomain.Zero(input)

	return pbkdf2.Key(input, salt, params.Iterations, params.KeySize, sha256.New), nil
}

// GenerateSalt draws a fresh random salt from a cryptographically secure
// source. Salts are never derived from predictable inputs.
func (d *PBKDF2Deriver) GenerateSalt() ([]byte, error) {
	params, _ := cryptoDomain.ParamsForVersion(d.paramsVersion)
	salt := make([]byte, params.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// Verify re-derives from the candidate and compares against expectedKey using
// constant-time equality, so verification time does not depend on where the
// two keys first differ.
func (d *PBKDF2Deriver) Verify(
	candidate string,
	salt []byte,
	paramsVersion uint,
	expectedKey []byte,
) (bool, error) {
	derived, err := d.Derive(candidate, salt, paramsVersion)
	if err != nil {
		return false, err
	}
	defer cryptoDomain.Zero(derived)

	return subtle.ConstantTimeCompare(derived, expectedKey) == 1, nil
}

// ParamsVersion returns the parameter version used for new derivations.
func (d *PBKDF2Deriver) ParamsVersion() uint {
	return d.paramsVersion
}

// PepperFingerprint is the SHA-256 of the configured pepper in hex, empty
// when derivation is unpeppered. It is recorded per stored secret and checked
// before decryption, like the parameter version.
func (d *PBKDF2Deriver) PepperFingerprint() string {
	return d.pepperFingerprint
}

// Close zeroes the pepper copy held by the deriver.
func (d *PBKDF2Deriver) Close() {
	cryptoDomain.Zero(d.pepper)
	d.pepper = nil
}
