// Package domain defines the per-principal secret model. Every principal's
// material is encrypted under a key derived from that principal's identity,
// so no two principals ever share an encryption key.
package domain

import (
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/keyfold/keyfold/internal/crypto/domain"
)

// SecretType is the closed set of secret kinds accepted at write time.
type SecretType string

const (
	TypeAPIKey             SecretType = "api-key"
	TypeToken              SecretType = "token"
	TypeWebhook            SecretType = "webhook"
	TypePaymentProviderKey SecretType = "payment-provider-key"
)

// Valid reports whether the type is a member of the closed set.
func (t SecretType) Valid() bool {
	switch t {
	case TypeAPIKey, TypeToken, TypeWebhook, TypePaymentProviderKey:
		return true
	}
	return false
}

// SourceOrigin records where the secret material came from.
type SourceOrigin string

const (
	OriginUserEntered  SourceOrigin = "user-entered"
	OriginSystemIssued SourceOrigin = "system-issued"
	OriginLocallyHeld  SourceOrigin = "locally-held"
)

// Valid reports whether the origin is a member of the closed set.
func (o SourceOrigin) Valid() bool {
	switch o {
	case OriginUserEntered, OriginSystemIssued, OriginLocallyHeld:
		return true
	}
	return false
}

// Secret is one encrypted version of a principal's secret. At most one
// version per (principal, type) is active at a time; superseded and deleted
// versions are kept for audit history until explicitly purged.
type Secret struct {
	ID        uuid.UUID
	Principal string
	Type      SecretType
	Origin    SourceOrigin
	// Version starts at 1 and increases monotonically per (principal, type).
	Version uint
	// Envelope is the encoded nonce:ciphertext:tag string.
	Envelope string
	// Salt is the per-version KDF salt.
	Salt []byte
	// KDFParamsVersion pins the derivation parameters this version was
	// encrypted under; decryption resolves parameters from this, never from
	// current configuration.
	KDFParamsVersion uint
	// PepperFingerprint records the pepper the key was derived under, empty
	// for unpeppered derivations. Resolved from the stored version at decrypt
	// time, never from live configuration, like KDFParamsVersion.
	PepperFingerprint string
	Algorithm         cryptoDomain.Algorithm
	IsActive          bool
	CreatedAt         time.Time
	LastAccessedAt    *time.Time
	LastRotatedAt     *time.Time
	// ExpiresAt, when set, makes the version unreadable after the deadline.
	// Expiration is enforced lazily on read and by the sweep job.
	ExpiresAt *time.Time
	// DeletedAt marks the version terminally inactive (deleted or expired).
	DeletedAt *time.Time
}

// SubjectKey is the audit and AAD identity of the secret: "principal/type".
// Binding the ciphertext to this key stops an envelope swapped between
// subjects from decrypting.
func (s *Secret) SubjectKey() string {
	return SubjectKey(s.Principal, s.Type)
}

// SubjectKey builds the "principal/type" subject identity.
func SubjectKey(principal string, secretType SecretType) string {
	return principal + "/" + string(secretType)
}

// Expired reports whether the version is past its expiry at the given time.
func (s *Secret) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// Metadata is the non-sensitive view of a secret version returned by list
// and mutation operations. It never carries the envelope or salt.
type Metadata struct {
	ID             uuid.UUID
	Principal      string
	Type           SecretType
	Origin         SourceOrigin
	Version        uint
	IsActive       bool
	CreatedAt      time.Time
	LastAccessedAt *time.Time
	LastRotatedAt  *time.Time
	ExpiresAt      *time.Time
}

// Metadata returns the non-sensitive view of the secret.
func (s *Secret) Metadata() Metadata {
	return Metadata{
		ID:             s.ID,
		Principal:      s.Principal,
		Type:           s.Type,
		Origin:         s.Origin,
		Version:        s.Version,
		IsActive:       s.IsActive,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessedAt,
		LastRotatedAt:  s.LastRotatedAt,
		ExpiresAt:      s.ExpiresAt,
	}
}
