// Package usecase defines the interfaces and implementation of the secret
// lifecycle: store, load, rotate, delete, purge and expiry sweep. Every
// mutation writes its audit entry in the same transaction that persists the
// change, so an unauditable operation never takes effect.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/keyfold/keyfold/internal/crypto/domain"
	secretsDomain "github.com/keyfold/keyfold/internal/secrets/domain"
)

// SecretRepository defines the persistence operations for secret versions.
type SecretRepository interface {
	InsertVersion(ctx context.Context, secret *secretsDomain.Secret) error
	GetActive(ctx context.Context, principal string, secretType secretsDomain.SecretType) (*secretsDomain.Secret, error)
	GetLatestVersion(ctx context.Context, principal string, secretType secretsDomain.SecretType) (uint, error)
	Supersede(ctx context.Context, principal string, secretType secretsDomain.SecretType, expectedVersion uint) error
	Deactivate(ctx context.Context, principal string, secretType secretsDomain.SecretType, expectedVersion uint, at time.Time) error
	TouchLastAccessed(ctx context.Context, id uuid.UUID, at time.Time) error
	ListActive(ctx context.Context, principal string) ([]*secretsDomain.Secret, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*secretsDomain.Secret, error)
	Purge(ctx context.Context, principal string, secretType secretsDomain.SecretType) (int64, error)
}

// StoreInput carries a new secret. Algorithm defaults to AES-256-GCM and
// ExpiresAt is optional.
type StoreInput struct {
	Actor     string
	Principal string
	Type      secretsDomain.SecretType
	Origin    secretsDomain.SourceOrigin
	Plaintext []byte
	Algorithm cryptoDomain.Algorithm
	ExpiresAt *time.Time
}

// RotateInput carries replacement material for an existing active secret.
// A zero Origin keeps the previous version's origin.
type RotateInput struct {
	Actor     string
	Principal string
	Type      secretsDomain.SecretType
	Origin    secretsDomain.SourceOrigin
	Plaintext []byte
	Algorithm cryptoDomain.Algorithm
	ExpiresAt *time.Time
}

// SecretManager defines the secret lifecycle business logic.
type SecretManager interface {
	// Store encrypts and persists version 1 of a secret (or the next version
	// when prior versions were deleted). Fails with ErrSecretAlreadyExists
	// when an active version exists.
	Store(ctx context.Context, input StoreInput) (*secretsDomain.Metadata, error)

	// Load decrypts and returns the active version's plaintext.
	//
	// Security Note: callers MUST zero the returned plaintext after use by
	// calling cryptoDomain.Zero.
	Load(ctx context.Context, actor, principal string, secretType secretsDomain.SecretType) ([]byte, error)

	// Rotate atomically supersedes the active version with new material under
	// a fresh salt and version number. Old versions never decrypt new reads.
	Rotate(ctx context.Context, input RotateInput) (*secretsDomain.Metadata, error)

	// Delete deactivates the active version. Deleting when nothing is active
	// is a no-op.
	Delete(ctx context.Context, actor, principal string, secretType secretsDomain.SecretType) error

	// Purge physically erases all soft-deleted versions. Irreversible, and
	// therefore requires a reason. Returns the number of versions erased.
	Purge(ctx context.Context, actor, principal string, secretType secretsDomain.SecretType, reason string) (int64, error)

	// ListActive returns non-sensitive metadata for the principal's active
	// secrets. Never includes plaintext, envelopes or salts.
	ListActive(ctx context.Context, principal string) ([]secretsDomain.Metadata, error)

	// SweepExpired deactivates every active version past its expiry deadline,
	// auditing each as an expire action. Returns the number swept.
	SweepExpired(ctx context.Context, actor string, now time.Time) (int, error)
}
