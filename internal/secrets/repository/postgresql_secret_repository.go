// Package repository provides PostgreSQL and MySQL persistence for secret
// versions. The active-version pointer is moved with compare-and-swap
// statements that condition on the expected version, so two concurrent
// writers cannot both succeed.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	cryptoDomain "github.com/keyfold/keyfold/internal/crypto/domain"
	"github.com/keyfold/keyfold/internal/database"
	apperrors "github.com/keyfold/keyfold/internal/errors"
	secretsDomain "github.com/keyfold/keyfold/internal/secrets/domain"
)

const secretColumns = `id, principal, secret_type, origin, version, envelope, salt, kdf_params_version, pepper_fingerprint, algorithm, is_active, created_at, last_accessed_at, last_rotated_at, expires_at, deleted_at`

// PostgreSQLSecretRepository implements secret persistence for PostgreSQL.
// Uses transaction support via database.GetTx().
type PostgreSQLSecretRepository struct {
	db *sql.DB
}

// NewPostgreSQLSecretRepository creates a new PostgreSQL secret repository.
func NewPostgreSQLSecretRepository(db *sql.DB) *PostgreSQLSecretRepository {
	return &PostgreSQLSecretRepository{db: db}
}

// InsertVersion persists a new secret version. The unique index on
// (principal, secret_type, version) rejects a duplicate insert from a racing
// writer.
func (p *PostgreSQLSecretRepository) InsertVersion(ctx context.Context, secret *secretsDomain.Secret) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO secrets (` + secretColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := querier.ExecContext(
		ctx,
		query,
		secret.ID,
		secret.Principal,
		string(secret.Type),
		string(secret.Origin),
		secret.Version,
		secret.Envelope,
		secret.Salt,
		secret.KDFParamsVersion,
		secret.PepperFingerprint,
		string(secret.Algorithm),
		secret.IsActive,
		secret.CreatedAt,
		secret.LastAccessedAt,
		secret.LastRotatedAt,
		secret.ExpiresAt,
		secret.DeletedAt,
	)
	if err != nil {
		// A duplicate (principal, secret_type, version) means a racing writer
		// claimed the slot first.
		var pqErr *pq.Error
		if apperrors.As(err, &pqErr) && pqErr.Code == "23505" {
			return secretsDomain.ErrConcurrentModification
		}
		return apperrors.Wrap(err, "failed to insert secret version")
	}

	return nil
}

// GetActive retrieves the single active version for (principal, type).
// Returns ErrSecretNotFound when none is active.
func (p *PostgreSQLSecretRepository) GetActive(
	ctx context.Context,
	principal string,
	secretType secretsDomain.SecretType,
) (*secretsDomain.Secret, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretColumns + `
			  FROM secrets
			  WHERE principal = $1 AND secret_type = $2 AND is_active = TRUE AND deleted_at IS NULL`

	secret, err := scanSecret(querier.QueryRowContext(ctx, query, principal, string(secretType)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, secretsDomain.ErrSecretNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get active secret")
	}

	return secret, nil
}

// GetLatestVersion returns the highest version number ever assigned for
// (principal, type), zero when none exists. Used to continue the version
// sequence after a delete.
func (p *PostgreSQLSecretRepository) GetLatestVersion(
	ctx context.Context,
	principal string,
	secretType secretsDomain.SecretType,
) (uint, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT COALESCE(MAX(version), 0) FROM secrets WHERE principal = $1 AND secret_type = $2`

	var version uint
	if err := querier.QueryRowContext(ctx, query, principal, string(secretType)).Scan(&version); err != nil {
		return 0, apperrors.Wrap(err, "failed to get latest secret version")
	}

	return version, nil
}

// Supersede deactivates the active version if it still matches
// expectedVersion. Returns ErrConcurrentModification when the pointer moved.
func (p *PostgreSQLSecretRepository) Supersede(
	ctx context.Context,
	principal string,
	secretType secretsDomain.SecretType,
	expectedVersion uint,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE secrets
			  SET is_active = FALSE
			  WHERE principal = $1 AND secret_type = $2 AND version = $3 AND is_active = TRUE`

	return p.execCAS(ctx, querier, query, principal, string(secretType), expectedVersion)
}

// Deactivate deactivates and soft-deletes the active version if it still
// matches expectedVersion.
func (p *PostgreSQLSecretRepository) Deactivate(
	ctx context.Context,
	principal string,
	secretType secretsDomain.SecretType,
	expectedVersion uint,
	at time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE secrets
			  SET is_active = FALSE, deleted_at = $4
			  WHERE principal = $1 AND secret_type = $2 AND version = $3 AND is_active = TRUE`

	return p.execCAS(ctx, querier, query, principal, string(secretType), expectedVersion, at)
}

func (p *PostgreSQLSecretRepository) execCAS(ctx context.Context, querier database.Querier, query string, args ...any) error {
	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.Wrap(err, "failed to update active secret version")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return secretsDomain.ErrConcurrentModification
	}

	return nil
}

// TouchLastAccessed records a successful read on the given version.
func (p *PostgreSQLSecretRepository) TouchLastAccessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE secrets SET last_accessed_at = $2 WHERE id = $1`

	if _, err := querier.ExecContext(ctx, query, id, at); err != nil {
		return apperrors.Wrap(err, "failed to touch last accessed")
	}

	return nil
}

// ListActive retrieves all active versions for a principal, ordered by type.
func (p *PostgreSQLSecretRepository) ListActive(ctx context.Context, principal string) ([]*secretsDomain.Secret, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretColumns + `
			  FROM secrets
			  WHERE principal = $1 AND is_active = TRUE AND deleted_at IS NULL
			  ORDER BY secret_type ASC`

	return p.querySecrets(ctx, querier, query, principal)
}

// ListExpired retrieves active versions whose expiry deadline has passed,
// oldest deadline first, capped at limit.
func (p *PostgreSQLSecretRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*secretsDomain.Secret, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretColumns + `
			  FROM secrets
			  WHERE is_active = TRUE AND deleted_at IS NULL AND expires_at IS NOT NULL AND expires_at <= $1
			  ORDER BY expires_at ASC
			  LIMIT $2`

	return p.querySecrets(ctx, querier, query, now, limit)
}

// Purge physically deletes every soft-deleted version for (principal, type)
// and returns the number of rows erased. Purge is irreversible.
func (p *PostgreSQLSecretRepository) Purge(
	ctx context.Context,
	principal string,
	secretType secretsDomain.SecretType,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM secrets WHERE principal = $1 AND secret_type = $2 AND deleted_at IS NOT NULL`

	result, err := querier.ExecContext(ctx, query, principal, string(secretType))
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to purge secret versions")
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read purged rows")
	}

	return purged, nil
}

func (p *PostgreSQLSecretRepository) querySecrets(ctx context.Context, querier database.Querier, query string, args ...any) ([]*secretsDomain.Secret, error) {
	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secrets")
	}
	defer func() {
		_ = rows.Close()
	}()

	secrets := make([]*secretsDomain.Secret, 0)
	for rows.Next() {
		secret, err := scanSecret(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan secret")
		}
		secrets = append(secrets, secret)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate secrets")
	}

	return secrets, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSecret(row rowScanner) (*secretsDomain.Secret, error) {
	var secret secretsDomain.Secret
	var secretType, origin, algorithm string

	err := row.Scan(
		&secret.ID,
		&secret.Principal,
		&secretType,
		&origin,
		&secret.Version,
		&secret.Envelope,
		&secret.Salt,
		&secret.KDFParamsVersion,
		&secret.PepperFingerprint,
		&algorithm,
		&secret.IsActive,
		&secret.CreatedAt,
		&secret.LastAccessedAt,
		&secret.LastRotatedAt,
		&secret.ExpiresAt,
		&secret.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	secret.Type = secretsDomain.SecretType(secretType)
	secret.Origin = secretsDomain.SourceOrigin(origin)
	secret.Algorithm = cryptoDomain.Algorithm(algorithm)
	return &secret, nil
}
