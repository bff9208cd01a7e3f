package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/keyfold/keyfold/internal/database"
	apperrors "github.com/keyfold/keyfold/internal/errors"
	secretsDomain "github.com/keyfold/keyfold/internal/secrets/domain"
)

// MySQLSecretRepository implements secret persistence for MySQL. Uses `?`
// placeholders, otherwise identical in behavior to the PostgreSQL repository.
type MySQLSecretRepository struct {
	db *sql.DB
}

// NewMySQLSecretRepository creates a new MySQL secret repository.
func NewMySQLSecretRepository(db *sql.DB) *MySQLSecretRepository {
	return &MySQLSecretRepository{db: db}
}

// InsertVersion persists a new secret version.
func (m *MySQLSecretRepository) InsertVersion(ctx context.Context, secret *secretsDomain.Secret) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO secrets (` + secretColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

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
		var mysqlErr *mysql.MySQLError
		if apperrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return secretsDomain.ErrConcurrentModification
		}
		return apperrors.Wrap(err, "failed to insert secret version")
	}

	return nil
}

// GetActive retrieves the single active version for (principal, type).
func (m *MySQLSecretRepository) GetActive(
	ctx context.Context,
	principal string,
	secretType secretsDomain.SecretType,
) (*secretsDomain.Secret, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + secretColumns + `
			  FROM secrets
			  WHERE principal = ? AND secret_type = ? AND is_active = TRUE AND deleted_at IS NULL`

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
// (principal, type), zero when none exists.
func (m *MySQLSecretRepository) GetLatestVersion(
	ctx context.Context,
	principal string,
	secretType secretsDomain.SecretType,
) (uint, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT COALESCE(MAX(version), 0) FROM secrets WHERE principal = ? AND secret_type = ?`

	var version uint
	if err := querier.QueryRowContext(ctx, query, principal, string(secretType)).Scan(&version); err != nil {
		return 0, apperrors.Wrap(err, "failed to get latest secret version")
	}

	return version, nil
}

// Supersede deactivates the active version if it still matches expectedVersion.
func (m *MySQLSecretRepository) Supersede(
	ctx context.Context,
	principal string,
	secretType secretsDomain.SecretType,
	expectedVersion uint,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE secrets
			  SET is_active = FALSE
			  WHERE principal = ? AND secret_type = ? AND version = ? AND is_active = TRUE`

	return m.execCAS(ctx, querier, query, principal, string(secretType), expectedVersion)
}

// Deactivate deactivates and soft-deletes the active version if it still
// matches expectedVersion.
func (m *MySQLSecretRepository) Deactivate(
	ctx context.Context,
	principal string,
	secretType secretsDomain.SecretType,
	expectedVersion uint,
	at time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE secrets
			  SET is_active = FALSE, deleted_at = ?
			  WHERE principal = ? AND secret_type = ? AND version = ? AND is_active = TRUE`

	return m.execCAS(ctx, querier, query, at, principal, string(secretType), expectedVersion)
}

func (m *MySQLSecretRepository) execCAS(ctx context.Context, querier database.Querier, query string, args ...any) error {
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
func (m *MySQLSecretRepository) TouchLastAccessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE secrets SET last_accessed_at = ? WHERE id = ?`

	if _, err := querier.ExecContext(ctx, query, at, id); err != nil {
		return apperrors.Wrap(err, "failed to touch last accessed")
	}

	return nil
}

// ListActive retrieves all active versions for a principal, ordered by type.
func (m *MySQLSecretRepository) ListActive(ctx context.Context, principal string) ([]*secretsDomain.Secret, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + secretColumns + `
			  FROM secrets
			  WHERE principal = ? AND is_active = TRUE AND deleted_at IS NULL
			  ORDER BY secret_type ASC`

	return m.querySecrets(ctx, querier, query, principal)
}

// ListExpired retrieves active versions whose expiry deadline has passed.
func (m *MySQLSecretRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*secretsDomain.Secret, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + secretColumns + `
			  FROM secrets
			  WHERE is_active = TRUE AND deleted_at IS NULL AND expires_at IS NOT NULL AND expires_at <= ?
			  ORDER BY expires_at ASC
			  LIMIT ?`

	return m.querySecrets(ctx, querier, query, now, limit)
}

// Purge physically deletes every soft-deleted version for (principal, type).
func (m *MySQLSecretRepository) Purge(
	ctx context.Context,
	principal string,
	secretType secretsDomain.SecretType,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `DELETE FROM secrets WHERE principal = ? AND secret_type = ? AND deleted_at IS NOT NULL`

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

func (m *MySQLSecretRepository) querySecrets(ctx context.Context, querier database.Querier, query string, args ...any) ([]*secretsDomain.Secret, error) {
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
