// Package repository provides PostgreSQL and MySQL persistence for the audit
// chain. Entries are append-only: there is no update or delete statement in
// this package, the schema enforces the same with a unique sequence index.
package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	auditDomain "github.com/keyfold/keyfold/internal/audit/domain"
	"github.com/keyfold/keyfold/internal/database"
	apperrors "github.com/keyfold/keyfold/internal/errors"
)

// PostgreSQLAuditRepository implements audit chain persistence for PostgreSQL.
// Uses transaction support via database.GetTx().
type PostgreSQLAuditRepository struct {
	db *sql.DB
}

// NewPostgreSQLAuditRepository creates a new PostgreSQL audit chain repository.
func NewPostgreSQLAuditRepository(db *sql.DB) *PostgreSQLAuditRepository {
	return &PostgreSQLAuditRepository{db: db}
}

// Append inserts a new entry at the tail of the chain. The unique index on
// sequence_index makes concurrent appends at the same position fail; the
// losing insert is reported as ErrSequenceConflict so the caller can retry.
func (p *PostgreSQLAuditRepository) Append(ctx context.Context, entry *auditDomain.AuditEntry) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO audit_entries (sequence_index, actor, action, subject_key, before_digest, after_digest, reason, created_at, entry_hash, prev_entry_hash)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := querier.ExecContext(
		ctx,
		query,
		entry.SequenceIndex,
		entry.Actor,
		string(entry.Action),
		entry.SubjectKey,
		entry.BeforeDigest,
		entry.AfterDigest,
		entry.Reason,
		entry.CreatedAt,
		entry.EntryHash,
		entry.PrevEntryHash,
	)
	if err != nil {
		var pqErr *pq.Error
		if apperrors.As(err, &pqErr) && pqErr.Code == "23505" {
			return auditDomain.ErrSequenceConflict
		}
		return apperrors.Wrap(err, "failed to append audit entry")
	}

	return nil
}

// GetLast retrieves the entry with the highest sequence index. Returns
// ErrEntryNotFound when the chain is empty.
func (p *PostgreSQLAuditRepository) GetLast(ctx context.Context) (*auditDomain.AuditEntry, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT sequence_index, actor, action, subject_key, before_digest, after_digest, reason, created_at, entry_hash, prev_entry_hash
			  FROM audit_entries
			  ORDER BY sequence_index DESC
			  LIMIT 1`

	entry, err := scanAuditEntry(querier.QueryRowContext(ctx, query))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, auditDomain.ErrEntryNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get last audit entry")
	}

	return entry, nil
}

// ReadRange retrieves entries with from <= sequence_index < to, ordered by
// sequence index ascending. Returns an empty slice when nothing matches.
func (p *PostgreSQLAuditRepository) ReadRange(ctx context.Context, from, to uint64) ([]*auditDomain.AuditEntry, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT sequence_index, actor, action, subject_key, before_digest, after_digest, reason, created_at, entry_hash, prev_entry_hash
			  FROM audit_entries
			  WHERE sequence_index >= $1 AND sequence_index < $2
			  ORDER BY sequence_index ASC`

	rows, err := querier.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read audit range")
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := make([]*auditDomain.AuditEntry, 0)
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan audit entry")
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate audit entries")
	}

	return entries, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditEntry(row rowScanner) (*auditDomain.AuditEntry, error) {
	var entry auditDomain.AuditEntry
	var action string

	err := row.Scan(
		&entry.SequenceIndex,
		&entry.Actor,
		&action,
		&entry.SubjectKey,
		&entry.BeforeDigest,
		&entry.AfterDigest,
		&entry.Reason,
		&entry.CreatedAt,
		&entry.EntryHash,
		&entry.PrevEntryHash,
	)
	if err != nil {
		return nil, err
	}

	entry.Action = auditDomain.Action(action)
	return &entry, nil
}
