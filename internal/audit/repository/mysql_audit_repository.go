package repository

import (
	"context"
	"database/sql"

	"github.com/go-sql-driver/mysql"

	auditDomain "github.com/keyfold/keyfold/internal/audit/domain"
	"github.com/keyfold/keyfold/internal/database"
	apperrors "github.com/keyfold/keyfold/internal/errors"
)

// MySQLAuditRepository implements audit chain persistence for MySQL. Uses `?`
// placeholders, otherwise identical in behavior to the PostgreSQL repository.
type MySQLAuditRepository struct {
	db *sql.DB
}

// NewMySQLAuditRepository creates a new MySQL audit chain repository.
func NewMySQLAuditRepository(db *sql.DB) *MySQLAuditRepository {
	return &MySQLAuditRepository{db: db}
}

// Append inserts a new entry at the tail of the chain.
func (m *MySQLAuditRepository) Append(ctx context.Context, entry *auditDomain.AuditEntry) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO audit_entries (sequence_index, actor, action, subject_key, before_digest, after_digest, reason, created_at, entry_hash, prev_entry_hash)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

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
		var mysqlErr *mysql.MySQLError
		if apperrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return auditDomain.ErrSequenceConflict
		}
		return apperrors.Wrap(err, "failed to append audit entry")
	}

	return nil
}

// GetLast retrieves the entry with the highest sequence index. Returns
// ErrEntryNotFound when the chain is empty.
func (m *MySQLAuditRepository) GetLast(ctx context.Context) (*auditDomain.AuditEntry, error) {
	querier := database.GetTx(ctx, m.db)

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
// sequence index ascending.
func (m *MySQLAuditRepository) ReadRange(ctx context.Context, from, to uint64) ([]*auditDomain.AuditEntry, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT sequence_index, actor, action, subject_key, before_digest, after_digest, reason, created_at, entry_hash, prev_entry_hash
			  FROM audit_entries
			  WHERE sequence_index >= ? AND sequence_index < ?
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
