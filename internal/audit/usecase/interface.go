// Package usecase implements the append and verify business logic for the
// tamper-evident audit chain.
package usecase

import (
	"context"

	auditDomain "github.com/keyfold/keyfold/internal/audit/domain"
)

// AuditRepository defines the persistence operations for the audit chain.
type AuditRepository interface {
	Append(ctx context.Context, entry *auditDomain.AuditEntry) error
	GetLast(ctx context.Context) (*auditDomain.AuditEntry, error)
	ReadRange(ctx context.Context, from, to uint64) ([]*auditDomain.AuditEntry, error)
}

// AppendInput carries the caller-supplied fields of a new audit entry. The
// sequence index, timestamp and hashes are assigned by the recorder.
type AppendInput struct {
	Actor        string
	Action       auditDomain.Action
	SubjectKey   string
	BeforeDigest string
	AfterDigest  string
	Reason       string
}

// Recorder appends entries to the audit chain. Append is expected to run
// inside the caller's transaction so a failed audit write aborts the
// operation it records.
type Recorder interface {
	Append(ctx context.Context, input AppendInput) (*auditDomain.AuditEntry, error)
	// RecordConfigChange guards and records a configuration mutation. It
	// returns ErrReasonRequired, without appending anything, when key is a
	// protected configuration key and reason is blank.
	RecordConfigChange(ctx context.Context, actor, key string, before, after []byte, reason string) (*auditDomain.AuditEntry, error)
}

// Verifier re-checks chain integrity over a sequence range.
type Verifier interface {
	// VerifyChainIntegrity walks entries with from <= sequence_index < to,
	// recomputing every hash and link. It collects all violations instead of
	// stopping at the first.
	VerifyChainIntegrity(ctx context.Context, from, to uint64) (*auditDomain.IntegrityReport, error)
	// VerifyAll verifies the whole chain from genesis to the current tail.
	VerifyAll(ctx context.Context) (*auditDomain.IntegrityReport, error)
}
