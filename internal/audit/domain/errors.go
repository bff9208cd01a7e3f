package domain

import "github.com/keyfold/keyfold/internal/errors"

var (
	// ErrAuditWriteFailed aborts the surrounding operation: a secret mutation
	// whose audit entry cannot be persisted must not take effect.
	ErrAuditWriteFailed = errors.Wrap(errors.ErrInternal, "audit entry could not be written")
	// ErrSequenceConflict marks a lost race on the chain tail: another
	// appender claimed the sequence index first. Retryable, unlike
	// ErrAuditWriteFailed.
	ErrSequenceConflict = errors.Wrap(errors.ErrConflict, "audit chain sequence conflict")
	// ErrReasonRequired rejects a protected configuration mutation submitted
	// without justification text.
	ErrReasonRequired = errors.Wrap(errors.ErrInvalidInput, "a reason is required for this change")
	// ErrEntryNotFound signals a missing audit entry for a requested range.
	ErrEntryNotFound = errors.Wrap(errors.ErrNotFound, "audit entry not found")
)
