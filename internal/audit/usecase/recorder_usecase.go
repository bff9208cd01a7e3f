package usecase

import (
	"context"
	"strings"
	"time"

	auditDomain "github.com/keyfold/keyfold/internal/audit/domain"
	auditService "github.com/keyfold/keyfold/internal/audit/service"
	apperrors "github.com/keyfold/keyfold/internal/errors"
)

// recorderUseCase appends hash-chained entries. It reads the current tail and
// writes the new entry through the same transactional context, so two
// concurrent appends at the same position conflict on the unique sequence
// index and one of them aborts.
type recorderUseCase struct {
	auditRepo AuditRepository
	hasher    auditService.ChainHasher
}

// NewRecorder creates the audit chain recorder.
func NewRecorder(auditRepo AuditRepository, hasher auditService.ChainHasher) Recorder {
	return &recorderUseCase{auditRepo: auditRepo, hasher: hasher}
}

// Append assigns the next sequence index, links the entry to the current tail
// and persists it. A lost race on the sequence index passes through as
// ErrSequenceConflict so the caller can rerun the whole operation; every
// other persistence failure is surfaced as ErrAuditWriteFailed so the
// surrounding operation rolls back.
func (r *recorderUseCase) Append(ctx context.Context, input AppendInput) (*auditDomain.AuditEntry, error) {
	var sequenceIndex uint64
	prevHash := auditDomain.GenesisHash()

	last, err := r.auditRepo.GetLast(ctx)
	switch {
	case err == nil:
		sequenceIndex = last.SequenceIndex + 1
		prevHash = last.EntryHash
	case apperrors.Is(err, auditDomain.ErrEntryNotFound):
		// Empty chain, entry 0 links to the genesis constant.
	default:
		return nil, apperrors.Wrap(auditDomain.ErrAuditWriteFailed, err.Error())
	}

	entry := &auditDomain.AuditEntry{
		SequenceIndex: sequenceIndex,
		Actor:         input.Actor,
		Action:        input.Action,
		SubjectKey:    input.SubjectKey,
		BeforeDigest:  orNoDigest(input.BeforeDigest),
		AfterDigest:   orNoDigest(input.AfterDigest),
		Reason:        input.Reason,
		// Both storage schemas persist created_at at microsecond precision;
		// the hashed timestamp must match what a later read returns.
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
		PrevEntryHash: prevHash,
	}
	entry.EntryHash = r.hasher.EntryHash(entry)

	if err := r.auditRepo.Append(ctx, entry); err != nil {
		if apperrors.Is(err, auditDomain.ErrSequenceConflict) {
			return nil, err
		}
		return nil, apperrors.Wrap(auditDomain.ErrAuditWriteFailed, err.Error())
	}

	return entry, nil
}

// RecordConfigChange validates the protected-key rule before appending a
// config-update entry. The guard runs first: a blank reason on a protected
// key never reaches the chain.
func (r *recorderUseCase) RecordConfigChange(
	ctx context.Context,
	actor, key string,
	before, after []byte,
	reason string,
) (*auditDomain.AuditEntry, error) {
	if auditDomain.IsProtectedConfigKey(key) && strings.TrimSpace(reason) == "" {
		return nil, auditDomain.ErrReasonRequired
	}

	input := AppendInput{
		Actor:      actor,
		Action:     auditDomain.ActionConfigUpdate,
		SubjectKey: key,
		Reason:     reason,
	}
	if before != nil {
		input.BeforeDigest = auditDomain.Digest(before)
	}
	if after != nil {
		input.AfterDigest = auditDomain.Digest(after)
	}

	return r.Append(ctx, input)
}

func orNoDigest(digest string) string {
	if digest == "" {
		return auditDomain.NoDigest
	}
	return digest
}
