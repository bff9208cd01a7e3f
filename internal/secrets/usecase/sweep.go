package usecase

import (
	"context"
	"time"

	auditDomain "github.com/keyfold/keyfold/internal/audit/domain"
	auditUseCase "github.com/keyfold/keyfold/internal/audit/usecase"
)

// sweepBatchSize caps the versions fetched per sweep pass.
const sweepBatchSize = 500

// SweepExpired deactivates every active version past its expiry deadline.
// Each version is swept in its own transaction together with an expire audit
// entry. Versions are processed sequentially: audit entries extend a single
// hash chain, so parallel sweep transactions would only conflict on the
// sequence index. A version already rotated or deleted by a concurrent
// writer is skipped, not an error.
func (s *secretManager) SweepExpired(ctx context.Context, actor string, now time.Time) (int, error) {
	expired, err := s.secretRepo.ListExpired(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, secret := range expired {
		err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
			if err := s.secretRepo.Deactivate(txCtx, secret.Principal, secret.Type, secret.Version, now); err != nil {
				return err
			}
			_, err := s.recorder.Append(txCtx, auditUseCase.AppendInput{
				Actor:        actor,
				Action:       auditDomain.ActionExpire,
				SubjectKey:   secret.SubjectKey(),
				BeforeDigest: auditDomain.Digest([]byte(secret.Envelope)),
				Reason:       "expiry deadline passed",
			})
			return err
		})
		if err != nil {
			if retryableConflict(err) {
				continue
			}
			return swept, err
		}
		swept++
	}

	return swept, nil
}
