package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	alertsDomain "github.com/keyfold/keyfold/internal/alerts/domain"
	alertsUseCase "github.com/keyfold/keyfold/internal/alerts/usecase"
	auditDomain "github.com/keyfold/keyfold/internal/audit/domain"
	auditUseCase "github.com/keyfold/keyfold/internal/audit/usecase"
	cryptoDomain "github.com/keyfold/keyfold/internal/crypto/domain"
	cryptoService "github.com/keyfold/keyfold/internal/crypto/service"
	"github.com/keyfold/keyfold/internal/database"
	apperrors "github.com/keyfold/keyfold/internal/errors"
	secretsDomain "github.com/keyfold/keyfold/internal/secrets/domain"
	secretsService "github.com/keyfold/keyfold/internal/secrets/service"
	appvalidation "github.com/keyfold/keyfold/internal/validation"
)

// maxPlaintextSize bounds stored secret material.
const maxPlaintextSize = 64 * 1024

// secretManager implements SecretManager.
type secretManager struct {
	txManager   database.TxManager
	secretRepo  SecretRepository
	recorder    auditUseCase.Recorder
	deriver     cryptoService.KeyDeriver
	aeadManager cryptoService.AEADManager
	limiter     secretsService.AttemptLimiter
	dispatcher  alertsUseCase.Dispatcher
	logger      *slog.Logger
}

// NewSecretManager creates the secret lifecycle use case.
func NewSecretManager(
	txManager database.TxManager,
	secretRepo SecretRepository,
	recorder auditUseCase.Recorder,
	deriver cryptoService.KeyDeriver,
	aeadManager cryptoService.AEADManager,
	limiter secretsService.AttemptLimiter,
	dispatcher alertsUseCase.Dispatcher,
	logger *slog.Logger,
) SecretManager {
	return &secretManager{
		txManager:   txManager,
		secretRepo:  secretRepo,
		recorder:    recorder,
		deriver:     deriver,
		aeadManager: aeadManager,
		limiter:     limiter,
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

// Store encrypts and persists a new secret. Key derivation and encryption run
// before the transaction opens; the transaction persists the version, its
// audit entry, and retires an unswept expired predecessor if one remains.
func (s *secretManager) Store(ctx context.Context, input StoreInput) (*secretsDomain.Metadata, error) {
	if err := validateWriteInput(input.Actor, input.Principal, input.Type, input.Plaintext); err != nil {
		return nil, err
	}
	if !input.Origin.Valid() {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "unknown source origin")
	}

	metadata, err := s.storeOnce(ctx, input)
	if err != nil && retryableConflict(err) {
		// A racing writer took the version slot or the audit tail; one retry
		// against the fresh state, then the conflict is surfaced.
		metadata, err = s.storeOnce(ctx, input)
	}
	return metadata, err
}

func (s *secretManager) storeOnce(ctx context.Context, input StoreInput) (*secretsDomain.Metadata, error) {
	var retires *secretsDomain.Secret
	current, err := s.secretRepo.GetActive(ctx, input.Principal, input.Type)
	switch {
	case err == nil:
		// An active version past its deadline reads as absent; the store
		// retires it in the same transaction that inserts the replacement.
		if !current.Expired(time.Now().UTC()) {
			return nil, secretsDomain.ErrSecretAlreadyExists
		}
		retires = current
	case !apperrors.Is(err, apperrors.ErrNotFound):
		return nil, err
	}

	return s.insertNewVersion(ctx, newVersionInput{
		actor:     input.Actor,
		principal: input.Principal,
		typ:       input.Type,
		origin:    input.Origin,
		plaintext: input.Plaintext,
		algorithm: input.Algorithm,
		expiresAt: input.ExpiresAt,
		action:    auditDomain.ActionCreate,
		retires:   retires,
	})
}

// Load decrypts the active version. The throttle gate runs before any
// storage or cryptographic work.
func (s *secretManager) Load(ctx context.Context, actor, principal string, secretType secretsDomain.SecretType) ([]byte, error) {
	if err := validateSubject(actor, principal, secretType); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if allowed, retryAfter := s.limiter.Allow(principal, now); !allowed {
		s.logger.WarnContext(ctx, "read throttled",
			slog.String("principal", principal),
			slog.Duration("retry_after", retryAfter),
		)
		return nil, secretsDomain.ErrThrottled
	}

	subjectKey := secretsDomain.SubjectKey(principal, secretType)

	secret, err := s.secretRepo.GetActive(ctx, principal, secretType)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			s.recordReadFailure(ctx, actor, subjectKey, "not found")
			return nil, secretsDomain.ErrSecretNotFound
		}
		return nil, err
	}

	// Lazy expiration: a version past its deadline reads as absent.
	if secret.Expired(now) {
		s.recordReadFailure(ctx, actor, subjectKey, "expired")
		return nil, secretsDomain.ErrSecretNotFound
	}

	plaintext, err := s.decryptSecret(secret)
	if err != nil {
		if apperrors.Is(err, cryptoDomain.ErrAuthenticationFailed) {
			s.handleDecryptFailure(ctx, actor, principal, subjectKey, now)
		}
		return nil, err
	}

	s.limiter.Reset(principal)

	err = s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.secretRepo.TouchLastAccessed(txCtx, secret.ID, now); err != nil {
			return err
		}
		_, err := s.recorder.Append(txCtx, auditUseCase.AppendInput{
			Actor:        actor,
			Action:       auditDomain.ActionRead,
			SubjectKey:   subjectKey,
			BeforeDigest: auditDomain.Digest([]byte(secret.Envelope)),
			AfterDigest:  auditDomain.Digest([]byte(secret.Envelope)),
		})
		return err
	})
	if err != nil {
		cryptoDomain.Zero(plaintext)
		return nil, err
	}

	return plaintext, nil
}

// Rotate supersedes the active version and inserts its replacement in one
// transaction. The compare-and-swap on the old version's active flag makes
// exactly one of two concurrent rotations win; the loser retries once
// against the fresh state before surfacing ErrConcurrentModification.
func (s *secretManager) Rotate(ctx context.Context, input RotateInput) (*secretsDomain.Metadata, error) {
	if err := validateWriteInput(input.Actor, input.Principal, input.Type, input.Plaintext); err != nil {
		return nil, err
	}
	if input.Origin != "" && !input.Origin.Valid() {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "unknown source origin")
	}

	metadata, err := s.rotateOnce(ctx, input)
	if err != nil && retryableConflict(err) {
		metadata, err = s.rotateOnce(ctx, input)
	}
	return metadata, err
}

func (s *secretManager) rotateOnce(ctx context.Context, input RotateInput) (*secretsDomain.Metadata, error) {
	current, err := s.secretRepo.GetActive(ctx, input.Principal, input.Type)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, secretsDomain.ErrSecretNotFound
		}
		return nil, err
	}

	// An expired version reads as absent; there is nothing to rotate.
	if current.Expired(time.Now().UTC()) {
		return nil, secretsDomain.ErrSecretNotFound
	}

	origin := input.Origin
	if origin == "" {
		origin = current.Origin
	}

	return s.insertNewVersion(ctx, newVersionInput{
		actor:      input.Actor,
		principal:  input.Principal,
		typ:        input.Type,
		origin:     origin,
		plaintext:  input.Plaintext,
		algorithm:  input.Algorithm,
		expiresAt:  input.ExpiresAt,
		action:     auditDomain.ActionRotate,
		supersedes: current,
	})
}

// Delete deactivates the active version. Absent, already-deleted and expired
// secrets make this a no-op.
func (s *secretManager) Delete(ctx context.Context, actor, principal string, secretType secretsDomain.SecretType) error {
	if err := validateSubject(actor, principal, secretType); err != nil {
		return err
	}

	err := s.deleteOnce(ctx, actor, principal, secretType)
	if err != nil && retryableConflict(err) {
		err = s.deleteOnce(ctx, actor, principal, secretType)
	}
	return err
}

func (s *secretManager) deleteOnce(ctx context.Context, actor, principal string, secretType secretsDomain.SecretType) error {
	current, err := s.secretRepo.GetActive(ctx, principal, secretType)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}

	now := time.Now().UTC()

	// An expired version already reads as absent; the sweep retires it.
	if current.Expired(now) {
		return nil
	}

	return s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.secretRepo.Deactivate(txCtx, principal, secretType, current.Version, now); err != nil {
			return err
		}
		_, err := s.recorder.Append(txCtx, auditUseCase.AppendInput{
			Actor:        actor,
			Action:       auditDomain.ActionDelete,
			SubjectKey:   current.SubjectKey(),
			BeforeDigest: auditDomain.Digest([]byte(current.Envelope)),
		})
		return err
	})
}

// Purge physically erases all soft-deleted versions for the subject. The
// reason is mandatory because the erasure is irreversible.
func (s *secretManager) Purge(ctx context.Context, actor, principal string, secretType secretsDomain.SecretType, reason string) (int64, error) {
	if err := validateSubject(actor, principal, secretType); err != nil {
		return 0, err
	}
	if err := appvalidation.WrapValidationError(validation.Validate(reason, validation.Required, appvalidation.NotBlank)); err != nil {
		return 0, err
	}

	var purged int64
	err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		purged, err = s.secretRepo.Purge(txCtx, principal, secretType)
		if err != nil {
			return err
		}
		_, err = s.recorder.Append(txCtx, auditUseCase.AppendInput{
			Actor:      actor,
			Action:     auditDomain.ActionPurge,
			SubjectKey: secretsDomain.SubjectKey(principal, secretType),
			Reason:     fmt.Sprintf("%s (%d versions erased)", reason, purged),
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	return purged, nil
}

// ListActive returns metadata only. Expired-but-unswept versions are
// filtered out here, matching what Load would serve.
func (s *secretManager) ListActive(ctx context.Context, principal string) ([]secretsDomain.Metadata, error) {
	if err := appvalidation.WrapValidationError(validation.Validate(principal, validation.Required, appvalidation.NotBlank, appvalidation.NoWhitespace)); err != nil {
		return nil, err
	}

	secrets, err := s.secretRepo.ListActive(ctx, principal)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := make([]secretsDomain.Metadata, 0, len(secrets))
	for _, secret := range secrets {
		if secret.Expired(now) {
			continue
		}
		result = append(result, secret.Metadata())
	}

	return result, nil
}

// newVersionInput gathers everything insertNewVersion needs. When supersedes
// is set the old version is deactivated in the same transaction.
type newVersionInput struct {
	actor      string
	principal  string
	typ        secretsDomain.SecretType
	origin     secretsDomain.SourceOrigin
	plaintext  []byte
	algorithm  cryptoDomain.Algorithm
	expiresAt  *time.Time
	action     auditDomain.Action
	supersedes *secretsDomain.Secret
	// retires is an expired active version retired in the same transaction.
	retires *secretsDomain.Secret
}

func (s *secretManager) insertNewVersion(ctx context.Context, input newVersionInput) (*secretsDomain.Metadata, error) {
	algorithm := input.algorithm
	if algorithm == "" {
		algorithm = cryptoDomain.AESGCM
	}

	// Derivation and encryption are the slow path; they run outside the
	// transaction so database locks are held only for the writes.
	salt, err := s.deriver.GenerateSalt()
	if err != nil {
		return nil, err
	}

	key, err := s.deriver.Derive(input.principal, salt, s.deriver.ParamsVersion())
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(key)

	cipher, err := s.aeadManager.CreateCipher(key, algorithm)
	if err != nil {
		return nil, err
	}

	subjectKey := secretsDomain.SubjectKey(input.principal, input.typ)
	envelope, err := cipher.Encrypt(input.plaintext, []byte(subjectKey))
	if err != nil {
		return nil, err
	}

	latest, err := s.secretRepo.GetLatestVersion(ctx, input.principal, input.typ)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	secret := &secretsDomain.Secret{
		ID:                uuid.Must(uuid.NewV7()),
		Principal:         input.principal,
		Type:              input.typ,
		Origin:            input.origin,
		Version:           latest + 1,
		Envelope:          envelope.Encode(),
		Salt:              salt,
		KDFParamsVersion:  s.deriver.ParamsVersion(),
		PepperFingerprint: s.deriver.PepperFingerprint(),
		Algorithm:         algorithm,
		IsActive:          true,
		CreatedAt:         now,
		ExpiresAt:         input.expiresAt,
	}

	audit := auditUseCase.AppendInput{
		Actor:       input.actor,
		Action:      input.action,
		SubjectKey:  subjectKey,
		AfterDigest: auditDomain.Digest([]byte(secret.Envelope)),
	}
	if input.supersedes != nil {
		secret.LastRotatedAt = &now
		audit.BeforeDigest = auditDomain.Digest([]byte(input.supersedes.Envelope))
		audit.Reason = fmt.Sprintf("version %d superseded by version %d", input.supersedes.Version, secret.Version)
	}

	err = s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if input.retires != nil {
			if err := s.secretRepo.Deactivate(txCtx, input.principal, input.typ, input.retires.Version, now); err != nil {
				return err
			}
			if _, err := s.recorder.Append(txCtx, auditUseCase.AppendInput{
				Actor:        input.actor,
				Action:       auditDomain.ActionExpire,
				SubjectKey:   subjectKey,
				BeforeDigest: auditDomain.Digest([]byte(input.retires.Envelope)),
				Reason:       "expiry deadline passed",
			}); err != nil {
				return err
			}
		}
		if input.supersedes != nil {
			if err := s.secretRepo.Supersede(txCtx, input.principal, input.typ, input.supersedes.Version); err != nil {
				return err
			}
		}
		if err := s.secretRepo.InsertVersion(txCtx, secret); err != nil {
			return err
		}
		_, err := s.recorder.Append(txCtx, audit)
		return err
	})
	if err != nil {
		return nil, err
	}

	metadata := secret.Metadata()
	return &metadata, nil
}

// retryableConflict reports whether the operation lost a race it can rerun:
// a moved active-version pointer or a taken audit sequence index.
func retryableConflict(err error) bool {
	return apperrors.Is(err, secretsDomain.ErrConcurrentModification) ||
		apperrors.Is(err, auditDomain.ErrSequenceConflict)
}

// decryptSecret resolves derivation parameters from the stored version, never
// from current configuration, so parameter upgrades cannot orphan old data.
func (s *secretManager) decryptSecret(secret *secretsDomain.Secret) ([]byte, error) {
	// The recorded fingerprint pins the pepper the same way KDFParamsVersion
	// pins the iteration parameters. A mismatch is a deployment problem, not
	// an authentication failure.
	if secret.PepperFingerprint != s.deriver.PepperFingerprint() {
		return nil, apperrors.Wrap(cryptoDomain.ErrConfiguration,
			"configured pepper does not match the pepper this secret was derived under")
	}

	key, err := s.deriver.Derive(secret.Principal, secret.Salt, secret.KDFParamsVersion)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(key)

	cipher, err := s.aeadManager.CreateCipher(key, secret.Algorithm)
	if err != nil {
		return nil, err
	}

	envelope, err := cryptoDomain.ParseEnvelope(secret.Envelope)
	if err != nil {
		return nil, err
	}

	return cipher.Decrypt(envelope, []byte(secret.SubjectKey()))
}

// recordReadFailure appends a failed read to the chain in its own
// transaction; the failed load itself has nothing else to persist.
func (s *secretManager) recordReadFailure(ctx context.Context, actor, subjectKey, reason string) {
	err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		_, err := s.recorder.Append(txCtx, auditUseCase.AppendInput{
			Actor:      actor,
			Action:     auditDomain.ActionRead,
			SubjectKey: subjectKey,
			Reason:     reason,
		})
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record read failure",
			slog.String("subject_key", subjectKey),
			slog.String("error", err.Error()),
		)
	}
}

// handleDecryptFailure audits the failure, counts it against the throttle and
// raises an alert. The caller still returns ErrAuthenticationFailed with no
// further detail.
func (s *secretManager) handleDecryptFailure(ctx context.Context, actor, principal, subjectKey string, now time.Time) {
	s.recordReadFailure(ctx, actor, subjectKey, "decryption failed")

	locked := s.limiter.RecordFailure(principal, now)

	s.dispatcher.Dispatch(ctx, alertsDomain.Event{
		Kind:      alertsDomain.KindDecryptFailed,
		Severity:  alertsDomain.SeverityCritical,
		Principal: principal,
		Detail:    "authentication failed for " + subjectKey,
		CreatedAt: now,
	})
	if locked {
		s.dispatcher.Dispatch(ctx, alertsDomain.Event{
			Kind:      alertsDomain.KindThrottled,
			Severity:  alertsDomain.SeverityWarning,
			Principal: principal,
			Detail:    "reads locked after repeated decryption failures",
			CreatedAt: now,
		})
	}
}

func validateSubject(actor, principal string, secretType secretsDomain.SecretType) error {
	if err := appvalidation.WrapValidationError(validation.Validate(actor, validation.Required, appvalidation.NotBlank)); err != nil {
		return err
	}
	if err := appvalidation.WrapValidationError(validation.Validate(principal, validation.Required, appvalidation.NotBlank, appvalidation.NoWhitespace)); err != nil {
		return err
	}
	if !secretType.Valid() {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "unknown secret type")
	}
	return nil
}

func validateWriteInput(actor, principal string, secretType secretsDomain.SecretType, plaintext []byte) error {
	if err := validateSubject(actor, principal, secretType); err != nil {
		return err
	}
	if len(plaintext) == 0 {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "plaintext must not be empty")
	}
	if err := appvalidation.WrapValidationError(validation.Validate(plaintext, appvalidation.MaxBytes(maxPlaintextSize))); err != nil {
		return err
	}
	return nil
}
