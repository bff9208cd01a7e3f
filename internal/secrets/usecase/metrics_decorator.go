package usecase

import (
	"context"
	"time"

	"github.com/keyfold/keyfold/internal/metrics"
	secretsDomain "github.com/keyfold/keyfold/internal/secrets/domain"
)

// secretManagerWithMetrics decorates SecretManager with metrics instrumentation.
type secretManagerWithMetrics struct {
	next    SecretManager
	metrics metrics.BusinessMetrics
}

// NewSecretManagerWithMetrics wraps a SecretManager with metrics recording.
func NewSecretManagerWithMetrics(manager SecretManager, m metrics.BusinessMetrics) SecretManager {
	return &secretManagerWithMetrics{
		next:    manager,
		metrics: m,
	}
}

func (s *secretManagerWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	s.metrics.RecordOperation(ctx, "secrets", operation, status)
	s.metrics.RecordDuration(ctx, "secrets", operation, time.Since(start), status)
}

// Store records metrics for secret creation.
func (s *secretManagerWithMetrics) Store(ctx context.Context, input StoreInput) (*secretsDomain.Metadata, error) {
	start := time.Now()
	metadata, err := s.next.Store(ctx, input)
	s.record(ctx, "store", start, err)
	return metadata, err
}

// Load records metrics for secret reads, including decryption failures.
func (s *secretManagerWithMetrics) Load(ctx context.Context, actor, principal string, secretType secretsDomain.SecretType) ([]byte, error) {
	start := time.Now()
	plaintext, err := s.next.Load(ctx, actor, principal, secretType)
	s.record(ctx, "load", start, err)
	return plaintext, err
}

// Rotate records metrics for secret rotation.
func (s *secretManagerWithMetrics) Rotate(ctx context.Context, input RotateInput) (*secretsDomain.Metadata, error) {
	start := time.Now()
	metadata, err := s.next.Rotate(ctx, input)
	s.record(ctx, "rotate", start, err)
	return metadata, err
}

// Delete records metrics for secret deactivation.
func (s *secretManagerWithMetrics) Delete(ctx context.Context, actor, principal string, secretType secretsDomain.SecretType) error {
	start := time.Now()
	err := s.next.Delete(ctx, actor, principal, secretType)
	s.record(ctx, "delete", start, err)
	return err
}

// Purge records metrics for physical erasure.
func (s *secretManagerWithMetrics) Purge(ctx context.Context, actor, principal string, secretType secretsDomain.SecretType, reason string) (int64, error) {
	start := time.Now()
	purged, err := s.next.Purge(ctx, actor, principal, secretType, reason)
	s.record(ctx, "purge", start, err)
	return purged, err
}

// ListActive records metrics for metadata listing.
func (s *secretManagerWithMetrics) ListActive(ctx context.Context, principal string) ([]secretsDomain.Metadata, error) {
	start := time.Now()
	result, err := s.next.ListActive(ctx, principal)
	s.record(ctx, "list_active", start, err)
	return result, err
}

// SweepExpired records metrics for expiry sweeps.
func (s *secretManagerWithMetrics) SweepExpired(ctx context.Context, actor string, now time.Time) (int, error) {
	start := time.Now()
	swept, err := s.next.SweepExpired(ctx, actor, now)
	s.record(ctx, "sweep_expired", start, err)
	return swept, err
}
