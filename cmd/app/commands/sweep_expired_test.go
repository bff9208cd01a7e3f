package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	secretsDomain "github.com/keyfold/keyfold/internal/secrets/domain"
	secretsUseCase "github.com/keyfold/keyfold/internal/secrets/usecase"
)

// stubSecretManager satisfies SecretManager for command-level tests; only
// SweepExpired has behavior.
type stubSecretManager struct {
	swept int
	err   error
	actor string
}

func (s *stubSecretManager) Store(ctx context.Context, input secretsUseCase.StoreInput) (*secretsDomain.Metadata, error) {
	return nil, errors.New("not implemented")
}

func (s *stubSecretManager) Load(ctx context.Context, actor, principal string, secretType secretsDomain.SecretType) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *stubSecretManager) Rotate(ctx context.Context, input secretsUseCase.RotateInput) (*secretsDomain.Metadata, error) {
	return nil, errors.New("not implemented")
}

func (s *stubSecretManager) Delete(ctx context.Context, actor, principal string, secretType secretsDomain.SecretType) error {
	return errors.New("not implemented")
}

func (s *stubSecretManager) Purge(ctx context.Context, actor, principal string, secretType secretsDomain.SecretType, reason string) (int64, error) {
	return 0, errors.New("not implemented")
}

func (s *stubSecretManager) ListActive(ctx context.Context, principal string) ([]secretsDomain.Metadata, error) {
	return nil, errors.New("not implemented")
}

func (s *stubSecretManager) SweepExpired(ctx context.Context, actor string, now time.Time) (int, error) {
	s.actor = actor
	return s.swept, s.err
}

func TestRunSweepExpired(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("success-text", func(t *testing.T) {
		manager := &stubSecretManager{swept: 3}

		var out bytes.Buffer
		err := RunSweepExpired(ctx, manager, logger, &out, "system/sweeper", "text")
		require.NoError(t, err)
		require.Contains(t, out.String(), "Deactivated 3 expired secret version(s)")
		require.Equal(t, "system/sweeper", manager.actor)
	})

	t.Run("success-json", func(t *testing.T) {
		manager := &stubSecretManager{swept: 3}

		var out bytes.Buffer
		err := RunSweepExpired(ctx, manager, logger, &out, "system/sweeper", "json")
		require.NoError(t, err)

		var result map[string]interface{}
		err = json.Unmarshal(out.Bytes(), &result)
		require.NoError(t, err)
		require.Equal(t, float64(3), result["count"])
	})

	t.Run("empty-actor", func(t *testing.T) {
		err := RunSweepExpired(ctx, nil, logger, nil, "", "text")
		require.Error(t, err)
		require.Contains(t, err.Error(), "actor must not be empty")
	})

	t.Run("sweep-error", func(t *testing.T) {
		manager := &stubSecretManager{err: errors.New("connection refused")}

		err := RunSweepExpired(ctx, manager, logger, io.Discard, "system/sweeper", "text")
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to sweep expired secrets")
	})
}
