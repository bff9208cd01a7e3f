package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	secretsDomain "github.com/keyfold/keyfold/internal/secrets/domain"
)

// recordingMetrics captures recorded operations for assertions.
type recordingMetrics struct {
	mu         sync.Mutex
	operations []string
	statuses   []string
	durations  int
}

func (r *recordingMetrics) RecordOperation(_ context.Context, domain, operation, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, domain+"/"+operation)
	r.statuses = append(r.statuses, status)
}

func (r *recordingMetrics) RecordDuration(_ context.Context, _, _ string, _ time.Duration, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations++
}

func TestSecretManagerWithMetrics(t *testing.T) {
	ctx := context.Background()

	t.Run("records success and error statuses", func(t *testing.T) {
		env := newTestEnv(t)
		recorded := &recordingMetrics{}
		manager := NewSecretManagerWithMetrics(env.manager, recorded)

		_, err := manager.Store(ctx, storeInput())
		require.NoError(t, err)

		// Duplicate store fails and is recorded as an error
		_, err = manager.Store(ctx, storeInput())
		require.Error(t, err)

		_, err = manager.Load(ctx, "svc-billing", "merchant-42", secretsDomain.TypeWebhook)
		require.NoError(t, err)

		assert.Equal(t, []string{"secrets/store", "secrets/store", "secrets/load"}, recorded.operations)
		assert.Equal(t, []string{"success", "error", "success"}, recorded.statuses)
		assert.Equal(t, 3, recorded.durations)
	})

	t.Run("covers the full lifecycle", func(t *testing.T) {
		env := newTestEnv(t)
		recorded := &recordingMetrics{}
		manager := NewSecretManagerWithMetrics(env.manager, recorded)

		_, err := manager.Store(ctx, storeInput())
		require.NoError(t, err)
		_, err = manager.Rotate(ctx, RotateInput{
			Actor:     "svc-billing",
			Principal: "merchant-42",
			Type:      secretsDomain.TypeWebhook,
			Plaintext: []byte("replacement"),
		})
		require.NoError(t, err)
		_, err = manager.ListActive(ctx, "merchant-42")
		require.NoError(t, err)
		err = manager.Delete(ctx, "svc-billing", "merchant-42", secretsDomain.TypeWebhook)
		require.NoError(t, err)
		_, err = manager.Purge(ctx, "svc-billing", "merchant-42", secretsDomain.TypeWebhook, "cleanup")
		require.NoError(t, err)
		_, err = manager.SweepExpired(ctx, "system", time.Now().UTC())
		require.NoError(t, err)

		assert.Equal(t, []string{
			"secrets/store",
			"secrets/rotate",
			"secrets/list_active",
			"secrets/delete",
			"secrets/purge",
			"secrets/sweep_expired",
		}, recorded.operations)
	})
}
