package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	provider, err := NewProvider()
	require.NoError(t, err)
	defer func() {
		_ = provider.Shutdown(context.Background())
	}()

	assert.NotNil(t, provider.MeterProvider())
	assert.NotNil(t, provider.Handler())
}

func TestProvider_HandlerServesRecordedMetrics(t *testing.T) {
	provider, err := NewProvider()
	require.NoError(t, err)
	defer func() {
		_ = provider.Shutdown(context.Background())
	}()

	business, err := NewBusinessMetrics(provider.MeterProvider(), "keyfold")
	require.NoError(t, err)

	ctx := context.Background()
	business.RecordOperation(ctx, "secrets", "store", "success")
	business.RecordOperation(ctx, "secrets", "load", "error")
	business.RecordDuration(ctx, "secrets", "load", 25*time.Millisecond, "error")

	recorder := httptest.NewRecorder()
	provider.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, recorder.Code)
	body, err := io.ReadAll(recorder.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "keyfold_operations_total")
	assert.Contains(t, string(body), "keyfold_operation_duration_seconds")
}

func TestNoOpBusinessMetrics(t *testing.T) {
	business := NewNoOpBusinessMetrics()
	business.RecordOperation(context.Background(), "secrets", "store", "success")
	business.RecordDuration(context.Background(), "secrets", "store", time.Second, "success")
}
