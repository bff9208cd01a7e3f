package usecase

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	alertsDomain "github.com/keyfold/keyfold/internal/alerts/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testEvent() alertsDomain.Event {
	return alertsDomain.Event{
		Kind:      alertsDomain.KindDecryptFailed,
		Severity:  alertsDomain.SeverityCritical,
		Principal: "merchant-42",
		Detail:    "decryption failed",
		CreatedAt: time.Now().UTC(),
	}
}

func TestLogDispatcher_Dispatch(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	dispatcher := NewLogDispatcher(logger)

	dispatcher.Dispatch(context.Background(), testEvent())

	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"kind":"decrypt-failed"`)
	assert.Contains(t, out, `"principal":"merchant-42"`)
}

// recordingDispatcher captures dispatched events for assertions.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []alertsDomain.Event
}

func (r *recordingDispatcher) Dispatch(_ context.Context, event alertsDomain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingDispatcher) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestAsyncDispatcher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	t.Run("delivers queued events before close", func(t *testing.T) {
		rec := &recordingDispatcher{}
		dispatcher := NewAsyncDispatcher(rec, logger, 8)

		for range 5 {
			dispatcher.Dispatch(context.Background(), testEvent())
		}
		dispatcher.Close()

		require.Equal(t, 5, rec.len())
		assert.Equal(t, uint64(0), dispatcher.Dropped())
	})

	t.Run("drops events after close instead of panicking", func(t *testing.T) {
		rec := &recordingDispatcher{}
		dispatcher := NewAsyncDispatcher(rec, logger, 8)
		dispatcher.Close()

		dispatcher.Dispatch(context.Background(), testEvent())
		assert.Equal(t, uint64(1), dispatcher.Dropped())
		assert.Equal(t, 0, rec.len())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		dispatcher := NewAsyncDispatcher(&recordingDispatcher{}, logger, 1)
		dispatcher.Close()
		dispatcher.Close()
	})
}
