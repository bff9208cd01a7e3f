// Package usecase provides alert dispatching. Dispatch is best-effort: a
// failed or dropped alert never fails the operation that raised it.
package usecase

import (
	"context"
	"log/slog"

	alertsDomain "github.com/keyfold/keyfold/internal/alerts/domain"
)

// Dispatcher delivers security alert events.
type Dispatcher interface {
	Dispatch(ctx context.Context, event alertsDomain.Event)
}

// logDispatcher writes alerts to the structured log.
type logDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher creates a dispatcher that emits alerts via slog.
func NewLogDispatcher(logger *slog.Logger) Dispatcher {
	return &logDispatcher{logger: logger}
}

// Dispatch logs the event at a level matching its severity.
func (l *logDispatcher) Dispatch(ctx context.Context, event alertsDomain.Event) {
	level := slog.LevelInfo
	switch event.Severity {
	case alertsDomain.SeverityWarning:
		level = slog.LevelWarn
	case alertsDomain.SeverityCritical:
		level = slog.LevelError
	}

	l.logger.LogAttrs(
		ctx,
		level,
		"security alert",
		slog.String("kind", string(event.Kind)),
		slog.String("severity", string(event.Severity)),
		slog.String("principal", event.Principal),
		slog.String("detail", event.Detail),
		slog.Time("created_at", event.CreatedAt),
	)
}
