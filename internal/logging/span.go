package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span is one logical unit of work inside a request trace. It exists to
// stamp trace and span identifiers onto every log line emitted while it
// is open.
type Span struct {
	logger *slog.Logger
	start  time.Time
}

// StartSpan opens a span under the context's current trace, minting a
// trace id when none exists yet. The returned context carries a logger
// enriched with the span's identifiers.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx)
	current := traceFromContext(ctx)

	if current.traceID == "" {
		current.traceID = uuid.NewString()
		logger = logger.With(slog.String("trace_id", current.traceID))
	}
	if current.spanID != "" {
		logger = logger.With(slog.String("parent_span_id", current.spanID))
	}
	current.spanID = uuid.NewString()

	logger = logger.With(
		slog.String("span_id", current.spanID),
		slog.String("span_name", name),
	)

	ctx = WithLogger(withTrace(ctx, current), logger)

	return ctx, &Span{logger: logger, start: time.Now()}
}

// End emits the span's completion entry with its wall-clock duration.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.logger.Info("span completed", slog.Duration("duration", time.Since(s.start)))
}
