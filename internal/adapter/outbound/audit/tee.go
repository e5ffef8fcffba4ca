package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/Sentinel-Gate/acp-gate/internal/domain/audit"
)

// TeeSink writes every entry to a primary sink and, best-effort, to the
// queryable SQLite supplement. The supplement is never load-bearing: a
// failure there is logged and otherwise ignored, matching spec.md's
// SQLite-supplement invariant that Append still succeeds via the primary.
type TeeSink struct {
	primary   audit.Sink
	secondary *SQLiteQueryStore
	logger    *slog.Logger
}

// NewTeeSink builds a TeeSink. secondary may be nil, in which case Append
// behaves exactly like primary alone.
func NewTeeSink(primary audit.Sink, secondary *SQLiteQueryStore, logger *slog.Logger) *TeeSink {
	return &TeeSink{primary: primary, secondary: secondary, logger: logger}
}

// Append writes to the primary sink first; its error is authoritative.
func (t *TeeSink) Append(ctx context.Context, entries ...audit.Entry) error {
	if err := t.primary.Append(ctx, entries...); err != nil {
		return err
	}
	if t.secondary == nil {
		return nil
	}
	if err := t.secondary.Append(ctx, entries...); err != nil {
		t.logger.Warn("audit query supplement append failed", "error", err)
	}
	return nil
}

// Flush flushes the primary sink and, best-effort, the supplement.
func (t *TeeSink) Flush(ctx context.Context) error {
	if err := t.primary.Flush(ctx); err != nil {
		return err
	}
	if t.secondary != nil {
		if err := t.secondary.Flush(ctx); err != nil {
			t.logger.Warn("audit query supplement flush failed", "error", err)
		}
	}
	return nil
}

// Close closes the primary sink and the supplement and returns the
// primary's error; a supplement close error is only logged.
func (t *TeeSink) Close() error {
	primaryErr := t.primary.Close()
	if t.secondary != nil {
		if err := t.secondary.Close(); err != nil {
			t.logger.Warn("audit query supplement close failed", "error", err)
		}
	}
	return primaryErr
}

// Query delegates to the supplement when present, otherwise falls back to
// the primary sink's own QueryStore implementation (e.g. FileStore).
func (t *TeeSink) Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	if t.secondary != nil {
		return t.secondary.Query(ctx, filter)
	}
	if qs, ok := t.primary.(audit.QueryStore); ok {
		return qs.Query(ctx, filter)
	}
	return nil, nil
}

// Stats delegates like Query.
func (t *TeeSink) Stats(ctx context.Context, start, end time.Time) (audit.Stats, error) {
	if t.secondary != nil {
		return t.secondary.Stats(ctx, start, end)
	}
	if qs, ok := t.primary.(audit.QueryStore); ok {
		return qs.Stats(ctx, start, end)
	}
	return audit.Stats{}, nil
}

var (
	_ audit.Sink       = (*TeeSink)(nil)
	_ audit.QueryStore = (*TeeSink)(nil)
)
