package audit

import (
	"context"
	"time"
)

// Sink is the durable append-only destination for audit entries. A crash
// after Append returns must not reorder or lose the entries it accepted.
type Sink interface {
	// Append stores entries. Must not block the caller on slow disks for
	// longer than necessary; implementations may buffer internally as long
	// as Flush/Close make pending writes durable.
	Append(ctx context.Context, entries ...Entry) error

	// Flush forces any buffered entries to storage.
	Flush(ctx context.Context) error

	// Close releases resources held by the sink.
	Close() error
}

// Filter narrows a query against the optional query-side store (§4 SPEC_FULL
// supplement). Every field is optional; a zero StartTime or EndTime leaves
// that side of the time range open.
type Filter struct {
	StartTime time.Time
	EndTime   time.Time
	Decision  string
	ToolName  string
	Limit     int
}

// Stats is an aggregate over a time range, used by the queryable audit
// supplement.
type Stats struct {
	TotalCalls int64
	Allowed    int64
	Denied     int64
	ByTool     map[string]int64
}

// QueryStore is the optional read-side port for the sqlite-backed audit
// supplement. It is never load-bearing for decide(): if unavailable, the
// gate continues to operate via Sink alone.
type QueryStore interface {
	Query(ctx context.Context, filter Filter) ([]Entry, error)
	Stats(ctx context.Context, start, end time.Time) (Stats, error)
}
