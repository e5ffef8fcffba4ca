// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Sentinel-Gate/acp-gate/internal/domain/action"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/audit"
)

const defaultRecentCap = 1000

// AuditStore implements audit.Sink and audit.QueryStore writing entries as
// JSON lines to an io.Writer (stdout by default) and keeping a bounded
// in-memory ring buffer for ad-hoc queries. Useful for local runs and tests
// where a file-rotated sink would be overkill.
type AuditStore struct {
	encoder *json.Encoder
	writer  io.Writer
	mu      sync.Mutex
	recent  []audit.Entry
	cap     int
}

func resolveCapacity(capacity ...int) int {
	if len(capacity) > 0 && capacity[0] > 0 {
		return capacity[0]
	}
	return defaultRecentCap
}

// NewAuditStore creates an audit store writing to stdout.
func NewAuditStore(capacity ...int) *AuditStore {
	c := resolveCapacity(capacity...)
	return &AuditStore{
		encoder: json.NewEncoder(os.Stdout),
		writer:  os.Stdout,
		recent:  make([]audit.Entry, 0, c),
		cap:     c,
	}
}

// NewAuditStoreWithWriter creates an audit store writing to the given writer.
func NewAuditStoreWithWriter(w io.Writer, capacity ...int) *AuditStore {
	c := resolveCapacity(capacity...)
	return &AuditStore{
		encoder: json.NewEncoder(w),
		writer:  w,
		recent:  make([]audit.Entry, 0, c),
		cap:     c,
	}
}

// Append writes each entry as a JSON line and records it in the ring buffer.
func (s *AuditStore) Append(_ context.Context, entries ...audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if err := s.encoder.Encode(e); err != nil {
			return err
		}
		if len(s.recent) >= s.cap {
			copy(s.recent, s.recent[1:])
			s.recent[len(s.recent)-1] = e
		} else {
			s.recent = append(s.recent, e)
		}
	}
	return nil
}

// Flush is a no-op: this store does not buffer beyond the per-Append write.
func (s *AuditStore) Flush(_ context.Context) error {
	return nil
}

// Close closes the underlying writer if it is a non-standard file.
func (s *AuditStore) Close() error {
	if f, ok := s.writer.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Close()
	}
	return nil
}

// Query filters the in-memory ring buffer, newest first.
func (s *AuditStore) Query(_ context.Context, filter audit.Filter) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var result []audit.Entry
	for i := len(s.recent) - 1; i >= 0 && len(result) < limit; i-- {
		e := s.recent[i]
		if !filter.StartTime.IsZero() && e.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && e.Timestamp.After(filter.EndTime) {
			continue
		}
		if filter.Decision != "" && !strings.EqualFold(filter.Decision, string(e.Decision)) {
			continue
		}
		if filter.ToolName != "" && filter.ToolName != e.Action.Name {
			continue
		}
		result = append(result, e)
	}

	return result, nil
}

// Stats aggregates the in-memory buffer over the given time range.
func (s *AuditStore) Stats(_ context.Context, start, end time.Time) (audit.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := audit.Stats{ByTool: map[string]int64{}}
	for _, e := range s.recent {
		if !start.IsZero() && e.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && e.Timestamp.After(end) {
			continue
		}
		stats.TotalCalls++
		if e.Decision == action.DecisionAllow {
			stats.Allowed++
		} else {
			stats.Denied++
		}
		stats.ByTool[e.Action.Name]++
	}
	return stats, nil
}

// Compile-time interface verification.
var (
	_ audit.Sink       = (*AuditStore)(nil)
	_ audit.QueryStore = (*AuditStore)(nil)
)
