package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sentinel-Gate/acp-gate/internal/domain/action"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/audit"
)

func TestAuditStore_Append(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	buf := &bytes.Buffer{}
	store := NewAuditStoreWithWriter(buf)

	entry := audit.Entry{
		RequestID: "req-1",
		Action:    action.Action{Name: "test_tool", Kind: action.KindShell},
		Decision:  action.DecisionAllow,
		Timestamp: time.Now().UTC(),
	}

	if err := store.Append(ctx, entry); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	output := buf.String()
	if output == "" {
		t.Fatal("Append() did not write to buffer")
	}

	var decoded audit.Entry
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &decoded); err != nil {
		t.Fatalf("written output is not valid JSON: %v", err)
	}

	if decoded.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want %q", decoded.RequestID, "req-1")
	}
	if decoded.Action.Name != "test_tool" {
		t.Errorf("Action.Name = %q, want %q", decoded.Action.Name, "test_tool")
	}
}

func TestAuditStore_AppendMultiple(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	buf := &bytes.Buffer{}
	store := NewAuditStoreWithWriter(buf)

	entries := []audit.Entry{
		{RequestID: "req-1", Action: action.Action{Name: "tool_1"}, Decision: action.DecisionAllow, Timestamp: time.Now().UTC()},
		{RequestID: "req-2", Action: action.Action{Name: "tool_2"}, Decision: action.DecisionDeny, Timestamp: time.Now().UTC()},
		{RequestID: "req-3", Action: action.Action{Name: "tool_3"}, Decision: action.DecisionAllow, Timestamp: time.Now().UTC()},
	}

	if err := store.Append(ctx, entries...); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 JSON lines, got %d", len(lines))
	}

	for i, line := range lines {
		var decoded audit.Entry
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
		}
		expected := entries[i].RequestID
		if decoded.RequestID != expected {
			t.Errorf("line %d RequestID = %q, want %q", i, decoded.RequestID, expected)
		}
	}
}

func TestAuditStore_Flush(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	buf := &bytes.Buffer{}
	store := NewAuditStoreWithWriter(buf)

	if err := store.Append(ctx, audit.Entry{RequestID: "req-flush", Action: action.Action{Name: "flush_tool"}, Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	if err := store.Flush(ctx); err != nil {
		t.Errorf("Flush() error: %v (expected nil, flush is no-op)", err)
	}

	if buf.Len() == 0 {
		t.Error("buffer should still contain data after Flush()")
	}
}

func TestAuditStore_Close(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	store := NewAuditStoreWithWriter(buf)

	if err := store.Close(); err != nil {
		t.Errorf("Close() error: %v (expected nil for non-file writer)", err)
	}
}

func TestAuditStore_AppendEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	buf := &bytes.Buffer{}
	store := NewAuditStoreWithWriter(buf)

	if err := store.Append(ctx); err != nil {
		t.Errorf("Append() with no entries error: %v", err)
	}

	if buf.Len() != 0 {
		t.Errorf("buffer should be empty after appending no entries, got %d bytes", buf.Len())
	}
}

func TestAuditStore_ConcurrentAppend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	buf := &bytes.Buffer{}
	store := NewAuditStoreWithWriter(buf)

	var wg sync.WaitGroup
	errCh := make(chan error, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			entry := audit.Entry{
				RequestID: "req-" + string(rune('a'+(idx%26))),
				Action:    action.Action{Name: "concurrent_tool"},
				Decision:  action.DecisionAllow,
				Timestamp: time.Now().UTC(),
			}
			if err := store.Append(ctx, entry); err != nil {
				errCh <- err
			}
		}(i)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent Append() error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 100 {
		t.Errorf("expected 100 JSON lines, got %d", len(lines))
	}
}

func TestAuditStore_EntryFields(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	buf := &bytes.Buffer{}
	store := NewAuditStoreWithWriter(buf)

	now := time.Now().UTC()
	entry := audit.Entry{
		RequestID: "req-fields",
		Action:    action.Action{Name: "fields_tool", Args: "--path /etc/passwd", Kind: action.KindShell},
		Decision:  action.DecisionDeny,
		Timestamp: now,
		Reason:    "Policy violation",
	}

	if err := store.Append(ctx, entry); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	var decoded audit.Entry
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("JSON decode error: %v", err)
	}

	if decoded.RequestID != "req-fields" {
		t.Errorf("RequestID = %q, want %q", decoded.RequestID, "req-fields")
	}
	if decoded.Decision != action.DecisionDeny {
		t.Errorf("Decision = %q, want %q", decoded.Decision, action.DecisionDeny)
	}
	if decoded.Reason != "Policy violation" {
		t.Errorf("Reason = %q, want %q", decoded.Reason, "Policy violation")
	}
	if decoded.Action.Args != "--path /etc/passwd" {
		t.Errorf("Action.Args = %q, want %q", decoded.Action.Args, "--path /etc/passwd")
	}
}

func TestAuditStore_DefaultStdout(t *testing.T) {
	store := NewAuditStore()
	if store == nil {
		t.Fatal("NewAuditStore() returned nil")
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close() on default store error: %v", err)
	}
}

func TestAuditStore_Query(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	buf := &bytes.Buffer{}
	store := NewAuditStoreWithWriter(buf)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []audit.Entry{
		{RequestID: "1", Action: action.Action{Name: "git"}, Decision: action.DecisionAllow, Timestamp: base},
		{RequestID: "2", Action: action.Action{Name: "curl"}, Decision: action.DecisionDeny, Timestamp: base.Add(time.Minute)},
	}
	if err := store.Append(ctx, entries...); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	got, err := store.Query(ctx, audit.Filter{ToolName: "curl"})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(got) != 1 || got[0].RequestID != "2" {
		t.Fatalf("expected to find only the curl entry, got %+v", got)
	}
}

func TestAuditStore_Stats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	buf := &bytes.Buffer{}
	store := NewAuditStoreWithWriter(buf)

	now := time.Now().UTC()
	_ = store.Append(ctx,
		audit.Entry{RequestID: "1", Action: action.Action{Name: "git"}, Decision: action.DecisionAllow, Timestamp: now},
		audit.Entry{RequestID: "2", Action: action.Action{Name: "git"}, Decision: action.DecisionDeny, Timestamp: now},
	)

	stats, err := store.Stats(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.TotalCalls != 2 || stats.Allowed != 1 || stats.Denied != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.ByTool["git"] != 2 {
		t.Fatalf("expected ByTool[git]=2, got %+v", stats.ByTool)
	}
}
