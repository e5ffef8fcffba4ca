package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sentinel-Gate/acp-gate/internal/domain/action"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/audit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func makeEntry(ts time.Time, reqID string) audit.Entry {
	return audit.Entry{
		Timestamp: ts,
		RequestID: reqID,
		Action:    action.Action{Name: "test_tool", Kind: action.KindShell},
		Decision:  action.DecisionAllow,
	}
}

func TestNewFileStore_CreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "subdir", "audit")
	cfg := FileStoreConfig{Dir: dir, RetentionDays: 7, MaxFileSizeMB: 100, CacheSize: 100}

	store, err := NewFileStore(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	defer func() { _ = store.Close() }()

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected directory, got file")
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("directory permissions = %o, want 0700", perm)
	}
}

func TestFileStore_AppendWritesJSONLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := FileStoreConfig{Dir: dir, RetentionDays: 7, MaxFileSizeMB: 100, CacheSize: 100}

	store, err := NewFileStore(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()

	entries := []audit.Entry{
		makeEntry(now, "req-1"),
		makeEntry(now, "req-2"),
		makeEntry(now, "req-3"),
	}

	if err := store.Append(ctx, entries...); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	dateStr := now.Format("2006-01-02")
	filename := filepath.Join(dir, fmt.Sprintf("audit-%s.log", dateStr))

	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("failed to read audit file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	for i, line := range lines {
		var decoded audit.Entry
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
			continue
		}
		expected := fmt.Sprintf("req-%d", i+1)
		if decoded.RequestID != expected {
			t.Errorf("line %d RequestID = %q, want %q", i, decoded.RequestID, expected)
		}
	}
}

func TestFileStore_DateRotation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := FileStoreConfig{Dir: dir, RetentionDays: 7, MaxFileSizeMB: 100, CacheSize: 100}

	store, err := NewFileStore(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}

	ctx := context.Background()
	day1 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

	if err := store.Append(ctx, makeEntry(day1, "req-day1")); err != nil {
		t.Fatalf("Append() day1 error: %v", err)
	}
	if err := store.Append(ctx, makeEntry(day2, "req-day2")); err != nil {
		t.Fatalf("Append() day2 error: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	_ = store.Close()

	file1 := filepath.Join(dir, "audit-2026-02-01.log")
	file2 := filepath.Join(dir, "audit-2026-02-02.log")

	if _, err := os.Stat(file1); err != nil {
		t.Errorf("day 1 audit file not found: %v", err)
	}
	if _, err := os.Stat(file2); err != nil {
		t.Errorf("day 2 audit file not found: %v", err)
	}

	data1, _ := os.ReadFile(file1)
	data2, _ := os.ReadFile(file2)

	if !strings.Contains(string(data1), "req-day1") {
		t.Error("day 1 file should contain req-day1")
	}
	if !strings.Contains(string(data2), "req-day2") {
		t.Error("day 2 file should contain req-day2")
	}
}

func TestFileStore_SizeRotation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := FileStoreConfig{Dir: dir, RetentionDays: 7, CacheSize: 100}

	store, err := NewFileStore(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	store.maxFileSize = 500

	ctx := context.Background()
	now := time.Now().UTC()
	dateStr := now.Format("2006-01-02")

	for i := 0; i < 20; i++ {
		e := makeEntry(now, fmt.Sprintf("req-%03d", i))
		e.Action.Args = strings.Repeat("x", 50)
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append() error at entry %d: %v", i, err)
		}
	}
	_ = store.Close()

	baseFile := filepath.Join(dir, fmt.Sprintf("audit-%s.log", dateStr))
	suffixFile := filepath.Join(dir, fmt.Sprintf("audit-%s-1.log", dateStr))

	if _, err := os.Stat(baseFile); err != nil {
		t.Errorf("base audit file not found: %v", err)
	}
	if _, err := os.Stat(suffixFile); err != nil {
		t.Errorf("suffixed audit file not found: %v", err)
	}
}

func TestFileStore_RetentionCleanup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	oldDate := time.Now().UTC().AddDate(0, 0, -10)
	recentDate := time.Now().UTC().AddDate(0, 0, -3)

	oldFile := filepath.Join(dir, fmt.Sprintf("audit-%s.log", oldDate.Format("2006-01-02")))
	recentFile := filepath.Join(dir, fmt.Sprintf("audit-%s.log", recentDate.Format("2006-01-02")))

	if err := os.WriteFile(oldFile, []byte(`{"request_id":"old"}`+"\n"), 0600); err != nil {
		t.Fatalf("failed to create old file: %v", err)
	}
	if err := os.WriteFile(recentFile, []byte(`{"request_id":"recent"}`+"\n"), 0600); err != nil {
		t.Fatalf("failed to create recent file: %v", err)
	}

	cfg := FileStoreConfig{Dir: dir, RetentionDays: 7, MaxFileSizeMB: 100, CacheSize: 100}
	store, err := NewFileStore(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	defer func() { _ = store.Close() }()

	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Error("old file (10 days) should have been deleted by retention cleanup")
	}
	if _, err := os.Stat(recentFile); err != nil {
		t.Error("recent file (3 days) should NOT have been deleted")
	}
}

func TestAuditCache_AddAndRecent(t *testing.T) {
	t.Parallel()

	cache := newAuditCache(5)
	for i := 0; i < 3; i++ {
		cache.Add(makeEntry(time.Now().UTC(), fmt.Sprintf("req-%d", i)))
	}

	if cache.Len() != 3 {
		t.Errorf("cache.Len() = %d, want 3", cache.Len())
	}

	recent := cache.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("Recent(2) returned %d entries, want 2", len(recent))
	}
	if recent[0].RequestID != "req-2" {
		t.Errorf("Recent[0].RequestID = %q, want %q", recent[0].RequestID, "req-2")
	}
	if recent[1].RequestID != "req-1" {
		t.Errorf("Recent[1].RequestID = %q, want %q", recent[1].RequestID, "req-1")
	}
}

func TestAuditCache_RingBufferOverflow(t *testing.T) {
	t.Parallel()

	cache := newAuditCache(3)
	for i := 0; i < 5; i++ {
		cache.Add(makeEntry(time.Now().UTC(), fmt.Sprintf("req-%d", i)))
	}

	if cache.Len() != 3 {
		t.Errorf("cache.Len() = %d, want 3", cache.Len())
	}

	recent := cache.Recent(5)
	if len(recent) != 3 {
		t.Fatalf("Recent(5) returned %d entries, want 3", len(recent))
	}
	if recent[0].RequestID != "req-4" || recent[1].RequestID != "req-3" || recent[2].RequestID != "req-2" {
		t.Errorf("unexpected recent order: %+v", recent)
	}
}

func TestFileStore_CachePopulatedOnAppend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := FileStoreConfig{Dir: dir, RetentionDays: 7, MaxFileSizeMB: 100, CacheSize: 100}

	store, err := NewFileStore(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		if err := store.Append(ctx, makeEntry(now, fmt.Sprintf("req-%d", i))); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	recent := store.GetRecent(3)
	if len(recent) != 3 {
		t.Fatalf("GetRecent(3) returned %d entries, want 3", len(recent))
	}
	if recent[0].RequestID != "req-4" {
		t.Errorf("GetRecent[0].RequestID = %q, want %q", recent[0].RequestID, "req-4")
	}
}

func TestFileStore_CachePopulatedAtBoot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Now().UTC()
	dateStr := now.Format("2006-01-02")
	filename := filepath.Join(dir, fmt.Sprintf("audit-%s.log", dateStr))

	f, err := os.Create(filename)
	if err != nil {
		t.Fatalf("failed to create pre-existing audit file: %v", err)
	}
	enc := json.NewEncoder(f)
	for i := 0; i < 10; i++ {
		if err := enc.Encode(makeEntry(now.Add(time.Duration(i)*time.Second), fmt.Sprintf("boot-req-%d", i))); err != nil {
			t.Fatalf("failed to write entry: %v", err)
		}
	}
	_ = f.Close()

	cfg := FileStoreConfig{Dir: dir, RetentionDays: 7, MaxFileSizeMB: 100, CacheSize: 5}
	store, err := NewFileStore(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	defer func() { _ = store.Close() }()

	recent := store.GetRecent(10)
	if len(recent) != 5 {
		t.Fatalf("GetRecent(10) returned %d entries, want 5 (cache size)", len(recent))
	}
	if recent[0].RequestID != "boot-req-9" {
		t.Errorf("GetRecent[0].RequestID = %q, want %q", recent[0].RequestID, "boot-req-9")
	}
	if recent[4].RequestID != "boot-req-5" {
		t.Errorf("GetRecent[4].RequestID = %q, want %q", recent[4].RequestID, "boot-req-5")
	}
}

func TestFileStore_ConcurrentAppend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := FileStoreConfig{Dir: dir, RetentionDays: 7, MaxFileSizeMB: 100, CacheSize: 1000}

	store, err := NewFileStore(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	errCh := make(chan error, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			e := makeEntry(now, fmt.Sprintf("concurrent-%d", idx))
			if err := store.Append(ctx, e); err != nil {
				errCh <- err
			}
		}(i)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent Append() error: %v", err)
	}

	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	_ = store.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir error: %v", err)
	}

	totalLines := 0
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "audit-") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatalf("ReadFile error: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if lines[0] != "" {
			totalLines += len(lines)
		}
	}

	if totalLines != 100 {
		t.Errorf("expected 100 total lines, got %d", totalLines)
	}
}

func TestFileStore_CloseStopsCleanup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := FileStoreConfig{Dir: dir, RetentionDays: 7, MaxFileSizeMB: 100, CacheSize: 100}

	store, err := NewFileStore(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("double Close() error: %v", err)
	}
}

func TestFileStore_DefaultConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := FileStoreConfig{Dir: dir}

	store, err := NewFileStore(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	defer func() { _ = store.Close() }()

	if store.retentionDays != 7 {
		t.Errorf("default retentionDays = %d, want 7", store.retentionDays)
	}
	if store.maxFileSize != 100*1024*1024 {
		t.Errorf("default maxFileSize = %d, want %d", store.maxFileSize, 100*1024*1024)
	}
	if store.cache.size != 1000 {
		t.Errorf("default cache size = %d, want 1000", store.cache.size)
	}
}

func TestFileStore_Query(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := FileStoreConfig{Dir: dir, RetentionDays: 7, MaxFileSizeMB: 100, CacheSize: 100}

	store, err := NewFileStore(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()

	_ = store.Append(ctx,
		audit.Entry{RequestID: "1", Action: action.Action{Name: "git"}, Decision: action.DecisionAllow, Timestamp: now},
		audit.Entry{RequestID: "2", Action: action.Action{Name: "curl"}, Decision: action.DecisionDeny, Timestamp: now.Add(time.Minute)},
	)
	_ = store.Flush(ctx)

	got, err := store.Query(ctx, audit.Filter{ToolName: "curl"})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(got) != 1 || got[0].RequestID != "2" {
		t.Fatalf("expected to find only the curl entry, got %+v", got)
	}
}

func TestFileStore_Stats(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := FileStoreConfig{Dir: dir, RetentionDays: 7, MaxFileSizeMB: 100, CacheSize: 100}

	store, err := NewFileStore(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()

	_ = store.Append(ctx,
		audit.Entry{RequestID: "1", Action: action.Action{Name: "git"}, Decision: action.DecisionAllow, Timestamp: now},
		audit.Entry{RequestID: "2", Action: action.Action{Name: "git"}, Decision: action.DecisionDeny, Timestamp: now},
	)
	_ = store.Flush(ctx)

	stats, err := store.Stats(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.TotalCalls != 2 || stats.Allowed != 1 || stats.Denied != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestFileStore_ImplementsSinkAndQueryStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := FileStoreConfig{Dir: dir, RetentionDays: 7, MaxFileSizeMB: 100, CacheSize: 100}

	store, err := NewFileStore(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	defer func() { _ = store.Close() }()

	var _ audit.Sink = store
	var _ audit.QueryStore = store
}

func TestFileStore_PopulateCacheHandlesMalformedLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Now().UTC()
	dateStr := now.Format("2006-01-02")
	filename := filepath.Join(dir, fmt.Sprintf("audit-%s.log", dateStr))

	f, _ := os.Create(filename)
	data, _ := json.Marshal(makeEntry(now, "valid-1"))
	_, _ = fmt.Fprintf(f, "%s\n", data)
	_, _ = fmt.Fprintf(f, "this is not json\n")
	data2, _ := json.Marshal(makeEntry(now, "valid-2"))
	_, _ = fmt.Fprintf(f, "%s\n", data2)
	_ = f.Close()

	cfg := FileStoreConfig{Dir: dir, RetentionDays: 7, MaxFileSizeMB: 100, CacheSize: 100}
	store, err := NewFileStore(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	defer func() { _ = store.Close() }()

	recent := store.GetRecent(10)
	if len(recent) != 2 {
		t.Fatalf("GetRecent(10) returned %d entries, want 2", len(recent))
	}
}
