package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

func TestEvent_New(t *testing.T) {
	event := NewEvent("alice", "pe1", "apply")

	if event.User != "alice" {
		t.Errorf("User = %q, want %q", event.User, "alice")
	}
	if event.Device != "pe1" {
		t.Errorf("Device = %q, want %q", event.Device, "pe1")
	}
	if event.Operation != "apply" {
		t.Errorf("Operation = %q, want %q", event.Operation, "apply")
	}
	if event.ID == "" {
		t.Error("ID should not be empty")
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if other := NewEvent("alice", "pe1", "apply"); other.ID == event.ID {
		t.Error("event IDs should be unique")
	}
}

func TestEvent_Chaining(t *testing.T) {
	changes := []Change{
		{Path: "vlan", Key: "10", Type: "add", After: map[string]string{"name": "users"}},
	}

	event := NewEvent("alice", "pe1", "apply").
		WithTxn("0b7c").
		WithChanges(changes).
		WithOutcome(OutcomeCommitted).
		WithDuration(time.Second).
		WithExecuteMode(true)

	if event.TxnID != "0b7c" {
		t.Errorf("TxnID = %q", event.TxnID)
	}
	if len(event.Changes) != 1 {
		t.Errorf("Expected 1 change, got %d", len(event.Changes))
	}
	if !event.Success {
		t.Error("Success should be true for a commit")
	}
	if event.Duration != time.Second {
		t.Errorf("Duration = %v", event.Duration)
	}
	if !event.ExecuteMode {
		t.Error("ExecuteMode should be true")
	}
}

func TestEvent_FailedOutcomes(t *testing.T) {
	for _, outcome := range []string{OutcomeReverted, OutcomeRevertFailed, OutcomeAborted} {
		event := NewEvent("alice", "pe1", "apply").
			WithOutcome(outcome).
			WithError(errors.New("commit failed")).
			WithDiagnostic("!! SEMANTIC ERRORS")

		if event.Success {
			t.Errorf("%s: Success should be false", outcome)
		}
		if event.Error != "commit failed" {
			t.Errorf("%s: Error = %q", outcome, event.Error)
		}
		if event.Diagnostic == "" {
			t.Errorf("%s: Diagnostic not recorded", outcome)
		}
	}

	// A nil error leaves the event untouched.
	event := NewEvent("alice", "pe1", "apply").WithOutcome(OutcomeCommitted).WithError(nil)
	if !event.Success || event.Error != "" {
		t.Errorf("WithError(nil) changed the event: %+v", event)
	}
}

func newFileLogger(t *testing.T, rotation RotationConfig) (*FileLogger, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewFileLogger(logPath, rotation)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, logPath
}

func seedEvents() []*Event {
	return []*Event{
		NewEvent("alice", "pe1", "apply").WithTxn("tx-abc").WithOutcome(OutcomeCommitted),
		NewEvent("bob", "pe1", "exec").WithTxn("tx-abd").WithOutcome(OutcomeCommitted),
		NewEvent("alice", "pe2", "apply").WithTxn("zz-789").WithOutcome(OutcomeReverted).WithError(errors.New("failed")),
		NewEvent("charlie", "pe3", "apply").WithTxn("TX-000").WithOutcome(OutcomeCommitted),
	}
}

// testQueries runs the same filter checks against any backend.
func testQueries(t *testing.T, logger Logger) {
	for _, e := range seedEvents() {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"by user", Filter{User: "alice"}, 2},
		{"by device", Filter{Device: "pe1"}, 2},
		{"by operation", Filter{Operation: "apply"}, 3},
		{"by outcome", Filter{Outcome: OutcomeReverted}, 1},
		{"by txn", Filter{TxnID: "zz-789"}, 1},
		{"by txn prefix", Filter{TxnID: "tx-ab"}, 2},
		{"txn prefix is case-sensitive", Filter{TxnID: "TX"}, 1},
		{"txn and user", Filter{TxnID: "tx-ab", User: "bob"}, 1},
		{"unknown txn", Filter{TxnID: "q"}, 0},
		{"success only", Filter{SuccessOnly: true}, 3},
		{"failure only", Filter{FailureOnly: true}, 1},
		{"limit", Filter{Limit: 2}, 2},
		{"offset", Filter{Offset: 2}, 2},
		{"offset beyond", Filter{Offset: 10}, 0},
		{"time range", Filter{StartTime: time.Now().Add(-time.Hour), EndTime: time.Now().Add(time.Hour)}, 4},
		{"future start", Filter{StartTime: time.Now().Add(time.Hour)}, 0},
		{"past end", Filter{EndTime: time.Now().Add(-time.Hour)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := logger.Query(tt.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(results) != tt.want {
				t.Errorf("got %d events, want %d", len(results), tt.want)
			}
		})
	}
}

// testFind checks ID resolution against any backend.
func testFind(t *testing.T, logger Logger) {
	events := seedEvents()
	for _, e := range events {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	got, err := FindIn(logger, "tx-abc")
	if err != nil || got.ID != events[0].ID {
		t.Errorf("exact txn id: %v, %v", got, err)
	}
	got, err = FindIn(logger, "zz")
	if err != nil || got.ID != events[2].ID {
		t.Errorf("unique prefix: %v, %v", got, err)
	}
	got, err = FindIn(logger, events[1].ID[:8])
	if err != nil || got.TxnID != "tx-abd" {
		t.Errorf("event id prefix: %v, %v", got, err)
	}
	if _, err := FindIn(logger, "tx-ab"); !errors.Is(err, ErrAmbiguousID) {
		t.Errorf("ambiguous prefix: err = %v", err)
	}
	if _, err := FindIn(logger, "q"); !errors.Is(err, ErrNoEvent) {
		t.Errorf("no match: err = %v", err)
	}
	if _, err := FindIn(logger, ""); !errors.Is(err, ErrNoEvent) {
		t.Errorf("empty id: err = %v", err)
	}
}

func TestFileLogger_Query(t *testing.T) {
	logger, _ := newFileLogger(t, RotationConfig{})
	testQueries(t, logger)
}

func TestFileLogger_Find(t *testing.T) {
	logger, _ := newFileLogger(t, RotationConfig{})
	testFind(t, logger)
}

func TestFileLogger_LogAfterClose(t *testing.T) {
	logger, _ := newFileLogger(t, RotationConfig{})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := logger.Log(NewEvent("alice", "pe1", "apply")); err == nil {
		t.Error("Log after Close should fail")
	}
}

func TestFileLogger_RoundTrip(t *testing.T) {
	logger, _ := newFileLogger(t, RotationConfig{})

	event := NewEvent("alice", "pe1", "apply").
		WithChanges([]Change{{Path: "vlan", Key: "10", Type: "delete", Before: map[string]string{"name": "users"}}}).
		WithOutcome(OutcomeRevertFailed).
		WithDiagnostic("abort timed out")
	if err := logger.Log(event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	got := events[0]
	if got.ID != event.ID || got.Outcome != OutcomeRevertFailed || got.Diagnostic != "abort timed out" {
		t.Errorf("event = %+v", got)
	}
	if len(got.Changes) != 1 || got.Changes[0].Before["name"] != "users" {
		t.Errorf("changes = %+v", got.Changes)
	}
}

func TestFileLogger_NonExistentDir(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nonexistent", "audit.log")
	logger, err := NewFileLogger(logPath, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger should create directories: %v", err)
	}
	logger.Close()
}

func TestFileLogger_OpenError(t *testing.T) {
	if _, err := NewFileLogger("/dev/null/impossible/audit.log", RotationConfig{}); err == nil {
		t.Error("NewFileLogger should fail when directory creation fails")
	}

	logPath := filepath.Join(t.TempDir(), "audit.log")
	if err := os.Mkdir(logPath, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if _, err := NewFileLogger(logPath, RotationConfig{}); err == nil {
		t.Error("NewFileLogger should fail when log path is a directory")
	}
}

func TestFileLogger_QueryMalformedJSON(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")
	content := `{"user":"alice","device":"pe1","operation":"apply","success":true}
invalid json line
{"user":"bob","device":"pe2","operation":"apply","success":true}
`
	if err := os.WriteFile(logPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test data: %v", err)
	}

	logger, err := NewFileLogger(logPath, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	results, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Expected 2 valid events (skipping malformed), got %d", len(results))
	}
}

func TestFileLogger_Rotation(t *testing.T) {
	logger, logPath := newFileLogger(t, RotationConfig{MaxSize: 100, MaxBackups: 2})

	var last *Event
	for i := 0; i < 10; i++ {
		last = NewEvent("alice", "pe1", "apply").WithTxn(fmt.Sprintf("txn-%02d", i)).WithOutcome(OutcomeCommitted)
		if err := logger.Log(last); err != nil {
			t.Fatalf("Log failed on iteration %d: %v", i, err)
		}
	}

	matches, err := filepath.Glob(logPath + ".*")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	sort.Strings(matches)
	want := []string{logPath + ".1", logPath + ".2"}
	if strings.Join(matches, ",") != strings.Join(want, ",") {
		t.Errorf("backups = %v, want %v", matches, want)
	}

	// Every event is larger than MaxSize, so each file holds one event
	// and only the newest three survive.
	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	var ids []string
	for _, e := range events {
		ids = append(ids, e.TxnID)
	}
	if got := strings.Join(ids, ","); got != "txn-07,txn-08,txn-09" {
		t.Errorf("events oldest first = %s", got)
	}
}

func TestFileLogger_FindAcrossRotation(t *testing.T) {
	logger, _ := newFileLogger(t, RotationConfig{MaxSize: 1})

	first := NewEvent("alice", "pe1", "apply").WithTxn("first-txn").WithOutcome(OutcomeReverted)
	for _, e := range []*Event{first, NewEvent("bob", "pe1", "apply").WithTxn("second-txn")} {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	got, err := FindIn(logger, "first")
	if err != nil {
		t.Fatalf("FindIn failed: %v", err)
	}
	if got.ID != first.ID || got.Outcome != OutcomeReverted {
		t.Errorf("event = %+v", got)
	}
	results, err := logger.Query(Filter{Outcome: OutcomeReverted})
	if err != nil || len(results) != 1 {
		t.Errorf("outcome query over rotated file = %d, %v", len(results), err)
	}
}

func TestFileLogger_ReopenKeepsSize(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")
	if err := os.WriteFile(logPath, []byte(strings.Repeat(" ", 200)+"\n"), 0644); err != nil {
		t.Fatalf("Failed to write test data: %v", err)
	}
	logger, err := NewFileLogger(logPath, RotationConfig{MaxSize: 100})
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	if err := logger.Log(NewEvent("alice", "pe1", "apply")); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Errorf("an oversized existing file should rotate on the first write: %v", err)
	}
}

func TestDefaultLogger(t *testing.T) {
	SetDefaultLogger(nil)
	defer SetDefaultLogger(nil)

	if err := Log(NewEvent("test", "test", "test")); err != nil {
		t.Errorf("Log with nil default should not error: %v", err)
	}
	results, err := Query(Filter{})
	if err != nil || len(results) != 0 {
		t.Errorf("Query with nil default = %d, %v", len(results), err)
	}

	logger, _ := newFileLogger(t, RotationConfig{})
	SetDefaultLogger(logger)

	if err := Log(NewEvent("alice", "pe1", "apply").WithOutcome(OutcomeCommitted)); err != nil {
		t.Errorf("Log failed: %v", err)
	}
	results, err = Query(Filter{})
	if err != nil {
		t.Errorf("Query failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected 1 result, got %d", len(results))
	}
	if _, err := Find(results[0].ID); err != nil {
		t.Errorf("Find failed: %v", err)
	}

	SetDefaultLogger(nil)
	if _, err := Find(results[0].ID); !errors.Is(err, ErrNoEvent) {
		t.Errorf("Find without a logger: err = %v", err)
	}
}

func newSQLiteLogger(t *testing.T) *SQLiteLogger {
	t.Helper()
	logger, err := NewSQLiteLogger(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		if strings.Contains(err.Error(), "CGO") {
			t.Skipf("sqlite unavailable: %v", err)
		}
		t.Fatalf("NewSQLiteLogger failed: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func TestSQLiteLogger_Query(t *testing.T) {
	testQueries(t, newSQLiteLogger(t))
}

func TestSQLiteLogger_Find(t *testing.T) {
	testFind(t, newSQLiteLogger(t))
}

func TestSQLiteLogger_RoundTrip(t *testing.T) {
	logger := newSQLiteLogger(t)

	event := NewEvent("alice", "pe1", "apply").
		WithTxn("txn-1").
		WithChanges([]Change{{Path: "vlan", Key: "10", Type: "add", After: map[string]string{"name": "users"}}}).
		WithOutcome(OutcomeReverted).
		WithError(errors.New("commit failed on pe1")).
		WithDuration(1500 * time.Millisecond).
		WithExecuteMode(true)
	if err := logger.Log(event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := logger.Query(Filter{Device: "pe1"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	got := events[0]
	if got.ID != event.ID || got.TxnID != "txn-1" {
		t.Errorf("IDs = %q/%q", got.ID, got.TxnID)
	}
	if got.Success || got.Error != "commit failed on pe1" || got.Outcome != OutcomeReverted {
		t.Errorf("outcome fields = %+v", got)
	}
	if got.Duration != 1500*time.Millisecond || !got.ExecuteMode {
		t.Errorf("Duration = %v, ExecuteMode = %v", got.Duration, got.ExecuteMode)
	}
	if !got.Timestamp.Equal(event.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, event.Timestamp)
	}
	if len(got.Changes) != 1 || got.Changes[0].After["name"] != "users" {
		t.Errorf("Changes = %+v", got.Changes)
	}

	if err := logger.Log(event); err == nil {
		t.Error("duplicate event ID should be rejected")
	}
}
