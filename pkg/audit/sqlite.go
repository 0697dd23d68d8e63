package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id           TEXT PRIMARY KEY,
	txn_id       TEXT NOT NULL DEFAULT '',
	ts           INTEGER NOT NULL,
	user         TEXT NOT NULL,
	device       TEXT NOT NULL,
	operation    TEXT NOT NULL,
	outcome      TEXT NOT NULL DEFAULT '',
	success      INTEGER NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	diagnostic   TEXT NOT NULL DEFAULT '',
	execute_mode INTEGER NOT NULL,
	duration_ns  INTEGER NOT NULL,
	changes      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_events_device_ts ON audit_events (device, ts);
CREATE INDEX IF NOT EXISTS audit_events_txn ON audit_events (txn_id);
`

// SQLiteLogger keeps audit events in a SQLite database, for sites that
// query the trail more than they append to it.
type SQLiteLogger struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteLogger opens (creating if needed) the database at path.
func NewSQLiteLogger(path string) (*SQLiteLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating audit database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}
	return &SQLiteLogger{db: db}, nil
}

// Log implements Logger.
func (l *SQLiteLogger) Log(event *Event) error {
	changes, err := json.Marshal(event.Changes)
	if err != nil {
		return fmt.Errorf("encoding changes: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.db.Exec(`INSERT INTO audit_events
		(id, txn_id, ts, user, device, operation, outcome, success, error, diagnostic, execute_mode, duration_ns, changes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.TxnID, event.Timestamp.UnixNano(), event.User, event.Device, event.Operation,
		event.Outcome, event.Success, event.Error, event.Diagnostic, event.ExecuteMode,
		int64(event.Duration), string(changes))
	if err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// Query implements Logger. Events are returned oldest first.
func (l *SQLiteLogger) Query(filter Filter) ([]*Event, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		where = append(where, cond)
		args = append(args, arg)
	}
	if filter.TxnID != "" {
		// substr keeps the prefix match case-sensitive, unlike LIKE.
		n := len(filter.TxnID)
		where = append(where, "(substr(txn_id, 1, ?) = ? OR substr(id, 1, ?) = ?)")
		args = append(args, n, filter.TxnID, n, filter.TxnID)
	}
	if filter.Device != "" {
		add("device = ?", filter.Device)
	}
	if filter.User != "" {
		add("user = ?", filter.User)
	}
	if filter.Operation != "" {
		add("operation = ?", filter.Operation)
	}
	if filter.Outcome != "" {
		add("outcome = ?", filter.Outcome)
	}
	if !filter.StartTime.IsZero() {
		add("ts >= ?", filter.StartTime.UnixNano())
	}
	if !filter.EndTime.IsZero() {
		add("ts <= ?", filter.EndTime.UnixNano())
	}
	if filter.SuccessOnly {
		where = append(where, "success = 1")
	}
	if filter.FailureOnly {
		where = append(where, "success = 0")
	}

	q := `SELECT id, txn_id, ts, user, device, operation, outcome, success, error, diagnostic,
		execute_mode, duration_ns, changes FROM audit_events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts, rowid"
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		q += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	rows, err := l.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		var (
			e        Event
			ts       int64
			duration int64
			changes  string
		)
		if err := rows.Scan(&e.ID, &e.TxnID, &ts, &e.User, &e.Device, &e.Operation, &e.Outcome,
			&e.Success, &e.Error, &e.Diagnostic, &e.ExecuteMode, &duration, &changes); err != nil {
			return nil, fmt.Errorf("reading audit event: %w", err)
		}
		e.Timestamp = time.Unix(0, ts)
		e.Duration = time.Duration(duration)
		if err := json.Unmarshal([]byte(changes), &e.Changes); err != nil {
			return nil, fmt.Errorf("decoding changes of event %s: %w", e.ID, err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Close implements Logger.
func (l *SQLiteLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}
