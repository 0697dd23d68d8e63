package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/newtron-network/newtcli/pkg/util"
)

// Logger is an audit backend.
type Logger interface {
	Log(event *Event) error
	// Query returns matching events oldest first.
	Query(filter Filter) ([]*Event, error)
	Close() error
}

var (
	// ErrNoEvent is returned by Find when no transaction matches.
	ErrNoEvent = errors.New("no audit event")
	// ErrAmbiguousID is returned by Find when a prefix matches several
	// transactions.
	ErrAmbiguousID = errors.New("ambiguous transaction id")
)

// FileLogger appends one JSON line per transaction to a file. Rotated
// files are named path.1 (newest) to path.N and are still searched by
// Query, so a transaction stays findable after its file rotates out.
type FileLogger struct {
	path     string
	rotation RotationConfig

	mu   sync.Mutex
	file *os.File
	size int64
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    int64 // bytes written before the file is rotated; 0 never rotates
	MaxBackups int   // rotated files kept; 0 keeps all
}

// NewFileLogger opens path for appending, creating it and its directory.
func NewFileLogger(path string, rotation RotationConfig) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	l := &FileLogger{path: path, rotation: rotation}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("opening audit log: %w", err)
	}
	l.file, l.size = file, info.Size()
	return nil
}

// Log appends event as a single write, so concurrent newtcli processes
// sharing the file never interleave records.
func (l *FileLogger) Log(event *Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding audit event %s: %w", event.ID, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit log %s is closed", l.path)
	}
	if l.rotation.MaxSize > 0 && l.size > 0 && l.size+int64(len(line)) > l.rotation.MaxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotating audit log: %w", err)
		}
	}
	n, err := l.file.Write(line)
	l.size += int64(n)
	if err != nil {
		return fmt.Errorf("writing audit event %s: %w", event.ID, err)
	}
	return nil
}

// Query scans the rotated files oldest first, then the live file.
func (l *FileLogger) Query(filter Filter) ([]*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	backups, err := l.backups()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(backups)+1)
	for i := len(backups) - 1; i >= 0; i-- {
		paths = append(paths, backups[i].path)
	}
	paths = append(paths, l.path)

	events := []*Event{}
	for _, path := range paths {
		if err := scanFile(path, func(e *Event) {
			if filter.Matches(e) {
				events = append(events, e)
			}
		}); err != nil {
			return nil, err
		}
	}
	return filter.page(events), nil
}

// scanFile decodes one event per line. Malformed lines are skipped with a
// warning naming file and line.
func scanFile(path string, fn func(*Event)) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading audit log: %w", err)
	}
	defer f.Close()
	return scanEvents(f, path, fn)
}

func scanEvents(r io.Reader, name string, fn func(*Event)) error {
	scanner := bufio.NewScanner(r)
	// Diagnostics of a rejected commit can be long.
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			util.Warnf("audit: skipping malformed entry %s:%d: %v", name, n, err)
			continue
		}
		fn(&e)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	return nil
}

// Close closes the live file. Later Log calls fail.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

type backup struct {
	path string
	n    int
}

// backups lists rotated files, newest (path.1) first.
func (l *FileLogger) backups() ([]backup, error) {
	matches, err := filepath.Glob(l.path + ".*")
	if err != nil {
		return nil, err
	}
	var out []backup
	for _, m := range matches {
		n, err := strconv.Atoi(strings.TrimPrefix(m, l.path+"."))
		if err != nil || n < 1 {
			continue
		}
		out = append(out, backup{path: m, n: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].n < out[j].n })
	return out, nil
}

// rotate shifts path.N to path.N+1, dropping files beyond MaxBackups, and
// moves the live file to path.1.
func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	l.file = nil

	backups, err := l.backups()
	if err != nil {
		return err
	}
	for i := len(backups) - 1; i >= 0; i-- {
		b := backups[i]
		if l.rotation.MaxBackups > 0 && b.n >= l.rotation.MaxBackups {
			if err := os.Remove(b.path); err != nil {
				return err
			}
			continue
		}
		if err := os.Rename(b.path, fmt.Sprintf("%s.%d", l.path, b.n+1)); err != nil {
			return err
		}
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return err
	}
	return l.open()
}

// loggerHolder gives atomic.Value one concrete type to store.
type loggerHolder struct {
	logger Logger
}

var defaultLogger atomic.Value

// SetDefaultLogger sets the backend used by Log, Query and Find. Nil turns
// auditing off.
func SetDefaultLogger(logger Logger) {
	defaultLogger.Store(loggerHolder{logger: logger})
}

func getDefaultLogger() Logger {
	v := defaultLogger.Load()
	if v == nil {
		return nil
	}
	return v.(loggerHolder).logger
}

// Log records event with the default logger. Without one it does nothing.
func Log(event *Event) error {
	if l := getDefaultLogger(); l != nil {
		return l.Log(event)
	}
	return nil
}

// Query searches the default logger.
func Query(filter Filter) ([]*Event, error) {
	if l := getDefaultLogger(); l != nil {
		return l.Query(filter)
	}
	return []*Event{}, nil
}

// Find resolves a transaction or event ID, or a unique prefix of one, in
// the default logger.
func Find(id string) (*Event, error) {
	l := getDefaultLogger()
	if l == nil {
		return nil, fmt.Errorf("%w for %s: auditing is off", ErrNoEvent, id)
	}
	return FindIn(l, id)
}

// FindIn resolves id in l. An exact match wins over prefix matches.
func FindIn(l Logger, id string) (*Event, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNoEvent)
	}
	events, err := l.Query(Filter{TxnID: id})
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		if e.TxnID == id || e.ID == id {
			return e, nil
		}
	}
	switch len(events) {
	case 0:
		return nil, fmt.Errorf("%w for %s", ErrNoEvent, id)
	case 1:
		return events[0], nil
	}
	return nil, fmt.Errorf("%w: %s matches %d transactions", ErrAmbiguousID, id, len(events))
}
