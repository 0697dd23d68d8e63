// Package transport provides the duplex text channel to one device.
//
// A Transport carries no knowledge of prompts or commands: it writes text and
// reads until a caller-supplied predicate is satisfied or the context
// deadline passes. Exactly one round trip may be outstanding at a time.
package transport

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/newtron-network/newtcli/pkg/util"
)

// Transport is a duplex byte/line channel to one device.
type Transport interface {
	// Connect opens the underlying connection.
	Connect(ctx context.Context) error
	// Write sends text as-is; callers append the line terminator.
	Write(text string) error
	// ReadUntil accumulates device output until match returns true for the
	// accumulated text. On deadline it returns the partial text together
	// with an error wrapping util.ErrTimeout.
	ReadUntil(ctx context.Context, match func(buf string) bool) (string, error)
	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// ansiEscape matches CSI sequences some devices emit around prompts.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// partialEscape matches a CSI sequence cut off at the end of a chunk.
var partialEscape = regexp.MustCompile(`\x1b(\[[0-9;?]*)?$`)

// Clean strips terminal escape sequences and NUL bytes.
func Clean(s string) string {
	s = ansiEscape.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, "\x00", "")
}

// Stream implements the read/write half of a Transport over any
// io.ReadWriteCloser. A pump goroutine moves device output into a channel so
// ReadUntil can wait on output and the deadline at the same time.
type Stream struct {
	rw     io.ReadWriteCloser
	chunks chan []byte
	done   chan struct{}

	mu      sync.Mutex
	pending bool // a Write has not yet been settled by ReadUntil
	readErr error

	closeOnce sync.Once
}

// NewStream starts pumping rw. The stream owns rw from here on.
func NewStream(rw io.ReadWriteCloser) *Stream {
	s := &Stream{
		rw:     rw,
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *Stream) pump() {
	defer close(s.chunks)
	buf := make([]byte, 4096)
	for {
		n, err := s.rw.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.chunks <- chunk:
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}
	}
}

// Connect is a no-op: a Stream is connected when it is created.
func (s *Stream) Connect(ctx context.Context) error {
	return nil
}

// Write sends text. It fails if the previous write has not been settled.
func (s *Stream) Write(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending {
		return util.ErrCommandInFlight
	}
	select {
	case <-s.done:
		return util.ErrNotConnected
	default:
	}
	if _, err := io.WriteString(s.rw, text); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	s.pending = true
	return nil
}

// ReadUntil implements Transport. Each chunk is cleaned once as it arrives;
// an escape sequence split across chunks is held back until it completes.
func (s *Stream) ReadUntil(ctx context.Context, match func(buf string) bool) (string, error) {
	defer s.settle()

	var (
		acc  strings.Builder
		tail string
	)
	flush := func() string {
		acc.WriteString(Clean(tail))
		tail = ""
		return acc.String()
	}
	for {
		select {
		case <-ctx.Done():
			text := flush()
			if ctx.Err() == context.DeadlineExceeded {
				return text, fmt.Errorf("%w (%d bytes received)", util.ErrTimeout, len(text))
			}
			return text, ctx.Err()
		case chunk, ok := <-s.chunks:
			if !ok {
				s.mu.Lock()
				cause := s.readErr
				s.mu.Unlock()
				if cause == nil {
					cause = io.EOF
				}
				return flush(), fmt.Errorf("%w: %v", util.ErrNotConnected, cause)
			}
			text := tail + string(chunk)
			tail = ""
			if loc := partialEscape.FindStringIndex(text); loc != nil {
				text, tail = text[:loc[0]], text[loc[0]:]
			}
			acc.WriteString(Clean(text))
			if buf := acc.String(); match(buf) {
				return buf, nil
			}
		}
	}
}

func (s *Stream) settle() {
	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()
}

// Close stops the pump and closes the underlying connection.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.rw.Close()
	})
	return err
}

// readWriteCloser glues separate pipe ends into one io.ReadWriteCloser.
type readWriteCloser struct {
	io.Reader
	io.Writer
	close func() error
}

func (r *readWriteCloser) Close() error {
	return r.close()
}
