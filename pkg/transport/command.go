package transport

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/creack/pty"

	"github.com/newtron-network/newtcli/pkg/util"
)

// Command is a Transport over a local process attached to a pseudo-terminal,
// e.g. `telnet <console-server> <port>` for devices only reachable on a
// console line.
type Command struct {
	Argv []string
	Env  []string
	Cols uint16
	Rows uint16

	mu     sync.Mutex
	cmd    *exec.Cmd
	ptmx   *os.File
	stream *Stream
}

// NewCommand creates an unconnected Command transport.
func NewCommand(argv ...string) *Command {
	return &Command{Argv: argv, Cols: 511, Rows: 24}
}

// Connect starts the process on a new PTY.
func (t *Command) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stream != nil {
		return nil
	}
	if len(t.Argv) == 0 {
		return fmt.Errorf("command transport: empty argv")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Not CommandContext: the process must outlive ctx, which only bounds
	// connection setup.
	cmd := exec.Command(t.Argv[0], t.Argv[1:]...)
	if len(t.Env) > 0 {
		cmd.Env = append(os.Environ(), t.Env...)
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: t.Rows, Cols: t.Cols})
	if err != nil {
		return fmt.Errorf("starting %s: %w", strings.Join(t.Argv, " "), err)
	}

	t.cmd = cmd
	t.ptmx = ptmx
	t.stream = NewStream(&readWriteCloser{
		Reader: ptmx,
		Writer: ptmx,
		close: func() error {
			err := ptmx.Close()
			if cmd.Process != nil {
				cmd.Process.Kill()
			}
			cmd.Wait()
			return err
		},
	})

	util.Debugf("command transport started: %s (pid %d)", strings.Join(t.Argv, " "), cmd.Process.Pid)
	return nil
}

// Write implements Transport.
func (t *Command) Write(text string) error {
	s := t.current()
	if s == nil {
		return util.ErrNotConnected
	}
	return s.Write(text)
}

// ReadUntil implements Transport.
func (t *Command) ReadUntil(ctx context.Context, match func(string) bool) (string, error) {
	s := t.current()
	if s == nil {
		return "", util.ErrNotConnected
	}
	return s.ReadUntil(ctx, match)
}

// Close implements Transport.
func (t *Command) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stream == nil {
		return nil
	}
	err := t.stream.Close()
	t.stream = nil
	t.ptmx = nil
	t.cmd = nil
	return err
}

func (t *Command) current() *Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stream
}
