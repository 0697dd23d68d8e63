package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newtron-network/newtcli/pkg/cache"
	"github.com/newtron-network/newtcli/pkg/errclass"
	"github.com/newtron-network/newtcli/pkg/prompt"
	"github.com/newtron-network/newtcli/pkg/util"
)

// ReadOp is the cache operation name for raw CLI reads. Readers that issue
// the same command share one cache entry.
const ReadOp = "cli.read"

// ReadKey returns the cache key BlockingRead uses for command.
func ReadKey(command string) cache.Key {
	return cache.Key{Op: ReadOp, Disambiguator: command}
}

// Command is one line sent to the device.
type Command struct {
	Text string
	// Until decides whether a recognized prompt completes the round trip.
	// Nil accepts any recognized prompt.
	Until func(prompt.Kind) bool
	// Timeout bounds the round trip. Zero uses the dialect command timeout.
	Timeout time.Duration
	// Sensitive keeps Text out of logs.
	Sensitive bool
}

// Response is the result of one round trip.
type Response struct {
	// Output is the text between the echoed command and the prompt.
	Output string
	// Raw is everything read, echo and prompt included.
	Raw    string
	Prompt prompt.Kind
}

// Expect returns an Until predicate accepting only the given prompt kinds.
func Expect(kinds ...prompt.Kind) func(prompt.Kind) bool {
	return func(k prompt.Kind) bool {
		for _, want := range kinds {
			if k == want {
				return true
			}
		}
		return false
	}
}

// WriteOp tells BlockingWriteAndRead which failure kind to report.
type WriteOp int

const (
	WriteCreate WriteOp = iota
	WriteUpdate
)

func (op WriteOp) kind() util.Kind {
	if op == WriteUpdate {
		return util.KindUpdateFailed
	}
	return util.KindCreateFailed
}

// Exec performs one round trip. Output is not checked for device errors.
func (s *Session) Exec(ctx context.Context, cmd Command) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Disconnected {
		return Response{}, util.ErrNotConnected
	}
	return s.roundTrip(ctx, cmd)
}

// BlockingRead runs a read-only command and returns its output. With a
// non-nil rc the output is memoized for the rest of the transaction, so the
// command reaches the device at most once per rc.
func (s *Session) BlockingRead(ctx context.Context, rc *cache.ReadContext, command string) (string, error) {
	load := func() (interface{}, error) {
		return s.read(ctx, command)
	}
	var (
		v   interface{}
		err error
	)
	if rc != nil {
		v, err = rc.GetOrLoad(ReadKey(command), load)
	} else {
		v, err = load()
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Session) read(ctx context.Context, command string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state < Unprivileged {
		return "", util.NewError(util.KindReadFailed, s.device, command, util.ErrNotConnected)
	}
	resp, err := s.roundTrip(ctx, Command{Text: command})
	if err != nil {
		return "", util.NewError(util.KindReadFailed, s.device, command, err).WithOutput(resp.Output)
	}
	if err := s.check(s.classifier, resp); err != nil {
		return "", util.NewError(util.KindReadFailed, s.device, command, err).WithOutput(resp.Output)
	}
	return resp.Output, nil
}

// BlockingWriteAndRead sends configuration commands one line per round trip
// and returns their combined output. The first rejected command stops the
// batch. The session must be in config mode.
func (s *Session) BlockingWriteAndRead(ctx context.Context, op WriteOp, commands ...string) (string, error) {
	return s.write(ctx, op.kind(), commands)
}

// BlockingDeleteAndRead is BlockingWriteAndRead for commands that remove
// configuration.
func (s *Session) BlockingDeleteAndRead(ctx context.Context, commands ...string) (string, error) {
	return s.write(ctx, util.KindDeleteFailed, commands)
}

func (s *Session) write(ctx context.Context, kind util.Kind, commands []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != ConfigMode {
		return "", util.NewError(kind, s.device, strings.Join(commands, "; "),
			fmt.Errorf("%w: write in %s mode", util.ErrInvalidState, s.state))
	}

	var out []string
	for _, c := range commands {
		resp, err := s.roundTrip(ctx, Command{Text: c})
		if err != nil {
			return strings.Join(out, "\n"), util.NewError(kind, s.device, c, err).WithOutput(resp.Output)
		}
		if err := s.check(s.classifier, resp); err != nil {
			return strings.Join(out, "\n"), util.NewError(kind, s.device, c, err).WithOutput(resp.Output)
		}
		if resp.Output != "" {
			out = append(out, resp.Output)
		}
	}
	return strings.Join(out, "\n"), nil
}

// roundTrip writes one command and reads up to the next accepted prompt.
// Callers hold s.mu.
func (s *Session) roundTrip(ctx context.Context, cmd Command) (Response, error) {
	if s.desynced {
		if err := s.resync(ctx); err != nil {
			err = fmt.Errorf("%w: no settled prompt after an abandoned command: %v", util.ErrNotConnected, err)
			s.disconnect(err)
			return Response{}, err
		}
		s.desynced = false
	}

	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = s.dialect.CommandTimeout()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logText := cmd.Text
	if cmd.Sensitive {
		logText = "<redacted>"
	}
	log := util.WithDevice(s.device)
	log.Debugf("-> %q", logText)

	if err := s.tr.Write(cmd.Text + s.dialect.LineTerminator()); err != nil {
		if errors.Is(err, util.ErrNotConnected) {
			s.disconnect(err)
		}
		return Response{}, err
	}
	s.roundTrips++

	raw, err := s.tr.ReadUntil(ctx, func(buf string) bool {
		k := s.resolver.Classify(buf)
		if k == prompt.Unrecognized {
			return false
		}
		return cmd.Until == nil || cmd.Until(k)
	})
	resp := Response{
		Raw:    raw,
		Output: prompt.Strip(raw, cmd.Text),
		Prompt: s.resolver.Classify(raw),
	}
	if err != nil {
		if errors.Is(err, util.ErrNotConnected) {
			s.disconnect(err)
		} else {
			s.desynced = true
		}
		log.Debugf("<- %s after %q: %v", resp.Prompt, logText, err)
		return resp, err
	}
	s.track(resp.Prompt)
	log.Debugf("<- %s (%d bytes)", resp.Prompt, len(raw))
	return resp, nil
}

// settleQuiet is how long the device must stay silent after a prompt before
// a resync completes.
var settleQuiet = 150 * time.Millisecond

// resync returns the channel to a known prompt after a round trip was
// abandoned. A bare line terminator is sent, then output is discarded until
// it ends in a prompt and the device goes quiet. Late output of the
// abandoned command is consumed along the way, so it cannot be taken for
// the answer to the next command. Callers hold s.mu.
func (s *Session) resync(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.dialect.CommandTimeout())
	defer cancel()

	log := util.WithDevice(s.device)
	if err := s.tr.Write(s.dialect.LineTerminator()); err != nil {
		return err
	}

	last := prompt.Unrecognized
	discarded := 0
	for {
		quiet, stop := context.WithTimeout(ctx, settleQuiet)
		text, err := s.tr.ReadUntil(quiet, s.resolver.Settled)
		stop()
		discarded += len(text)

		switch {
		case err == nil:
			last = s.resolver.Classify(text)
		case !errors.Is(err, util.ErrTimeout):
			return err
		case text == "" && last != prompt.Unrecognized:
			s.track(last)
			log.Debugf("resynced at %s prompt, %d bytes discarded", last, discarded)
			return nil
		case ctx.Err() != nil:
			return fmt.Errorf("%w after %d bytes", util.ErrTimeout, discarded)
		case text != "":
			last = s.resolver.Classify(text)
		}
	}
}

// check reports a device-side rejection found in resp.
func (s *Session) check(c *errclass.Classifier, resp Response) error {
	if m, ok := c.Match(resp.Output); ok {
		return fmt.Errorf("%w: %s", util.ErrCommandRejected, m)
	}
	return nil
}
