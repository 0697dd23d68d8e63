package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/newtron-network/newtcli/pkg/prompt"
	"github.com/newtron-network/newtcli/pkg/util"
)

// Open connects the transport and brings the session to privileged mode:
// read the first prompt, turn off paging, then escalate if needed. Open on
// a session that is already privileged does nothing.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Privileged || s.state == ConfigMode {
		return nil
	}
	log := util.WithDevice(s.device)

	s.state = Authenticating
	if err := s.tr.Connect(ctx); err != nil {
		s.state = Disconnected
		return util.NewError(util.KindConnection, s.device, "", err)
	}

	readCtx, cancel := context.WithTimeout(ctx, s.dialect.ReadTimeout())
	raw, err := s.tr.ReadUntil(readCtx, s.resolver.Settled)
	cancel()
	if err != nil {
		return s.failInit("", fmt.Errorf("waiting for initial prompt: %w", err))
	}
	current := s.resolver.Classify(raw)

	if current == prompt.Password {
		// Console lines ask for the login password in-band.
		resp, err := s.authenticate(ctx, s.creds.Password)
		if err != nil {
			return s.failInit("", err)
		}
		current = resp.Prompt
	}
	s.track(current)

	for _, c := range s.dialect.PagingOff {
		resp, err := s.roundTrip(ctx, Command{Text: c, Timeout: s.dialect.ReadTimeout()})
		if err != nil {
			if s.state == Disconnected {
				return util.NewError(util.KindInitialization, s.device, c, err)
			}
			log.Debugf("paging off %q: %v", c, err)
			continue
		}
		current = resp.Prompt
	}

	switch current {
	case prompt.Privileged:
		s.state = Privileged
		log.Debug("already privileged")
		return nil
	case prompt.Unprivileged:
	default:
		return s.failInit("", fmt.Errorf("%w: %s at login", util.ErrUnexpectedPrompt, current))
	}

	if s.dialect.Escalate == "" {
		return s.failInit("", fmt.Errorf("%w: dialect %s has no escalate command", util.ErrUnexpectedPrompt, s.dialect.Name))
	}
	resp, err := s.roundTrip(ctx, Command{Text: s.dialect.Escalate, Timeout: s.dialect.ReadTimeout()})
	if err != nil {
		return s.failInit(s.dialect.Escalate, err)
	}
	if resp.Prompt == prompt.Password {
		resp, err = s.authenticate(ctx, s.creds.escalationSecret())
		if err != nil {
			return s.failInit(s.dialect.Escalate, err)
		}
	}

	if resp.Prompt != prompt.Privileged {
		return s.failInit(s.dialect.Escalate,
			fmt.Errorf("%w: %s after escalation", util.ErrUnexpectedPrompt, resp.Prompt))
	}
	s.state = Privileged
	log.Debug("privileged mode")
	return nil
}

// authenticate answers a password prompt. While the device keeps asking it
// is sent bare newlines until the prompt changes; only ctx bounds the loop,
// since lockout banners may take several prompts to clear.
func (s *Session) authenticate(ctx context.Context, secret string) (Response, error) {
	resp, err := s.roundTrip(ctx, Command{Text: secret, Sensitive: true, Timeout: s.dialect.ReadTimeout()})
	if err != nil {
		return resp, err
	}
	for resp.Prompt == prompt.Password {
		if err := ctx.Err(); err != nil {
			return resp, err
		}
		util.WithDevice(s.device).Debug("device re-prompted for password")
		resp, err = s.roundTrip(ctx, Command{Text: "", Timeout: s.dialect.ReadTimeout()})
		if err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func (s *Session) failInit(command string, cause error) error {
	err := util.NewError(util.KindInitialization, s.device, command, cause)
	s.disconnect(err)
	return err
}

// EnterConfigMode moves a privileged session into config mode.
func (s *Session) EnterConfigMode(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case ConfigMode:
		return nil
	case Privileged:
	default:
		return fmt.Errorf("%w: enter config mode from %s", util.ErrInvalidState, s.state)
	}

	resp, err := s.roundTrip(ctx, Command{
		Text:    s.dialect.ConfigEnter,
		Until:   Expect(prompt.Config, prompt.Privileged),
		Timeout: s.dialect.ReadTimeout(),
	})
	if err != nil {
		return fmt.Errorf("entering config mode on %s: %w", s.device, err)
	}
	if err := s.check(s.classifier, resp); err != nil {
		return fmt.Errorf("entering config mode on %s: %w", s.device, err)
	}
	if resp.Prompt != prompt.Config {
		return fmt.Errorf("entering config mode on %s: %w: %s", s.device, util.ErrUnexpectedPrompt, resp.Prompt)
	}
	return nil
}

// ExitConfigMode returns a config-mode session to privileged mode.
func (s *Session) ExitConfigMode(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Privileged:
		return nil
	case ConfigMode:
	default:
		return fmt.Errorf("%w: exit config mode from %s", util.ErrInvalidState, s.state)
	}

	_, err := s.roundTrip(ctx, Command{
		Text:    s.dialect.ConfigExit,
		Until:   Expect(prompt.Privileged),
		Timeout: s.dialect.ReadTimeout(),
	})
	if err != nil {
		return fmt.Errorf("exiting config mode on %s: %w", s.device, err)
	}
	return nil
}

// Commit sends the commit command and returns its output verbatim. Output
// matching an error or commit-failure marker is a KindCommitFailed error;
// the session stays in config mode so the edit can be aborted.
func (s *Session) Commit(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := s.dialect.Commit
	if s.state != ConfigMode {
		return "", util.NewError(util.KindCommitFailed, s.device, cmd,
			fmt.Errorf("%w: commit in %s mode", util.ErrInvalidState, s.state))
	}
	resp, err := s.roundTrip(ctx, Command{Text: cmd, Timeout: s.dialect.CommitTimeout()})
	if err != nil {
		return resp.Output, util.NewError(util.KindCommitFailed, s.device, cmd, err).WithOutput(resp.Output)
	}
	if err := s.check(s.commitErrors, resp); err != nil {
		return resp.Output, util.NewError(util.KindCommitFailed, s.device, cmd, err).WithOutput(resp.Output)
	}
	return resp.Output, nil
}

// Diagnose runs the dialect's failure-report command. Its output is
// returned as-is and never classified.
func (s *Session) Diagnose(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dialect.Diagnose == "" {
		return "", nil
	}
	if s.state == Disconnected {
		return "", util.ErrNotConnected
	}
	resp, err := s.roundTrip(ctx, Command{Text: s.dialect.Diagnose, Timeout: s.dialect.CommitTimeout()})
	return resp.Output, err
}

// Abort discards the uncommitted edit and requires the device to come back
// to the privileged prompt. Any failure is KindRevertFailed: the device
// state is then unknown.
func (s *Session) Abort(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := s.dialect.Abort
	if s.state == Privileged {
		return nil
	}
	if s.state != ConfigMode {
		return util.NewError(util.KindRevertFailed, s.device, cmd,
			fmt.Errorf("%w: abort in %s mode", util.ErrInvalidState, s.state))
	}
	resp, err := s.roundTrip(ctx, Command{
		Text:    cmd,
		Until:   Expect(prompt.Privileged),
		Timeout: s.dialect.CommitTimeout(),
	})
	if err != nil {
		if !errors.Is(err, util.ErrNotConnected) {
			// The device is somewhere we cannot describe.
			s.disconnect(err)
		}
		return util.NewError(util.KindRevertFailed, s.device, cmd, err).WithOutput(resp.Output)
	}
	if err := s.check(s.classifier, resp); err != nil {
		return util.NewError(util.KindRevertFailed, s.device, cmd, err).WithOutput(resp.Output)
	}
	return nil
}
