// Package session drives one interactive CLI session to a network device.
//
// A Session owns exactly one Transport. All device I/O goes through it one
// round trip at a time: a command is written, then output is read until the
// device prompt reappears. The session tracks which CLI mode the device is in
// from the prompt it last printed.
package session

import (
	"fmt"
	"sync"

	"github.com/newtron-network/newtcli/pkg/dialect"
	"github.com/newtron-network/newtcli/pkg/errclass"
	"github.com/newtron-network/newtcli/pkg/prompt"
	"github.com/newtron-network/newtcli/pkg/transport"
	"github.com/newtron-network/newtcli/pkg/util"
)

// State is the CLI mode of a session.
type State int

const (
	Disconnected State = iota
	Authenticating
	Unprivileged
	Privileged
	ConfigMode
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Authenticating:
		return "authenticating"
	case Unprivileged:
		return "unprivileged"
	case Privileged:
		return "privileged"
	case ConfigMode:
		return "config"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Credentials authenticate a session. Secret is the privileged-mode
// password; when empty the login password is used.
type Credentials struct {
	Username string
	Password string
	Secret   string
}

func (c Credentials) escalationSecret() string {
	if c.Secret != "" {
		return c.Secret
	}
	return c.Password
}

// Stats counts session activity.
type Stats struct {
	RoundTrips int
}

// Session is one interactive CLI session.
type Session struct {
	device  string
	dialect *dialect.Dialect
	tr      transport.Transport
	creds   Credentials

	resolver     *prompt.Resolver
	classifier   *errclass.Classifier
	commitErrors *errclass.Classifier

	// mu serializes round trips; the transport allows one at a time.
	mu         sync.Mutex
	state      State
	roundTrips int
	// desynced is set when a round trip ended without its prompt. Output
	// still owed by the device must be consumed before the next write.
	desynced bool
}

// New creates a disconnected session. The dialect's patterns are compiled
// here so a broken dialect fails before any connection is made.
func New(device string, d *dialect.Dialect, tr transport.Transport, creds Credentials) (*Session, error) {
	if d == nil {
		return nil, fmt.Errorf("session %s: no dialect", device)
	}
	resolver, err := d.Resolver()
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", device, err)
	}
	classifier, err := d.Classifier()
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", device, err)
	}
	commitErrors, err := d.CommitClassifier()
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", device, err)
	}
	return &Session{
		device:       device,
		dialect:      d,
		tr:           tr,
		creds:        creds,
		resolver:     resolver,
		classifier:   classifier,
		commitErrors: commitErrors,
	}, nil
}

// Device returns the device name.
func (s *Session) Device() string {
	return s.device
}

// Dialect returns the session's dialect.
func (s *Session) Dialect() *dialect.Dialect {
	return s.dialect
}

// State returns the current CLI mode.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns activity counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{RoundTrips: s.roundTrips}
}

// Close sends the dialect's logout command, best effort, and closes the
// transport.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Disconnected {
		return nil
	}
	if s.dialect.Logout != "" && s.state != ConfigMode {
		if err := s.tr.Write(s.dialect.Logout + s.dialect.LineTerminator()); err != nil {
			util.WithDevice(s.device).Debugf("logout: %v", err)
		}
	}
	s.state = Disconnected
	return s.tr.Close()
}

// disconnect marks the session unusable after a fatal error.
func (s *Session) disconnect(cause error) {
	util.WithDevice(s.device).Warnf("session closed: %v", cause)
	s.state = Disconnected
	s.tr.Close()
}

// track updates the mode from the prompt that ended a round trip.
func (s *Session) track(k prompt.Kind) {
	switch k {
	case prompt.Unprivileged:
		s.state = Unprivileged
	case prompt.Privileged:
		s.state = Privileged
	case prompt.Config:
		s.state = ConfigMode
	}
}
