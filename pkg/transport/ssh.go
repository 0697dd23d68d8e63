package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/newtron-network/newtcli/pkg/util"
)

// SSHConfig configures an interactive SSH shell.
type SSHConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	// PrivateKeyPath enables public key auth in addition to password.
	PrivateKeyPath string
	// KnownHostsPath enables host key verification. Empty disables it.
	KnownHostsPath string

	DialTimeout time.Duration

	// PTY geometry. Devices paginate on narrow terminals even after
	// "terminal length 0" on some releases, so the defaults are wide.
	Term string
	Cols int
	Rows int
}

// SSH is a Transport over an interactive shell on a PTY.
type SSH struct {
	cfg     SSHConfig
	client  *ssh.Client
	session *ssh.Session
	stream  *Stream
}

// NewSSH creates an unconnected SSH transport.
func NewSSH(cfg SSHConfig) *SSH {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Term == "" {
		cfg.Term = "vt100"
	}
	if cfg.Cols == 0 {
		cfg.Cols = 511
	}
	if cfg.Rows == 0 {
		cfg.Rows = 24
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 15 * time.Second
	}
	return &SSH{cfg: cfg}
}

func (t *SSH) clientConfig() (*ssh.ClientConfig, error) {
	auth := []ssh.AuthMethod{
		ssh.Password(t.cfg.Password),
		ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				answers[i] = t.cfg.Password
			}
			return answers, nil
		}),
	}

	if t.cfg.PrivateKeyPath != "" {
		key, err := os.ReadFile(t.cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		auth = append([]ssh.AuthMethod{ssh.PublicKeys(signer)}, auth...)
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if t.cfg.KnownHostsPath == "" {
		util.WithDevice(t.cfg.Host).Warnf("SSH to %s: host key verification disabled (InsecureIgnoreHostKey)", t.cfg.Host)
	} else {
		cb, err := knownhosts.New(t.cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("loading known_hosts: %w", err)
		}
		hostKey = cb
	}

	return &ssh.ClientConfig{
		User:            t.cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         t.cfg.DialTimeout,
	}, nil
}

// Connect dials the device and starts an interactive shell.
func (t *SSH) Connect(ctx context.Context) error {
	if t.stream != nil {
		return nil
	}

	config, err := t.clientConfig()
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	dialer := &net.Dialer{Timeout: t.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("SSH dial %s: %w", addr, err)
	}

	c, chans, reqs, err := handshake(ctx, conn, addr, config)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SSH handshake %s: %w", addr, err)
	}
	t.client = ssh.NewClient(c, chans, reqs)

	session, err := t.client.NewSession()
	if err != nil {
		t.client.Close()
		return fmt.Errorf("SSH session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 38400,
		ssh.TTY_OP_OSPEED: 38400,
	}
	if err := session.RequestPty(t.cfg.Term, t.cfg.Rows, t.cfg.Cols, modes); err != nil {
		session.Close()
		t.client.Close()
		return fmt.Errorf("SSH pty request: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		t.client.Close()
		return fmt.Errorf("SSH stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		t.client.Close()
		return fmt.Errorf("SSH stdout: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		t.client.Close()
		return fmt.Errorf("SSH shell: %w", err)
	}

	t.session = session
	client := t.client
	t.stream = NewStream(&readWriteCloser{
		Reader: stdout,
		Writer: stdin,
		close: func() error {
			session.Close()
			return client.Close()
		},
	})

	util.WithDevice(t.cfg.Host).Debugf("SSH shell opened on %s as %s", addr, t.cfg.Username)
	return nil
}

// handshake runs the SSH handshake on conn, bounded by the config timeout
// and by ctx. A done ctx expires the connection deadline, which unblocks the
// handshake.
func handshake(ctx context.Context, conn net.Conn, addr string, config *ssh.ClientConfig) (ssh.Conn, <-chan ssh.NewChannel, <-chan *ssh.Request, error) {
	if config.Timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(config.Timeout)); err != nil {
			return nil, nil, nil, err
		}
	}

	stop := make(chan struct{})
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		select {
		case <-ctx.Done():
			conn.SetDeadline(time.Now())
		case <-stop:
		}
	}()

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	close(stop)
	<-watched
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return nil, nil, nil, err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		c.Close()
		return nil, nil, nil, err
	}
	return c, chans, reqs, nil
}

// Write implements Transport.
func (t *SSH) Write(text string) error {
	if t.stream == nil {
		return util.ErrNotConnected
	}
	return t.stream.Write(text)
}

// ReadUntil implements Transport.
func (t *SSH) ReadUntil(ctx context.Context, match func(string) bool) (string, error) {
	if t.stream == nil {
		return "", util.ErrNotConnected
	}
	return t.stream.ReadUntil(ctx, match)
}

// Close implements Transport.
func (t *SSH) Close() error {
	if t.stream == nil {
		return nil
	}
	err := t.stream.Close()
	t.stream = nil
	t.session = nil
	t.client = nil
	return err
}
