// Package testutil provides test helpers: a simulated CLI device for unit
// tests and Redis helpers for integration tests.
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type simMode int

const (
	modeUnprivileged simMode = iota
	modePassword
	modePrivileged
	modeConfig
	modeConfigVLAN
	modeConfigIf
)

// SimDevice is an in-memory Cisco-style CLI. It implements io.ReadWriteCloser
// so it can sit behind transport.NewStream. Every line written is recorded
// in the command log before it is executed.
//
// The device keeps a running configuration (VLANs and interface
// descriptions) and a candidate copy while in config mode; commit copies
// the candidate into running, abort discards it.
type SimDevice struct {
	Hostname string
	// Secret is the enable secret. Empty means "enable" needs no password.
	Secret string
	// PasswordReprompts is the number of extra Password: prompts the device
	// prints after the first secret before granting privileged mode.
	PasswordReprompts int
	// FailCommit, when non-empty, makes every commit fail; the text is shown
	// by "show configuration failed".
	FailCommit string
	// DropOnAbort closes the connection when abort is received.
	DropOnAbort bool
	// Reject maps a command to the error text it produces.
	Reject map[string]string
	// Delay holds a command back for the given time before it is executed.
	// Lines written meanwhile queue behind it, as on a real terminal.
	Delay map[string]time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	out     bytes.Buffer
	in      bytes.Buffer
	closed  bool
	mode    simMode
	log     []string
	queue   []string
	vlanCtx int
	ifCtx   string

	running   simConfig
	candidate simConfig
}

type simConfig struct {
	vlans map[int]string
	descs map[string]string
}

func newSimConfig() simConfig {
	return simConfig{vlans: map[int]string{}, descs: map[string]string{}}
}

func (c simConfig) clone() simConfig {
	n := newSimConfig()
	for k, v := range c.vlans {
		n.vlans[k] = v
	}
	for k, v := range c.descs {
		n.descs[k] = v
	}
	return n
}

// NewSimDevice creates a device sitting at the unprivileged prompt with a
// login banner already queued for reading.
func NewSimDevice(hostname string) *SimDevice {
	d := &SimDevice{
		Hostname: hostname,
		running:  newSimConfig(),
		Reject:   map[string]string{},
	}
	d.cond = sync.NewCond(&d.mu)
	d.running.descs["GigabitEthernet0/0/0/0"] = ""
	d.running.descs["GigabitEthernet0/0/0/1"] = ""
	d.out.WriteString("\r\nUser Access Verification\r\n\r\n" + d.prompt())
	return d
}

// NewPrivilegedSimDevice creates a device that logs straight into
// privileged mode.
func NewPrivilegedSimDevice(hostname string) *SimDevice {
	d := NewSimDevice(hostname)
	d.mu.Lock()
	d.mode = modePrivileged
	d.out.Reset()
	d.out.WriteString(d.prompt())
	d.mu.Unlock()
	return d
}

// AddVLAN seeds the running configuration.
func (d *SimDevice) AddVLAN(id int, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running.vlans[id] = name
}

// VLANs returns a copy of the running VLAN table.
func (d *SimDevice) VLANs() map[int]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running.clone().vlans
}

// Description returns the running description of an interface.
func (d *SimDevice) Description(iface string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running.descs[iface]
}

// InConfigMode reports whether the device is in config mode or a sub-mode.
func (d *SimDevice) InConfigMode() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode >= modeConfig
}

// Commands returns every line received, in order. Password lines are
// recorded as written.
func (d *SimDevice) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.log...)
}

// Count returns how many times cmd was received.
func (d *SimDevice) Count(cmd string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.log {
		if c == cmd {
			n++
		}
	}
	return n
}

// Read implements io.Reader. It blocks until output is queued or the
// device is closed.
func (d *SimDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.out.Len() == 0 && !d.closed {
		d.cond.Wait()
	}
	if d.out.Len() == 0 {
		return 0, io.EOF
	}
	return d.out.Read(p)
}

// Write implements io.Writer. Complete lines are executed immediately and
// their response queued for Read.
func (d *SimDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, io.ErrClosedPipe
	}
	d.in.Write(p)
	for {
		line, err := d.in.ReadString('\n')
		if err != nil {
			// Keep the partial line for the next write.
			d.in.Reset()
			d.in.WriteString(line)
			break
		}
		d.accept(strings.TrimRight(line, "\r\n"))
	}
	d.cond.Broadcast()
	return len(p), nil
}

// accept executes line now, or queues it behind a delayed command.
func (d *SimDevice) accept(line string) {
	if len(d.queue) == 0 && d.Delay[strings.TrimSpace(line)] == 0 {
		d.execute(line)
		return
	}
	d.queue = append(d.queue, line)
	if len(d.queue) == 1 {
		go d.drain()
	}
}

// drain executes queued lines in order, sleeping before delayed ones. The
// head of the queue stays queued while it sleeps so later lines wait.
func (d *SimDevice) drain() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) > 0 {
		line := d.queue[0]
		if wait := d.Delay[strings.TrimSpace(line)]; wait > 0 {
			d.mu.Unlock()
			time.Sleep(wait)
			d.mu.Lock()
		}
		if d.closed {
			d.queue = nil
			return
		}
		d.execute(line)
		d.queue = d.queue[1:]
		d.cond.Broadcast()
	}
}

// Close implements io.Closer.
func (d *SimDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cond.Broadcast()
	return nil
}

func (d *SimDevice) prompt() string {
	switch d.mode {
	case modePassword:
		return "Password: "
	case modePrivileged:
		return d.Hostname + "#"
	case modeConfig:
		return d.Hostname + "(config)#"
	case modeConfigVLAN:
		return d.Hostname + "(config-vlan)#"
	case modeConfigIf:
		return d.Hostname + "(config-if)#"
	default:
		return d.Hostname + ">"
	}
}

func (d *SimDevice) reply(lines ...string) {
	for _, l := range lines {
		d.out.WriteString(l + "\r\n")
	}
	d.out.WriteString(d.prompt())
}

func (d *SimDevice) invalid(line string) {
	d.reply("         ^", "% Invalid input detected at '^' marker.")
}

func (d *SimDevice) execute(line string) {
	d.log = append(d.log, line)

	if d.mode == modePassword {
		// Passwords are not echoed.
		d.out.WriteString("\r\n")
		if d.PasswordReprompts > 0 {
			d.PasswordReprompts--
			d.out.WriteString(d.prompt())
			return
		}
		if d.Secret != "" && line != d.Secret && line != "" {
			d.mode = modeUnprivileged
			d.reply("% Access denied")
			return
		}
		d.mode = modePrivileged
		d.out.WriteString(d.prompt())
		return
	}

	d.out.WriteString(line + "\r\n")
	cmd := strings.TrimSpace(line)

	if msg, ok := d.Reject[cmd]; ok {
		d.reply(msg)
		return
	}

	switch {
	case cmd == "":
		d.reply()
	case strings.HasPrefix(cmd, "terminal "):
		d.reply()
	case strings.HasPrefix(cmd, "show "):
		d.show(cmd)
	case d.mode == modeUnprivileged:
		d.unprivileged(cmd)
	case d.mode == modePrivileged:
		d.privileged(cmd)
	default:
		d.config(cmd)
	}
}

func (d *SimDevice) unprivileged(cmd string) {
	switch cmd {
	case "enable":
		if d.Secret == "" && d.PasswordReprompts == 0 {
			d.mode = modePrivileged
		} else {
			d.mode = modePassword
		}
		d.reply()
	case "exit":
		d.closed = true
	default:
		d.invalid(cmd)
	}
}

func (d *SimDevice) privileged(cmd string) {
	switch {
	case cmd == "configure terminal" || strings.HasPrefix(cmd, "configure session"):
		d.mode = modeConfig
		d.candidate = d.running.clone()
		d.reply()
	case cmd == "exit":
		d.closed = true
	default:
		d.invalid(cmd)
	}
}

func (d *SimDevice) config(cmd string) {
	fields := strings.Fields(cmd)
	switch {
	case cmd == "commit":
		if d.FailCommit != "" {
			d.reply("% Failed to commit one or more configuration items during a pseudo-atomic operation.",
				"All changes made have been reverted.")
			return
		}
		d.running = d.candidate.clone()
		d.reply()
	case cmd == "abort":
		if d.DropOnAbort {
			d.closed = true
			return
		}
		d.candidate = simConfig{}
		d.mode = modePrivileged
		d.reply()
	case cmd == "end":
		d.candidate = simConfig{}
		d.mode = modePrivileged
		d.reply()
	case cmd == "exit":
		if d.mode == modeConfig {
			d.candidate = simConfig{}
			d.mode = modePrivileged
		} else {
			d.mode = modeConfig
		}
		d.reply()
	case len(fields) == 2 && fields[0] == "vlan":
		id, err := strconv.Atoi(fields[1])
		if err != nil || id < 1 || id > 4094 {
			d.invalid(cmd)
			return
		}
		if _, ok := d.candidate.vlans[id]; !ok {
			d.candidate.vlans[id] = ""
		}
		d.vlanCtx = id
		d.mode = modeConfigVLAN
		d.reply()
	case len(fields) == 3 && fields[0] == "no" && fields[1] == "vlan":
		id, err := strconv.Atoi(fields[2])
		if err != nil {
			d.invalid(cmd)
			return
		}
		delete(d.candidate.vlans, id)
		d.mode = modeConfig
		d.reply()
	case len(fields) >= 2 && fields[0] == "name" && d.mode == modeConfigVLAN:
		d.candidate.vlans[d.vlanCtx] = strings.Join(fields[1:], " ")
		d.reply()
	case len(fields) == 2 && fields[0] == "interface":
		if _, ok := d.candidate.descs[fields[1]]; !ok {
			d.invalid(cmd)
			return
		}
		d.ifCtx = fields[1]
		d.mode = modeConfigIf
		d.reply()
	case len(fields) >= 2 && fields[0] == "description" && d.mode == modeConfigIf:
		d.candidate.descs[d.ifCtx] = strings.TrimSpace(strings.TrimPrefix(cmd, "description"))
		d.reply()
	case cmd == "no description" && d.mode == modeConfigIf:
		d.candidate.descs[d.ifCtx] = ""
		d.reply()
	default:
		d.invalid(cmd)
	}
}

func (d *SimDevice) show(cmd string) {
	switch cmd {
	case "show version":
		d.reply("Cisco IOS XR Software, Version 7.9.2", d.Hostname+" uptime is 3 weeks")
	case "show running-config vlan":
		var lines []string
		ids := make([]int, 0, len(d.running.vlans))
		for id := range d.running.vlans {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			lines = append(lines, fmt.Sprintf("vlan %d", id))
			if name := d.running.vlans[id]; name != "" {
				lines = append(lines, " name "+name)
			}
			lines = append(lines, "!")
		}
		d.reply(lines...)
	case "show running-config interface":
		var lines []string
		names := make([]string, 0, len(d.running.descs))
		for n := range d.running.descs {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			lines = append(lines, "interface "+n)
			if desc := d.running.descs[n]; desc != "" {
				lines = append(lines, " description "+desc)
			}
			lines = append(lines, "!")
		}
		d.reply(lines...)
	case "show configuration failed":
		if d.FailCommit == "" {
			d.reply()
			return
		}
		d.reply("!! SEMANTIC ERRORS: This configuration was rejected by the system.", d.FailCommit)
	default:
		d.invalid(cmd)
	}
}
