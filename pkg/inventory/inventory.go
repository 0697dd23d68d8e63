// Package inventory loads the device inventory: where each device is, how
// to reach it, which dialect it speaks and the credentials to log in with.
package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/newtcli/pkg/auth"
	"github.com/newtron-network/newtcli/pkg/dialect"
	"github.com/newtron-network/newtcli/pkg/session"
	"github.com/newtron-network/newtcli/pkg/transport"
	"github.com/newtron-network/newtcli/pkg/util"
)

// Transport kinds.
const (
	TransportSSH     = "ssh"
	TransportCommand = "command"
)

// Device is one inventory entry after defaults are applied.
type Device struct {
	Name      string   `yaml:"-"`
	Host      string   `yaml:"host,omitempty"`
	Port      int      `yaml:"port,omitempty"`
	Transport string   `yaml:"transport,omitempty"`
	Command   []string `yaml:"command,omitempty"`
	Dialect   string   `yaml:"dialect,omitempty"`

	Username   string `yaml:"username,omitempty"`
	Password   string `yaml:"password,omitempty"`
	Secret     string `yaml:"secret,omitempty"`
	PrivateKey string `yaml:"private_key,omitempty"`
	KnownHosts string `yaml:"known_hosts,omitempty"`
}

// File is the on-disk inventory format.
type File struct {
	Defaults Device             `yaml:"defaults"`
	Devices  map[string]*Device `yaml:"devices"`
	Access   auth.Policy        `yaml:"access,omitempty"`
}

// Inventory is a loaded, validated inventory. Devices are handed out by
// value so callers cannot alter the loaded credentials.
type Inventory struct {
	path    string
	devices map[string]Device
	access  auth.Policy
}

// Load reads and validates the inventory at path.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	inv, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("inventory %s: %w", path, err)
	}
	inv.path = path
	return inv, nil
}

// Parse decodes an inventory document, applies defaults, expands
// environment references and validates every device.
func Parse(data []byte) (*Inventory, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing inventory YAML: %w", err)
	}

	v := &util.ValidationBuilder{}
	inv := &Inventory{devices: make(map[string]Device, len(f.Devices)), access: f.Access}
	for name, entry := range f.Devices {
		d := f.Defaults
		if entry != nil {
			d = merge(d, *entry)
		}
		d.Name = name
		if d.Transport == "" {
			d.Transport = TransportSSH
		}
		if d.Port == 0 && d.Transport == TransportSSH {
			d.Port = 22
		}
		if err := d.expand(); err != nil {
			v.AddErrorf("device %s: %v", name, err)
			continue
		}
		d.validate(v)
		inv.devices[name] = d
	}
	if err := v.Build(); err != nil {
		return nil, err
	}
	return inv, nil
}

// Path returns the file the inventory was loaded from.
func (inv *Inventory) Path() string {
	return inv.path
}

// Access returns the access policy. An inventory without an access
// section allows every user everything.
func (inv *Inventory) Access() *auth.Policy {
	return &inv.access
}

// Device returns a copy of the named entry.
func (inv *Inventory) Device(name string) (Device, error) {
	d, ok := inv.devices[name]
	if !ok {
		return Device{}, fmt.Errorf("device %q not in inventory", name)
	}
	d.Command = append([]string(nil), d.Command...)
	return d, nil
}

// Names returns the device names in sorted order.
func (inv *Inventory) Names() []string {
	names := make([]string, 0, len(inv.devices))
	for n := range inv.devices {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// merge overlays the non-zero fields of o on d.
func merge(d, o Device) Device {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&d.Host, o.Host)
	set(&d.Transport, o.Transport)
	set(&d.Dialect, o.Dialect)
	set(&d.Username, o.Username)
	set(&d.Password, o.Password)
	set(&d.Secret, o.Secret)
	set(&d.PrivateKey, o.PrivateKey)
	set(&d.KnownHosts, o.KnownHosts)
	if o.Port != 0 {
		d.Port = o.Port
	}
	if len(o.Command) > 0 {
		d.Command = o.Command
	}
	return d
}

// expand resolves ${VAR} references in credentials and paths. "$$" is a
// literal dollar sign; an unset variable is an error rather than an empty
// password.
func (d *Device) expand() error {
	var missing []string
	lookup := func(name string) string {
		if name == "$" {
			return "$"
		}
		v, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return v
	}
	for _, f := range []*string{&d.Host, &d.Username, &d.Password, &d.Secret, &d.PrivateKey, &d.KnownHosts} {
		*f = os.Expand(*f, lookup)
	}
	for _, f := range []*string{&d.PrivateKey, &d.KnownHosts} {
		*f = expandHome(*f)
	}
	if len(missing) > 0 {
		return fmt.Errorf("environment variables not set: %s", strings.Join(missing, ", "))
	}
	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func (d *Device) validate(v *util.ValidationBuilder) {
	v.Add(d.Dialect != "", fmt.Sprintf("device %s: dialect is required", d.Name))
	if d.Dialect != "" {
		if _, err := dialect.Lookup(d.Dialect); err != nil {
			v.AddErrorf("device %s: %v", d.Name, err)
		}
	}
	switch d.Transport {
	case TransportSSH:
		v.Add(d.Host != "", fmt.Sprintf("device %s: host is required for ssh", d.Name))
		v.Add(d.Username != "", fmt.Sprintf("device %s: username is required for ssh", d.Name))
		v.Add(d.Port > 0 && d.Port < 65536, fmt.Sprintf("device %s: invalid port %d", d.Name, d.Port))
	case TransportCommand:
		v.Add(len(d.Command) > 0, fmt.Sprintf("device %s: command is required for transport command", d.Name))
	default:
		v.AddErrorf("device %s: unknown transport %q", d.Name, d.Transport)
	}
}

// Credentials returns the login credentials of d.
func (d Device) Credentials() session.Credentials {
	return session.Credentials{Username: d.Username, Password: d.Password, Secret: d.Secret}
}

// NewTransport builds the unconnected transport for d.
func (d Device) NewTransport() transport.Transport {
	if d.Transport == TransportCommand {
		return transport.NewCommand(d.Command...)
	}
	return transport.NewSSH(transport.SSHConfig{
		Host:           d.Host,
		Port:           d.Port,
		Username:       d.Username,
		Password:       d.Password,
		PrivateKeyPath: d.PrivateKey,
		KnownHostsPath: d.KnownHosts,
	})
}

// NewSession builds an unopened session for d. password, when non-empty,
// replaces a password missing from the inventory.
func (d Device) NewSession(password string) (*session.Session, error) {
	dl, err := dialect.Lookup(d.Dialect)
	if err != nil {
		return nil, err
	}
	if d.Password == "" {
		d.Password = password
	}
	return session.New(d.Name, dl, d.NewTransport(), d.Credentials())
}
