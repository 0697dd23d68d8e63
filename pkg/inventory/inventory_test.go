package inventory

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/newtron-network/newtcli/pkg/transport"
	"github.com/newtron-network/newtcli/pkg/util"
)

const sample = `
defaults:
  dialect: cisco-iosxr
  username: netops
  password: ${NEWTCLI_TEST_PASSWORD}
devices:
  pe1:
    host: 10.0.0.1
    secret: en$$able
  pe2:
    host: 10.0.0.2
    port: 2222
    dialect: arista-eos
    username: admin
  con1:
    transport: command
    command: [telnet, cs1.lab, "2001"]
`

func TestParse(t *testing.T) {
	t.Setenv("NEWTCLI_TEST_PASSWORD", "s3cret")

	inv, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := strings.Join(inv.Names(), ","); got != "con1,pe1,pe2" {
		t.Errorf("Names() = %s", got)
	}

	pe1, err := inv.Device("pe1")
	if err != nil {
		t.Fatal(err)
	}
	if pe1.Port != 22 || pe1.Transport != TransportSSH {
		t.Errorf("pe1 defaults not applied: %+v", pe1)
	}
	creds := pe1.Credentials()
	if creds.Username != "netops" || creds.Password != "s3cret" {
		t.Errorf("pe1 credentials = %+v", creds)
	}
	if creds.Secret != "en$able" {
		t.Errorf("pe1 secret = %q, want literal dollar", creds.Secret)
	}

	pe2, _ := inv.Device("pe2")
	if pe2.Port != 2222 || pe2.Dialect != "arista-eos" || pe2.Username != "admin" {
		t.Errorf("pe2 overrides not applied: %+v", pe2)
	}
	if pe2.Password != "s3cret" {
		t.Errorf("pe2 should inherit the default password")
	}

	con1, _ := inv.Device("con1")
	if con1.Port != 0 {
		t.Errorf("command transport should not get an ssh port, got %d", con1.Port)
	}
	if _, ok := con1.NewTransport().(*transport.Command); !ok {
		t.Errorf("con1 transport = %T, want *transport.Command", con1.NewTransport())
	}
	if _, ok := pe1.NewTransport().(*transport.SSH); !ok {
		t.Errorf("pe1 transport = %T, want *transport.SSH", pe1.NewTransport())
	}

	if _, err := inv.Device("pe9"); err == nil {
		t.Error("Device() should fail for an unknown name")
	}
}

func TestDevice_IsACopy(t *testing.T) {
	t.Setenv("NEWTCLI_TEST_PASSWORD", "s3cret")
	inv, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}

	d, _ := inv.Device("con1")
	d.Password = "changed"
	d.Command[0] = "ssh"

	again, _ := inv.Device("con1")
	if again.Password != "s3cret" || again.Command[0] != "telnet" {
		t.Errorf("inventory entry was modified through a copy: %+v", again)
	}
}

func TestParse_MissingEnv(t *testing.T) {
	os.Unsetenv("NEWTCLI_TEST_PASSWORD")
	_, err := Parse([]byte(sample))
	if err == nil {
		t.Fatal("Parse() should fail when a referenced variable is unset")
	}
	if !strings.Contains(err.Error(), "NEWTCLI_TEST_PASSWORD") {
		t.Errorf("error should name the variable: %v", err)
	}
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no dialect", "devices:\n  pe1:\n    host: h\n    username: u\n"},
		{"unknown dialect", "devices:\n  pe1:\n    host: h\n    username: u\n    dialect: junos\n"},
		{"no host", "devices:\n  pe1:\n    username: u\n    dialect: cisco-iosxr\n"},
		{"no username", "devices:\n  pe1:\n    host: h\n    dialect: cisco-iosxr\n"},
		{"bad port", "devices:\n  pe1:\n    host: h\n    username: u\n    port: 70000\n    dialect: cisco-iosxr\n"},
		{"no command", "devices:\n  c1:\n    transport: command\n    dialect: cisco-iosxr\n"},
		{"bad transport", "devices:\n  c1:\n    transport: serial\n    dialect: cisco-iosxr\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("Parse() should fail")
			}
			if !errors.Is(err, util.ErrValidationFailed) {
				t.Errorf("error should wrap ErrValidationFailed: %v", err)
			}
		})
	}

	if _, err := Parse([]byte("devices: [")); err == nil {
		t.Error("Parse() should reject malformed YAML")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	doc := "devices:\n  pe1:\n    host: h\n    username: u\n    dialect: cisco-iosxr\n    known_hosts: ~/.ssh/known_hosts\n"
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatal(err)
	}

	inv, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if inv.Path() != path {
		t.Errorf("Path() = %q", inv.Path())
	}
	d, _ := inv.Device("pe1")
	if strings.HasPrefix(d.KnownHosts, "~") {
		t.Errorf("KnownHosts not expanded: %q", d.KnownHosts)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}

func TestNewSession(t *testing.T) {
	inv, err := Parse([]byte("devices:\n  pe1:\n    host: h\n    username: u\n    dialect: cisco-iosxr\n"))
	if err != nil {
		t.Fatal(err)
	}
	d, _ := inv.Device("pe1")
	s, err := d.NewSession("typed")
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if s.Device() != "pe1" || s.Dialect().Name != "cisco-iosxr" {
		t.Errorf("session = %s/%s", s.Device(), s.Dialect().Name)
	}
}

func TestParse_Access(t *testing.T) {
	doc := `
devices:
  pe1: {host: h, username: u, dialect: cisco-iosxr}
access:
  super_users: [root]
  user_groups:
    netops: [alice]
  permissions:
    vlan.write: [netops]
  devices:
    pe1:
      exec: [bob]
`
	inv, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	p := inv.Access()
	if p.IsEmpty() {
		t.Fatal("access policy should be loaded")
	}
	if p.Permissions["vlan.write"][0] != "netops" || p.Devices["pe1"]["exec"][0] != "bob" {
		t.Errorf("policy = %+v", p)
	}

	inv, _ = Parse([]byte("devices: {}\n"))
	if !inv.Access().IsEmpty() {
		t.Error("inventory without access should have an empty policy")
	}
}
