package prompt

import "testing"

func iosxrPatterns() Patterns {
	return Patterns{
		Unprivileged: `^\S+>\s*$`,
		Privileged:   `^\S+#\s*$`,
		Config:       `^\S+\(config[^)]*\)#\s*$`,
		Password:     `(?i)^.*password:\s*$`,
	}
}

func TestResolver_Classify(t *testing.T) {
	r, err := NewResolver(iosxrPatterns())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	tests := []struct {
		name string
		text string
		want Kind
	}{
		{"privileged", "show version\r\nCisco IOS XR\r\nRP/0/RP0/CPU0:pe1#", Privileged},
		{"privileged trailing space", "pe1# ", Privileged},
		{"config", "configure terminal\r\nRP/0/RP0/CPU0:pe1(config)#", Config},
		{"config submode", "pe1(config-if)#", Config},
		{"unprivileged", "Welcome\npe1>", Unprivileged},
		{"password", "enable\r\nPassword: ", Password},
		{"password lowercase", "password:", Password},
		{"mid output", "interface Gi0/0/0/0\n description uplink\n", Unrecognized},
		{"empty", "", Unrecognized},
		{"blank lines", "\r\n\r\n", Unrecognized},
		{"trailing newline after prompt", "pe1#\r\n", Privileged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Classify(tt.text); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestResolver_ConfigBeforePrivileged(t *testing.T) {
	// A privileged pattern loose enough to match config prompts too.
	r, err := NewResolver(Patterns{
		Privileged: `#\s*$`,
		Config:     `\(config\)#\s*$`,
	})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if got := r.Classify("sw1(config)#"); got != Config {
		t.Errorf("Classify() = %v, want config", got)
	}
	if got := r.Classify("sw1#"); got != Privileged {
		t.Errorf("Classify() = %v, want privileged", got)
	}
}

func TestNewResolver_Errors(t *testing.T) {
	if _, err := NewResolver(Patterns{}); err == nil {
		t.Error("expected error for empty patterns")
	}
	if _, err := NewResolver(Patterns{Privileged: "(["}); err == nil {
		t.Error("expected error for invalid regex")
	}
}

func TestSettled(t *testing.T) {
	r, _ := NewResolver(iosxrPatterns())
	if r.Settled("building configuration...") {
		t.Error("partial output should not be settled")
	}
	if !r.Settled("done\npe1#") {
		t.Error("output ending in prompt should be settled")
	}
}

func TestStrip(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		command string
		want    string
	}{
		{
			name:    "echo and prompt",
			text:    "show running-config vlan\r\nvlan 10\r\n name users\r\npe1#",
			command: "show running-config vlan",
			want:    "vlan 10\n name users",
		},
		{
			name:    "no echo",
			text:    "vlan 10\npe1#",
			command: "show vlan",
			want:    "vlan 10",
		},
		{
			name:    "prompt only",
			text:    "vlan 20\r\npe1(config)#",
			command: "vlan 20",
			want:    "",
		},
		{
			name:    "empty",
			text:    "",
			command: "x",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Strip(tt.text, tt.command); got != tt.want {
				t.Errorf("Strip() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKind_String(t *testing.T) {
	if Config.String() != "config" || Unrecognized.String() != "unrecognized" {
		t.Error("unexpected Kind strings")
	}
}
