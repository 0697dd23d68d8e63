package util

import "testing"

func TestParseInterfaceName(t *testing.T) {
	tests := []struct {
		input                  string
		wantType, wantNum, sub string
	}{
		{"GigabitEthernet0/0/0/1", "GigabitEthernet", "0/0/0/1", ""},
		{"Bundle-Ether10.100", "Bundle-Ether", "10", "100"},
		{"Loopback0", "Loopback", "0", ""},
		{"mgmt", "mgmt", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ifType, num, sub := ParseInterfaceName(tt.input)
			if ifType != tt.wantType || num != tt.wantNum || sub != tt.sub {
				t.Errorf("ParseInterfaceName(%q) = (%q, %q, %q)", tt.input, ifType, num, sub)
			}
		})
	}
}

func TestShortenInterfaceName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"GigabitEthernet0/0/0/1", "Gi0/0/0/1"},
		{"Bundle-Ether10.100", "BE10.100"},
		{"HundredGigE0/0/1/0", "Hu0/0/1/0"},
		{"Loopback0", "Lo0"},
		{"Unknown0", "Unknown0"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ShortenInterfaceName(tt.input); got != tt.want {
				t.Errorf("ShortenInterfaceName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeInterfaceName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"gi0/0/0/1", "GigabitEthernet0/0/0/1"},
		{"Gi0/0/0/1", "GigabitEthernet0/0/0/1"},
		{"GI0/0/0/1", "GigabitEthernet0/0/0/1"},
		{"be10.100", "Bundle-Ether10.100"},
		{"lo0", "Loopback0"},
		{"eth1", "Ethernet1"},
		{"vlan100", "Vlan100"},
		{"vl100", "Vlan100"},
		{"GigabitEthernet0/0/0/1", "GigabitEthernet0/0/0/1"}, // Already normalized
		{"Bundle-Ether10", "Bundle-Ether10"},
		{" te0/0/0/0 ", "TenGigE0/0/0/0"},
		{"xyz1", "xyz1"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeInterfaceName(tt.input); got != tt.want {
				t.Errorf("NormalizeInterfaceName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestShortenNormalize_RoundTrip(t *testing.T) {
	for _, name := range []string{"GigabitEthernet0/0/0/1", "Bundle-Ether10.100", "Loopback0", "HundredGigE0/0/1/0"} {
		if got := NormalizeInterfaceName(ShortenInterfaceName(name)); got != name {
			t.Errorf("round trip %q -> %q", name, got)
		}
	}
}
