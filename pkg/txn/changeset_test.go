package txn

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/newtron-network/newtcli/pkg/util"
)

func TestChangeSet_Basics(t *testing.T) {
	cs := NewChangeSet("pe1", "apply")
	if cs.ID == "" {
		t.Error("ID should be set")
	}
	if !cs.IsEmpty() {
		t.Error("new change set should be empty")
	}
	if cs.String() != "No changes" {
		t.Errorf("String() = %q", cs.String())
	}

	cs.Add("vlan", "10", ChangeAdd, nil, map[string]string{"name": "users"})
	other := NewChangeSet("pe1", "apply")
	other.Add("vlan", "20", ChangeDelete, nil, nil)
	cs.Merge(other)
	cs.Merge(nil)

	if len(cs.Changes) != 2 {
		t.Fatalf("len(Changes) = %d, want 2", len(cs.Changes))
	}
	if cs.Changes[1].Key != "20" {
		t.Errorf("merged change = %+v", cs.Changes[1])
	}

	s := cs.String()
	if !strings.Contains(s, `[ADD] vlan 10 -> name="users"`) {
		t.Errorf("String() missing add line:\n%s", s)
	}
	if !strings.Contains(s, "[DEL] vlan 20") {
		t.Errorf("String() missing delete line:\n%s", s)
	}

	p := cs.Preview()
	if !strings.HasPrefix(p, "Operation: apply\nDevice: pe1\n") {
		t.Errorf("Preview() = %q", p)
	}

	ac := cs.AuditChanges()
	if len(ac) != 2 || ac[0].Type != "add" || ac[0].After["name"] != "users" {
		t.Errorf("AuditChanges() = %+v", ac)
	}
}

func TestChangeSet_Validate(t *testing.T) {
	tests := []struct {
		name    string
		change  Change
		wantErr bool
	}{
		{"add", Change{Path: "vlan", Key: "10", Type: ChangeAdd, After: map[string]string{}}, false},
		{"delete", Change{Path: "vlan", Key: "10", Type: ChangeDelete}, false},
		{"add without after", Change{Path: "vlan", Key: "10", Type: ChangeAdd}, true},
		{"no path", Change{Key: "10", Type: ChangeDelete}, true},
		{"no key", Change{Path: "vlan", Type: ChangeDelete}, true},
		{"bad type", Change{Path: "vlan", Key: "10", Type: "replace"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := NewChangeSet("pe1", "apply")
			cs.Changes = append(cs.Changes, tt.change)
			err := cs.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, util.ErrValidationFailed) {
				t.Errorf("Validate() error should wrap ErrValidationFailed: %v", err)
			}
		})
	}

	if err := NewChangeSet("", "apply").Validate(); err == nil {
		t.Error("missing device should fail validation")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "changes.yaml")
	content := `device: pe1
operation: vlan-cleanup
changes:
  - path: vlan
    key: "30"
    type: add
    after:
      name: servers
  - path: interface-description
    key: GigabitEthernet0/0/0/1
    type: modify
    after:
      description: to core
  - path: vlan
    key: "20"
    type: delete
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cs.Device != "pe1" || cs.Operation != "vlan-cleanup" {
		t.Errorf("header = %s/%s", cs.Device, cs.Operation)
	}
	if cs.ID == "" {
		t.Error("ID should be generated")
	}
	if len(cs.Changes) != 3 {
		t.Fatalf("len(Changes) = %d, want 3", len(cs.Changes))
	}
	if cs.Changes[0].After["name"] != "servers" || cs.Changes[2].Type != ChangeDelete {
		t.Errorf("changes = %+v", cs.Changes)
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("changes:\n  - path: vlan\n    type: add\n"), 0644)
	if _, err := LoadFile(bad); err == nil {
		t.Error("LoadFile() should reject an invalid change set")
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadFile() should fail on a missing file")
	}
}
