// Package txn runs configuration edits against a device as transactions:
// enter config mode, apply every change, commit, and abort on failure.
package txn

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/newtron-network/newtcli/pkg/audit"
	"github.com/newtron-network/newtcli/pkg/util"
)

// ChangeType represents the type of configuration change.
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeModify ChangeType = "modify"
	ChangeDelete ChangeType = "delete"
)

// Change represents a single configuration change. Path selects the
// handler; Before may be left empty and is then read from the device.
type Change struct {
	Path   string            `json:"path" yaml:"path"`
	Key    string            `json:"key" yaml:"key"`
	Type   ChangeType        `json:"type" yaml:"type"`
	Before map[string]string `json:"before,omitempty" yaml:"before,omitempty"`
	After  map[string]string `json:"after,omitempty" yaml:"after,omitempty"`
}

// ChangeSet is the ordered list of changes of one edit.
type ChangeSet struct {
	ID        string    `json:"id" yaml:"-"`
	Device    string    `json:"device" yaml:"device"`
	Operation string    `json:"operation" yaml:"operation"`
	Timestamp time.Time `json:"timestamp" yaml:"-"`
	Changes   []Change  `json:"changes" yaml:"changes"`
}

// NewChangeSet creates a new ChangeSet.
func NewChangeSet(device, operation string) *ChangeSet {
	return &ChangeSet{
		ID:        uuid.NewString(),
		Device:    device,
		Operation: operation,
		Timestamp: time.Now(),
		Changes:   make([]Change, 0),
	}
}

// LoadFile reads a change set from YAML.
func LoadFile(path string) (*ChangeSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading change file: %w", err)
	}
	cs := NewChangeSet("", "apply")
	if err := yaml.Unmarshal(data, cs); err != nil {
		return nil, fmt.Errorf("parsing change file %s: %w", path, err)
	}
	if cs.Changes == nil {
		cs.Changes = make([]Change, 0)
	}
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	return cs, nil
}

// Validate checks the change list is well formed. It does not consult the
// handler registry.
func (cs *ChangeSet) Validate() error {
	vb := &util.ValidationBuilder{}
	vb.Add(cs.Device != "", "device is required")
	for i, c := range cs.Changes {
		vb.Add(c.Path != "", fmt.Sprintf("change %d: path is required", i))
		vb.Add(c.Key != "", fmt.Sprintf("change %d: key is required", i))
		switch c.Type {
		case ChangeAdd, ChangeModify:
			vb.Add(c.After != nil, fmt.Sprintf("change %d: %s needs after", i, c.Type))
		case ChangeDelete:
		default:
			vb.AddErrorf("change %d: unknown type %q", i, c.Type)
		}
	}
	return vb.Build()
}

// Add adds a change to the set.
func (cs *ChangeSet) Add(path, key string, changeType ChangeType, before, after map[string]string) {
	cs.Changes = append(cs.Changes, Change{
		Path:   path,
		Key:    key,
		Type:   changeType,
		Before: before,
		After:  after,
	})
}

// Merge appends other's changes after cs's own.
func (cs *ChangeSet) Merge(other *ChangeSet) {
	if other == nil {
		return
	}
	cs.Changes = append(cs.Changes, other.Changes...)
}

// IsEmpty returns true if there are no changes.
func (cs *ChangeSet) IsEmpty() bool {
	return len(cs.Changes) == 0
}

// String returns a human-readable representation of the changes.
func (cs *ChangeSet) String() string {
	if cs.IsEmpty() {
		return "No changes"
	}

	var sb strings.Builder
	for _, c := range cs.Changes {
		typeStr := ""
		switch c.Type {
		case ChangeAdd:
			typeStr = "[ADD]"
		case ChangeModify:
			typeStr = "[MOD]"
		case ChangeDelete:
			typeStr = "[DEL]"
		}

		sb.WriteString(fmt.Sprintf("  %s %s %s", typeStr, c.Path, c.Key))
		if len(c.After) > 0 {
			sb.WriteString(" -> " + formatFields(c.After))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// Preview returns a formatted preview of the changes.
func (cs *ChangeSet) Preview() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Operation: %s\n", cs.Operation))
	sb.WriteString(fmt.Sprintf("Device: %s\n", cs.Device))
	sb.WriteString(fmt.Sprintf("Changes:\n%s", cs.String()))
	return sb.String()
}

// AuditChanges converts the changes for an audit event.
func (cs *ChangeSet) AuditChanges() []audit.Change {
	out := make([]audit.Change, 0, len(cs.Changes))
	for _, c := range cs.Changes {
		out = append(out, audit.Change{
			Path:   c.Path,
			Key:    c.Key,
			Type:   string(c.Type),
			Before: c.Before,
			After:  c.After,
		})
	}
	return out
}

func formatFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, fields[k]))
	}
	return strings.Join(parts, " ")
}
