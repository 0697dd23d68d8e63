// Package auth provides permission-based access control.
package auth

import "strings"

// Permission defines an action that can be controlled
type Permission string

// Standard permissions
const (
	PermShow      Permission = "show"       // handler reads
	PermExec      Permission = "exec"       // free-form show commands
	PermAuditView Permission = "audit.view" // audit trail queries

	PermAll Permission = "all" // Superuser - allows everything
)

// WritePermission is the permission to change records of a handler path,
// e.g. "vlan.write".
func WritePermission(path string) Permission {
	return Permission(path + ".write")
}

// IsReadOnly returns true if the permission is read-only
func (p Permission) IsReadOnly() bool {
	switch p {
	case PermShow, PermExec, PermAuditView:
		return true
	}
	return false
}

// IsWriteOperation returns true if the permission involves modification
func (p Permission) IsWriteOperation() bool {
	return strings.HasSuffix(string(p), ".write")
}

// Policy is the access section of the inventory. An empty policy allows
// everything.
type Policy struct {
	SuperUsers  []string            `yaml:"super_users,omitempty"`
	UserGroups  map[string][]string `yaml:"user_groups,omitempty"`
	Permissions map[string][]string `yaml:"permissions,omitempty"`

	// Devices holds per-device permission maps, checked before the
	// global one.
	Devices map[string]map[string][]string `yaml:"devices,omitempty"`
}

// IsEmpty reports whether the policy has no rules at all.
func (p *Policy) IsEmpty() bool {
	return p == nil || (len(p.SuperUsers) == 0 && len(p.Permissions) == 0 && len(p.Devices) == 0)
}

// Context provides context for permission checks
type Context struct {
	Device string
	Path   string
}

// NewContext creates a new permission context
func NewContext() *Context {
	return &Context{}
}

// WithDevice sets the device context
func (c *Context) WithDevice(device string) *Context {
	c.Device = device
	return c
}

// WithPath sets the handler path context
func (c *Context) WithPath(path string) *Context {
	c.Path = path
	return c
}
