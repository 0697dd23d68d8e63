package dialect

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/newtcli/pkg/errclass"
	"github.com/newtron-network/newtcli/pkg/prompt"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]*Dialect{}
)

func init() {
	for _, d := range []*Dialect{ciscoIOSXR(), aristaEOS()} {
		if err := Register(d); err != nil {
			panic(err)
		}
	}
}

// Register adds a dialect to the table. The table is built at startup;
// registering a name twice is an error.
func Register(d *Dialect) error {
	if err := d.Validate(); err != nil {
		return err
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[d.Name]; exists {
		return fmt.Errorf("dialect %q already registered", d.Name)
	}
	registry[d.Name] = d.Clone()
	return nil
}

// Lookup returns a copy of the named dialect.
func Lookup(name string) (*Dialect, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
	return d.Clone(), nil
}

// Names returns the registered dialect names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// File is the on-disk format for additional dialects.
type File struct {
	Dialects []*Dialect `yaml:"dialects"`
}

// LoadFile parses a YAML dialect file. Each entry must validate on its own.
func LoadFile(path string) ([]*Dialect, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dialect file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing dialect YAML: %w", err)
	}

	for _, d := range f.Dialects {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Dialects, nil
}

// RegisterFile loads and registers every dialect in path.
func RegisterFile(path string) error {
	dialects, err := LoadFile(path)
	if err != nil {
		return err
	}
	for _, d := range dialects {
		if err := Register(d); err != nil {
			return err
		}
	}
	return nil
}

func ciscoIOSXR() *Dialect {
	return &Dialect{
		Name:        "cisco-iosxr",
		Description: "Cisco IOS XR, two-stage commit",
		Prompts: prompt.Patterns{
			Unprivileged: `^\S+>\s*$`,
			Privileged:   `^\S+#\s*$`,
			Config:       `^\S+\(config[^)]*\)#\s*$`,
			Password:     `(?i)^.*password:\s*$`,
		},
		PagingOff:      []string{"terminal length 0", "terminal width 0"},
		Escalate:       "enable",
		ConfigEnter:    "configure terminal",
		ConfigExit:     "end",
		Commit:         "commit",
		Abort:          "abort",
		Diagnose:       "show configuration failed",
		Logout:         "exit",
		ErrorPatterns:  errclass.CiscoStyle,
		CommitFailures: errclass.CiscoCommitFailures,
		Timeouts: Timeouts{
			Read:    10 * time.Second,
			Command: 30 * time.Second,
			Commit:  120 * time.Second,
		},
	}
}

func aristaEOS() *Dialect {
	return &Dialect{
		Name:        "arista-eos",
		Description: "Arista EOS configure sessions",
		Prompts: prompt.Patterns{
			Unprivileged: `^\S+>\s*$`,
			Privileged:   `^\S+#\s*$`,
			Config:       `^\S+\(config[^)]*\)#\s*$`,
			Password:     `(?i)^.*password:\s*$`,
		},
		PagingOff:   []string{"terminal length 0", "terminal width 32767"},
		Escalate:    "enable",
		ConfigEnter: "configure session newtcli",
		ConfigExit:  "end",
		Commit:      "commit",
		Abort:       "abort",
		Diagnose:    "show session-config diffs",
		Logout:      "exit",
		ErrorPatterns: append(append([]errclass.Pattern(nil), errclass.CiscoStyle...),
			errclass.Pattern{Name: "not-supported", Expr: `(?mi)^%\s*Not supported.*$`}),
		CommitFailures: errclass.CiscoCommitFailures,
		Timeouts: Timeouts{
			Read:    10 * time.Second,
			Command: 30 * time.Second,
			Commit:  60 * time.Second,
		},
	}
}
