// Package dialect describes the text protocol of one device family: its
// prompts, mode-transition commands, commit/abort commands and the output
// markers that signal a rejected command.
package dialect

import (
	"fmt"
	"regexp"
	"time"

	"github.com/newtron-network/newtcli/pkg/errclass"
	"github.com/newtron-network/newtcli/pkg/prompt"
	"github.com/newtron-network/newtcli/pkg/util"
)

// Timeouts bound every blocking call made through a session.
type Timeouts struct {
	Read    time.Duration `yaml:"read"`    // initial prompt, mode transitions
	Command time.Duration `yaml:"command"` // ordinary show/config commands
	Commit  time.Duration `yaml:"commit"`  // commit, abort and diagnostics
}

// Dialect is the vendor-specific half of a session. Strings are
// configuration, not structure: nothing outside this type knows a command.
type Dialect struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	Prompts     prompt.Patterns `yaml:"prompts"`

	// Terminator is appended to every line written to the device.
	Terminator string `yaml:"terminator,omitempty"`

	PagingOff   []string `yaml:"paging_off,omitempty"`
	Escalate    string   `yaml:"escalate,omitempty"`
	ConfigEnter string   `yaml:"config_enter"`
	ConfigExit  string   `yaml:"config_exit"`
	Commit      string   `yaml:"commit"`
	Abort       string   `yaml:"abort"`
	Diagnose    string   `yaml:"diagnose,omitempty"`
	Logout      string   `yaml:"logout,omitempty"`

	ErrorPatterns  []errclass.Pattern `yaml:"error_patterns,omitempty"`
	CommitFailures []errclass.Pattern `yaml:"commit_failures,omitempty"`

	Timeouts Timeouts `yaml:"timeouts,omitempty"`
}

// Default timeouts, used for any zero field.
const (
	DefaultReadTimeout    = 10 * time.Second
	DefaultCommandTimeout = 30 * time.Second
	DefaultCommitTimeout  = 60 * time.Second
)

// LineTerminator returns the configured terminator or "\n".
func (d *Dialect) LineTerminator() string {
	if d.Terminator == "" {
		return "\n"
	}
	return d.Terminator
}

// ReadTimeout returns the timeout for prompt reads and mode transitions.
func (d *Dialect) ReadTimeout() time.Duration {
	return orDefault(d.Timeouts.Read, DefaultReadTimeout)
}

// CommandTimeout returns the timeout for ordinary commands.
func (d *Dialect) CommandTimeout() time.Duration {
	return orDefault(d.Timeouts.Command, DefaultCommandTimeout)
}

// CommitTimeout returns the timeout for commit, abort and diagnostics.
func (d *Dialect) CommitTimeout() time.Duration {
	return orDefault(d.Timeouts.Commit, DefaultCommitTimeout)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Resolver compiles the dialect's prompt patterns.
func (d *Dialect) Resolver() (*prompt.Resolver, error) {
	r, err := prompt.NewResolver(d.Prompts)
	if err != nil {
		return nil, fmt.Errorf("dialect %s: %w", d.Name, err)
	}
	return r, nil
}

// Classifier compiles the error patterns applied to every response.
func (d *Dialect) Classifier() (*errclass.Classifier, error) {
	c, err := errclass.New(d.ErrorPatterns...)
	if err != nil {
		return nil, fmt.Errorf("dialect %s: %w", d.Name, err)
	}
	return c, nil
}

// CommitClassifier compiles error patterns plus commit-failure markers.
func (d *Dialect) CommitClassifier() (*errclass.Classifier, error) {
	base, err := d.Classifier()
	if err != nil {
		return nil, err
	}
	c, err := base.With(d.CommitFailures...)
	if err != nil {
		return nil, fmt.Errorf("dialect %s: %w", d.Name, err)
	}
	return c, nil
}

// Validate checks that the dialect can drive a transaction.
func (d *Dialect) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(d.Name != "", "name is required")
	v.Add(d.Prompts.Privileged != "", "prompts.privileged is required")
	v.Add(d.Prompts.Config != "", "prompts.config is required")
	v.Add(d.ConfigEnter != "", "config_enter is required")
	v.Add(d.ConfigExit != "", "config_exit is required")
	v.Add(d.Commit != "", "commit is required")
	v.Add(d.Abort != "", "abort is required")

	for field, expr := range map[string]string{
		"prompts.unprivileged": d.Prompts.Unprivileged,
		"prompts.privileged":   d.Prompts.Privileged,
		"prompts.config":       d.Prompts.Config,
		"prompts.password":     d.Prompts.Password,
	} {
		if expr == "" {
			continue
		}
		if _, err := regexp.Compile(expr); err != nil {
			v.AddErrorf("%s: %v", field, err)
		}
	}
	if _, err := d.CommitClassifier(); err != nil {
		v.AddError(err.Error())
	}

	if err := v.Build(); err != nil {
		return fmt.Errorf("dialect %q: %w", d.Name, err)
	}
	return nil
}

// Clone returns a deep copy, so registry entries cannot be mutated by callers.
func (d *Dialect) Clone() *Dialect {
	c := *d
	c.PagingOff = append([]string(nil), d.PagingOff...)
	c.ErrorPatterns = append([]errclass.Pattern(nil), d.ErrorPatterns...)
	c.CommitFailures = append([]errclass.Pattern(nil), d.CommitFailures...)
	return &c
}
