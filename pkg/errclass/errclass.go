// Package errclass detects device-reported command failures in free-text
// CLI output.
package errclass

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern is a named regular expression marking a failed command.
type Pattern struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// Match describes the first pattern that matched an output.
type Match struct {
	Pattern string
	Text    string
}

func (m *Match) String() string {
	return fmt.Sprintf("%s: %s", m.Pattern, strings.TrimSpace(m.Text))
}

type compiled struct {
	name string
	re   *regexp.Regexp
}

// Classifier is an ordered set of failure patterns. The zero value matches
// nothing.
type Classifier struct {
	patterns []compiled
}

// New compiles patterns in order. Every expression is compiled in multi-line
// mode so that `^` and `$` anchor to any line of the output, including when
// the expression carries its own flag group. Dot-all is left to the pattern:
// `(?s)` lets `.*` run past the end of the marker line.
func New(patterns ...Pattern) (*Classifier, error) {
	c := &Classifier{}
	if err := c.add(patterns); err != nil {
		return nil, err
	}
	return c, nil
}

// MustNew is like New but panics on an invalid pattern. Used for built-ins.
func MustNew(patterns ...Pattern) *Classifier {
	c, err := New(patterns...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Classifier) add(patterns []Pattern) error {
	for _, p := range patterns {
		re, err := regexp.Compile("(?m)" + p.Expr)
		if err != nil {
			return fmt.Errorf("compiling error pattern %q: %w", p.Name, err)
		}
		c.patterns = append(c.patterns, compiled{name: p.Name, re: re})
	}
	return nil
}

// With returns a new classifier that checks c's patterns followed by extra.
func (c *Classifier) With(extra ...Pattern) (*Classifier, error) {
	out := &Classifier{patterns: append([]compiled(nil), c.patterns...)}
	if err := out.add(extra); err != nil {
		return nil, err
	}
	return out, nil
}

// Match returns the first pattern matching output.
func (c *Classifier) Match(output string) (*Match, bool) {
	if c == nil {
		return nil, false
	}
	for _, p := range c.patterns {
		if loc := p.re.FindStringIndex(output); loc != nil {
			return &Match{Pattern: p.name, Text: output[loc[0]:loc[1]]}, true
		}
	}
	return nil, false
}

// Len returns the number of patterns.
func (c *Classifier) Len() int {
	if c == nil {
		return 0
	}
	return len(c.patterns)
}

// CiscoStyle is the marker set shared by IOS-like CLIs.
var CiscoStyle = []Pattern{
	{Name: "syntax-caret", Expr: `(?m)^\s*\^\s*$`},
	{Name: "invalid-input", Expr: `(?mi)^%\s*Invalid input.*$`},
	{Name: "incomplete-command", Expr: `(?mi)^%\s*Incomplete command.*$`},
	{Name: "ambiguous-command", Expr: `(?mi)^%\s*Ambiguous command.*$`},
	{Name: "error", Expr: `(?mi)^%\s*Error.*$`},
}

// CiscoCommitFailures marks a rejected commit.
var CiscoCommitFailures = []Pattern{
	{Name: "commit-failed", Expr: `(?mi)^%\s*Failed.*$`},
	{Name: "commit-failed-text", Expr: `(?si)failed to commit.*`},
}
