// Package prompt classifies the trailing prompt of device output.
//
// Device CLIs have no framing: the only signal that a command finished is the
// prompt reappearing at the end of the stream. A Resolver looks at the last
// non-empty line of a buffer and reports which kind of prompt it is.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind classifies a trailing prompt.
type Kind int

const (
	Unrecognized Kind = iota
	Password
	Unprivileged
	Privileged
	Config
)

func (k Kind) String() string {
	switch k {
	case Password:
		return "password"
	case Unprivileged:
		return "unprivileged"
	case Privileged:
		return "privileged"
	case Config:
		return "config"
	default:
		return "unrecognized"
	}
}

// Patterns are the regular expressions a Resolver matches against the last
// line of output. Each pattern should be anchored with `$`.
type Patterns struct {
	Unprivileged string `yaml:"unprivileged"`
	Privileged   string `yaml:"privileged"`
	Config       string `yaml:"config"`
	Password     string `yaml:"password"`
}

type rule struct {
	kind Kind
	re   *regexp.Regexp
}

// Resolver classifies prompts. It is immutable and safe for concurrent use.
type Resolver struct {
	rules []rule
}

// NewResolver compiles patterns. Config is checked before privileged since a
// config prompt usually also ends in the privileged suffix.
func NewResolver(p Patterns) (*Resolver, error) {
	ordered := []struct {
		kind    Kind
		pattern string
	}{
		{Config, p.Config},
		{Privileged, p.Privileged},
		{Password, p.Password},
		{Unprivileged, p.Unprivileged},
	}

	r := &Resolver{}
	for _, o := range ordered {
		if o.pattern == "" {
			continue
		}
		re, err := regexp.Compile(o.pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling %s prompt pattern: %w", o.kind, err)
		}
		r.rules = append(r.rules, rule{kind: o.kind, re: re})
	}
	if len(r.rules) == 0 {
		return nil, fmt.Errorf("no prompt patterns configured")
	}
	return r, nil
}

// Classify returns the kind of prompt that ends text.
func (r *Resolver) Classify(text string) Kind {
	line := LastLine(text)
	if line == "" {
		return Unrecognized
	}
	for _, rl := range r.rules {
		if rl.re.MatchString(line) {
			return rl.kind
		}
	}
	return Unrecognized
}

// Settled reports whether text ends in any recognized prompt.
func (r *Resolver) Settled(text string) bool {
	return r.Classify(text) != Unrecognized
}

// LastLine returns the last non-blank line of text with trailing newlines
// removed. Trailing spaces are kept: many prompts end in "# ".
func LastLine(text string) string {
	text = strings.TrimRight(text, "\r\n")
	if i := strings.LastIndexAny(text, "\r\n"); i >= 0 {
		text = text[i+1:]
	}
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return text
}

// Strip returns the output between the echoed command and the trailing
// prompt line. The echo is only removed when the first line contains the
// command, since some devices do not echo.
func Strip(text, command string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "")
	lines := strings.Split(text, "\n")

	// Trailing prompt.
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}

	cmd := strings.TrimSpace(command)
	if len(lines) > 0 && cmd != "" && strings.Contains(lines[0], cmd) {
		lines = lines[1:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
