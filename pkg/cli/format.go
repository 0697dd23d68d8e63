// Package cli provides shared formatting helpers for the newtcli commands.
package cli

import (
	"os"
	"strings"
)

// colorEnabled is false when NO_COLOR env var is set (per no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

// Green wraps s in ANSI green. Returns s unchanged when NO_COLOR is set.
func Green(s string) string {
	return paint("\033[32m", s)
}

// Yellow wraps s in ANSI yellow. Returns s unchanged when NO_COLOR is set.
func Yellow(s string) string {
	return paint("\033[33m", s)
}

// Red wraps s in ANSI red. Returns s unchanged when NO_COLOR is set.
func Red(s string) string {
	return paint("\033[31m", s)
}

// Bold wraps s in ANSI bold. Returns s unchanged when NO_COLOR is set.
func Bold(s string) string {
	return paint("\033[1m", s)
}

// Dim wraps s in ANSI dim. Returns s unchanged when NO_COLOR is set.
func Dim(s string) string {
	return paint("\033[2m", s)
}

func paint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return code + s + "\033[0m"
}

// Outcome colors a transaction outcome for display: green when committed,
// red when the device was left in an unknown state.
func Outcome(outcome string) string {
	switch outcome {
	case "committed":
		return Green(outcome)
	case "revert-failed":
		return Bold(Red(outcome))
	case "reverted", "aborted":
		return Yellow(outcome)
	default:
		return Dim(outcome)
	}
}

// DotPad pads name with dots to the given width.
// Example: DotPad("audit_backend", 20) → "audit_backend ......"
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	dots := width - len(name) - 1
	return name + " " + strings.Repeat(".", dots)
}
