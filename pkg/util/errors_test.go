package util

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Message(t *testing.T) {
	err := NewError(KindCreateFailed, "pe1", "vlan 100", ErrCommandRejected)

	msg := err.Error()
	for _, want := range []string{"create failed", "pe1", "vlan 100", "rejected"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error message should contain %q: %s", want, msg)
		}
	}

	if !errors.Is(err, ErrCommandRejected) {
		t.Error("Error should unwrap to its cause")
	}
}

func TestError_NoCommand(t *testing.T) {
	err := NewError(KindConnection, "pe1", "", errors.New("dial tcp: refused"))
	if strings.Contains(err.Error(), "command") {
		t.Errorf("Error message should not mention a command: %s", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("x"), KindUnknown},
		{"direct", NewError(KindReadFailed, "d", "show ver", ErrTimeout), KindReadFailed},
		{"wrapped", fmt.Errorf("outer: %w", NewError(KindCommitFailed, "d", "commit", nil)), KindCommitFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasKind_Nested(t *testing.T) {
	inner := NewError(KindCommitFailed, "d", "commit", ErrCommandRejected)
	outer := NewError(KindRevertFailed, "d", "abort", inner)

	if !HasKind(outer, KindCommitFailed) {
		t.Error("HasKind should find nested commit failure")
	}
	if !HasKind(outer, KindRevertFailed) {
		t.Error("HasKind should find outer revert failure")
	}
	if HasKind(outer, KindReadFailed) {
		t.Error("HasKind should not report absent kind")
	}
	if !NeedsOperator(outer) {
		t.Error("revert failure must need operator attention")
	}
	if NeedsOperator(inner) {
		t.Error("commit failure alone must not need operator attention")
	}
}

func TestKind_String(t *testing.T) {
	if KindRevertFailed.String() != "revert failed" {
		t.Errorf("KindRevertFailed.String() = %q", KindRevertFailed.String())
	}
	if got := Kind(99).String(); got != "kind(99)" {
		t.Errorf("unknown kind String() = %q", got)
	}
}

func TestError_WithOutput(t *testing.T) {
	err := NewError(KindDeleteFailed, "d", "no vlan 5", ErrCommandRejected).WithOutput("% Invalid input")
	if err.Output != "% Invalid input" {
		t.Errorf("Output = %q", err.Output)
	}
}

func TestValidationError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewValidationError("field is required")
		msg := err.Error()
		if !strings.Contains(msg, "field is required") {
			t.Errorf("Error message should contain the error: %s", msg)
		}
		if !errors.Is(err, ErrValidationFailed) {
			t.Errorf("ValidationError should unwrap to ErrValidationFailed")
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		err := NewValidationError("field1 is required", "field2 is invalid", "field3 out of range")
		msg := err.Error()
		if !strings.Contains(msg, "field1") || !strings.Contains(msg, "field2") || !strings.Contains(msg, "field3") {
			t.Errorf("Error message should contain all errors: %s", msg)
		}
	})
}

func TestValidationBuilder(t *testing.T) {
	t.Run("no errors", func(t *testing.T) {
		v := &ValidationBuilder{}
		v.Add(true, "this should not appear")

		if v.HasErrors() {
			t.Error("Should not have errors when all conditions are true")
		}
		if err := v.Build(); err != nil {
			t.Errorf("Build() should return nil when no errors: %v", err)
		}
	})

	t.Run("with errors", func(t *testing.T) {
		v := &ValidationBuilder{}
		v.Add(false, "first error")
		v.Add(true, "this passes")
		v.AddError("unconditional error")
		v.AddErrorf("formatted error: %d", 42)

		err := v.Build()
		if err == nil {
			t.Fatal("Build() should return error")
		}

		validationErr, ok := err.(*ValidationError)
		if !ok {
			t.Fatalf("Expected *ValidationError, got %T", err)
		}
		if len(validationErr.Errors) != 3 {
			t.Errorf("Expected 3 errors, got %d", len(validationErr.Errors))
		}
	})
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrNotConnected,
		ErrTimeout,
		ErrCommandRejected,
		ErrCommandInFlight,
		ErrInvalidState,
		ErrUnexpectedPrompt,
		ErrDeviceLocked,
		ErrValidationFailed,
	}

	for i, err1 := range sentinels {
		for j, err2 := range sentinels {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("Sentinel errors should be distinct: %v == %v", err1, err2)
			}
		}
	}
}
