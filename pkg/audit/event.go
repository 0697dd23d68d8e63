// Package audit records every configuration transaction run against a
// device.
package audit

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Change is the audit form of one configuration change.
type Change struct {
	Path   string            `json:"path"`
	Key    string            `json:"key"`
	Type   string            `json:"type"`
	Before map[string]string `json:"before,omitempty"`
	After  map[string]string `json:"after,omitempty"`
}

// Event is one audited transaction.
type Event struct {
	ID          string        `json:"id"`
	TxnID       string        `json:"txn_id,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	User        string        `json:"user"`
	Device      string        `json:"device"`
	Operation   string        `json:"operation"`
	Changes     []Change      `json:"changes"`
	Outcome     string        `json:"outcome"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Diagnostic  string        `json:"diagnostic,omitempty"`
	ExecuteMode bool          `json:"execute_mode"`
	Duration    time.Duration `json:"duration"`
}

// Outcomes recorded on events. They mirror the transaction outcomes.
const (
	OutcomeCommitted    = "committed"
	OutcomeReverted     = "reverted"
	OutcomeRevertFailed = "revert-failed"
	OutcomeAborted      = "aborted"
	OutcomePreview      = "preview"
)

// Filter defines criteria for querying audit events
type Filter struct {
	// TxnID matches events whose transaction or event ID starts with it.
	TxnID       string
	Device      string
	User        string
	Operation   string
	Outcome     string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// Matches reports whether event satisfies every criterion of f. Limit and
// Offset are applied by the caller.
func (f Filter) Matches(event *Event) bool {
	if f.TxnID != "" && !strings.HasPrefix(event.TxnID, f.TxnID) && !strings.HasPrefix(event.ID, f.TxnID) {
		return false
	}
	if f.Device != "" && event.Device != f.Device {
		return false
	}
	if f.User != "" && event.User != f.User {
		return false
	}
	if f.Operation != "" && event.Operation != f.Operation {
		return false
	}
	if f.Outcome != "" && event.Outcome != f.Outcome {
		return false
	}
	if !f.StartTime.IsZero() && event.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && event.Timestamp.After(f.EndTime) {
		return false
	}
	if f.SuccessOnly && !event.Success {
		return false
	}
	if f.FailureOnly && event.Success {
		return false
	}
	return true
}

// page applies Offset and Limit to events already in order.
func (f Filter) page(events []*Event) []*Event {
	if f.Offset > 0 {
		if f.Offset >= len(events) {
			return []*Event{}
		}
		events = events[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(events) {
		events = events[:f.Limit]
	}
	return events
}

// NewEvent creates a new audit event
func NewEvent(user, device, operation string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		User:      user,
		Device:    device,
		Operation: operation,
	}
}

// WithTxn sets the transaction ID.
func (e *Event) WithTxn(id string) *Event {
	e.TxnID = id
	return e
}

// WithChanges sets the changes
func (e *Event) WithChanges(changes []Change) *Event {
	e.Changes = changes
	return e
}

// WithOutcome sets the outcome. Only a commit counts as success.
func (e *Event) WithOutcome(outcome string) *Event {
	e.Outcome = outcome
	e.Success = outcome == OutcomeCommitted || outcome == OutcomePreview
	return e
}

// WithError records the failure cause.
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Success = false
		e.Error = err.Error()
	}
	return e
}

// WithDiagnostic records the device's failure report.
func (e *Event) WithDiagnostic(text string) *Event {
	e.Diagnostic = text
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// WithExecuteMode marks if execute mode was used
func (e *Event) WithExecuteMode(execute bool) *Event {
	e.ExecuteMode = execute
	return e
}
