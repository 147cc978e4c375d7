// Package schedule implements the immediate/delayed/recurring action
// queue with deterministic ordering.
package schedule

import (
	"errors"
	"fmt"
)

// Action is a scheduled unit of work. Recurring actions are mutated in
// place (RunAt advanced, Runs incremented) rather than recreated.
type Action struct {
	ID            string
	RunAt         int64 // epoch ms; >= 0
	RepeatEveryMs int64 // 0 = one-shot; must be > 0 when present
	ActionType    string
	Payload       map[string]any
	Priority      int
	CreatedAt     int64
	Cancelled     bool
	Runs          int
}

// Recurring reports whether the action reschedules itself after each
// successful execution.
func (a *Action) Recurring() bool {
	return a.RepeatEveryMs > 0
}

// Input describes an action to schedule. ID is optional; one is
// generated when empty.
type Input struct {
	ID            string
	RunAt         int64
	RepeatEveryMs int64
	ActionType    string
	Payload       map[string]any
	Priority      int
}

// Error codes for scheduler failures.
const (
	CodeConflict = "SCHEDULER_CONFLICT"
	CodeInvalid  = "VALIDATION_FAILED"
)

// Error is a scheduler failure with a stable machine-readable code.
type Error struct {
	Code     string
	ActionID string
	Message  string
}

func (e *Error) Error() string {
	if e.ActionID != "" {
		return fmt.Sprintf("%s: %s (action=%s)", e.Code, e.Message, e.ActionID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConflict reports whether err is a SCHEDULER_CONFLICT error.
func IsConflict(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == CodeConflict
}

// IsInvalid reports whether err is a scheduler validation error.
func IsInvalid(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == CodeInvalid
}

func invalidError(format string, args ...any) *Error {
	return &Error{Code: CodeInvalid, Message: fmt.Sprintf(format, args...)}
}

func conflictError(id string) *Error {
	return &Error{Code: CodeConflict, ActionID: id, Message: "action id already tracked"}
}

func validateInput(in Input) error {
	if in.ActionType == "" {
		return invalidError("action type is required")
	}
	if in.RunAt < 0 {
		return invalidError("runAt must be >= 0, got %d", in.RunAt)
	}
	if in.RepeatEveryMs < 0 {
		return invalidError("repeatEveryMs must be > 0 when present, got %d", in.RepeatEveryMs)
	}
	return nil
}
