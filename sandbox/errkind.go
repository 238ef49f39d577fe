// Package sandbox enforces filesystem and shell-command confinement for
// tool execution: path validation, command validation, and output capping.
package sandbox

import "fmt"

// Kind classifies a sandbox-relevant failure so callers can recover by
// category instead of matching error strings.
type Kind string

const (
	KindPathRejected     Kind = "PathRejected"
	KindCommandRejected  Kind = "CommandRejected"
	KindTimeout          Kind = "Timeout"
	KindToolFailure      Kind = "ToolFailure"
	KindConnectionLost   Kind = "ConnectionLost"
	KindIntegrityAbort   Kind = "IntegrityAbort"
	KindIntegrityWarning Kind = "IntegrityWarning"
	KindServerTrustAbort Kind = "ServerTrustAbort"
	KindBudgetOverflow   Kind = "BudgetOverflow"
	KindParseFailure     Kind = "ParseFailure"
	KindCancelled        Kind = "Cancelled"
)

// Error wraps an underlying error with a Kind so callers can type-switch
// on failure category without parsing messages.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a sandbox Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap creates a sandbox Error of the given kind around an existing error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the Kind of err if it (or something it wraps) is a *Error,
// and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var se *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			se = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if se == nil {
		return "", false
	}
	return se.Kind, true
}
