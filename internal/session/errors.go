package session

import (
	"errors"
	"fmt"
)

// Kind classifies why a session turn ended.
type Kind string

const (
	KindUserInput  Kind = "user_input"
	KindNotFound   Kind = "not_found"
	KindTimeout    Kind = "timeout"
	KindAbandoned  Kind = "abandoned"
	KindPermission Kind = "permission"
	KindTransport  Kind = "transport"
	KindSynthesis  Kind = "synthesis"
)

var (
	ErrHelp           = errors.New("help requested")
	ErrAlreadyRunning = errors.New("session already running")
	ErrNotFound       = errors.New("session not found")
)

// Error ends a session. Msg is the text shown to the requester.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// Silent reports whether the requester should not be told.
func (e *Error) Silent() bool {
	return e.Kind == KindAbandoned
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of a session error, or "" for anything else.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
