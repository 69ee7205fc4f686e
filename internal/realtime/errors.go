package realtime

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures inside the connection manager
type ErrorKind string

const (
	// KindTransport covers socket and HTTP failures. They are retried and
	// logged, never returned to subscribers.
	KindTransport ErrorKind = "transport"
	// KindProtocol covers frames or bodies that do not match the contract.
	// The message is dropped and the connection kept.
	KindProtocol ErrorKind = "protocol"
	// KindConfiguration covers invalid construction or subscription input
	KindConfiguration ErrorKind = "configuration"
)

// Error is a realtime failure tagged with its kind and the operation that produced it
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("realtime %s error in %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("realtime %s error in %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels, so errors.Is(err, ErrConfiguration) holds for
// every configuration error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is
var (
	ErrTransport     = &Error{Kind: KindTransport}
	ErrProtocol      = &Error{Kind: KindProtocol}
	ErrConfiguration = &Error{Kind: KindConfiguration}
)

var (
	errEmptyTopic     = errors.New("topic name is required")
	errNonScalarParam = errors.New("topic params must be scalar")
)

func transportError(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

func protocolError(op string, err error) *Error {
	return &Error{Kind: KindProtocol, Op: op, Err: err}
}

func configurationError(op string, err error) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Err: err}
}
