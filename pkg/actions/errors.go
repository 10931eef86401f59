package actions

import (
	"errors"
	"fmt"

	"github.com/entrhq/browsersteps/pkg/browser"
)

// Kind classifies every failure an action can report.
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindNotFound           Kind = "NotFoundError"
	KindHandleUnobtainable Kind = "HandleUnobtainable"
	KindConfiguration      Kind = "ConfigurationError"
	KindTimeout            Kind = "TimeoutError"
	KindIO                 Kind = "IOError"
	KindUnknown            Kind = "UnknownError"
)

// Error is a classified action failure. Message is the full human-readable
// text; Err, when set, is the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorKind implements the kinded interface.
func (e *Error) ErrorKind() Kind {
	return e.Kind
}

// NewError builds a classified error for callers outside this package,
// such as argument decoding at a transport boundary.
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return errorf(kind, nil, format, args...)
}

func errorf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// ResolveReason distinguishes the three ways resolving an index can fail.
// Each calls for a different correction upstream: capture a fresh snapshot,
// abandon the index, or retry locating the element.
type ResolveReason int

const (
	SnapshotUnavailable ResolveReason = iota + 1
	IndexNotFound
	HandleUnobtainable
)

func (r ResolveReason) String() string {
	switch r {
	case SnapshotUnavailable:
		return "SnapshotUnavailable"
	case IndexNotFound:
		return "IndexNotFound"
	case HandleUnobtainable:
		return "HandleUnobtainable"
	default:
		return fmt.Sprintf("ResolveReason(%d)", int(r))
	}
}

// ResolveError is returned by the element resolver.
type ResolveError struct {
	Reason ResolveReason
	Index  int

	// Scope names the kind of element that was wanted, e.g. "file-upload".
	Scope string

	// Valid lists the indices that would have resolved (IndexNotFound only).
	Valid []int

	// Ref is the reference that could not be turned into a handle (HandleUnobtainable only).
	Ref browser.ElementReference

	Err error
}

func (e *ResolveError) Error() string {
	switch e.Reason {
	case SnapshotUnavailable:
		return fmt.Sprintf("%s: snapshot unavailable: %v", e.ErrorKind(), e.Err)
	case IndexNotFound:
		scope := e.Scope
		if scope == "" {
			scope = "interactive"
		}
		return fmt.Sprintf("%s: no %s element with index %d in the current page; valid indices: %s",
			e.ErrorKind(), scope, e.Index, browser.FormatIndices(e.Valid))
	case HandleUnobtainable:
		return fmt.Sprintf("%s: could not obtain a live handle for element index %d (%s): %v",
			e.ErrorKind(), e.Index, e.Ref.Describe(), e.Err)
	default:
		return fmt.Sprintf("%s: resolving element index %d: %v", e.ErrorKind(), e.Index, e.Err)
	}
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// ErrorKind maps resolver failures onto action error kinds. A missing
// snapshot reads as "nothing found" to the caller.
func (e *ResolveError) ErrorKind() Kind {
	switch e.Reason {
	case SnapshotUnavailable, IndexNotFound:
		return KindNotFound
	case HandleUnobtainable:
		return KindHandleUnobtainable
	default:
		return KindUnknown
	}
}

type kinded interface {
	error
	ErrorKind() Kind
}

// KindOf returns the kind of err, or KindUnknown for unclassified errors.
func KindOf(err error) Kind {
	var k kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return KindUnknown
}
