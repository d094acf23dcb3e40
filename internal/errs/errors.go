// Package errs defines the typed error kinds shared by revforest, index and
// query, grounded on the teacher's ArangoError/InvalidArgumentError split
// plus its injectable WithStack/Cause pair.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies one of the error conditions named in the component design.
type Kind string

// Symbolic constants for every error kind in the error handling design.
const (
	InvalidArgument      = Kind("invalid_argument")
	OrphanRevision       = Kind("orphan_revision")
	AlreadyPresent       = Kind("already_present")
	NotInTree            = Kind("not_in_tree")
	NoCurrent            = Kind("no_current")
	IndexExists          = Kind("index_exists")
	TextSearchUnavailable = Kind("text_search_unavailable")
	IndexOpFailed        = Kind("index_op_failed")
	NoUsableIndex        = Kind("no_usable_index")
	InvalidQuery         = Kind("invalid_query")
	Interrupted          = Kind("interrupted")
	ExecutionFailed      = Kind("execution_failed")
)

// Error is a Go error carrying one of the typed Kinds above plus an optional
// wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap lets errors.Is / errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error of the given kind without a wrapped cause.
func New(kind Kind, message string) error {
	return WithStack(&Error{Kind: kind, Message: message})
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) error {
	return WithStack(&Error{Kind: kind, Message: message, Cause: cause})
}

// Is reports whether err is an *Error of the given kind, looking through any
// wrapping applied by WithStack.
func Is(err error, kind Kind) bool {
	e, ok := Cause(err).(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}

var (
	// WithStack annotates err with a stack trace on every construction above.
	// Default wiring is github.com/pkg/errors.WithStack; a host application
	// embedding this module may override it before first use.
	WithStack = func(err error) error { return errors.WithStack(err) }
	// Cause unwinds WithStack annotations to the root *Error.
	Cause = func(err error) error { return errors.Cause(err) }
)
