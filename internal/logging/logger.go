// Package logging wraps zerolog the way the teacher wraps it for its
// connection layer (util/connection/wrappers), generalized here: no HTTP
// request/response to decorate, just named component loggers handed to the
// index manager and the single-writer queue.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger writing to w (os.Stderr when w is nil) with
// the given component name attached to every event, matching the teacher's
// habit of tagging every logged line with connection/request identity.
func New(component string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).With().Timestamp().Str("component", component).Logger()
}

// Nop returns a logger that discards everything, for tests and callers that
// don't want log output.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
