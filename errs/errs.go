// Package errs holds the error kinds shared by the sequencer packages. Errors
// are built with fault and tagged with one of these kinds so callers can
// decide whether a failure is local to one batch or breaks an actor.
package errs

import (
	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

const (
	// Construction failures happen while creating a generator: missing
	// entrypoint, parse error, unsupported file type.
	Construction ftag.Kind = "construction"
	// Production failures abort a single batch request.
	Production ftag.Kind = "production"
	// Link failures mean a peer goroutine is gone.
	Link ftag.Kind = "link"
	// Transport failures come from the MIDI output.
	Transport ftag.Kind = "transport"
	// Invalid marks malformed values at a boundary (script objects, config).
	Invalid ftag.Kind = "invalid"
)

// New creates a tagged error.
func New(kind ftag.Kind, msg string) error {
	return fault.Wrap(fault.New(msg), ftag.With(kind))
}

// Wrap tags err with kind and a message. Returns nil when err is nil.
func Wrap(err error, kind ftag.Kind, msg string) error {
	if err == nil {
		return nil
	}
	return fault.Wrap(err, fmsg.With(msg), ftag.With(kind))
}

// KindOf returns the kind err was tagged with.
func KindOf(err error) ftag.Kind {
	return ftag.Get(err)
}

// Is reports whether err carries kind. Joined errors match when any of
// their members does.
func Is(err error, kind ftag.Kind) bool {
	if err == nil {
		return false
	}
	if ftag.Get(err) == kind {
		return true
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if Is(e, kind) {
				return true
			}
		}
	}
	return false
}
