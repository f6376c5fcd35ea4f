// Package fault carries the typed error taxonomy shared by the query
// pipeline. Callers branch on a fault's Kind instead of matching
// message strings.
package fault

import "errors"

type Kind string

const (
	// GenerationFailed means the inference call failed or returned an
	// unusable reply. Fatal to the request.
	GenerationFailed Kind = "generation_failed"
	// ValidationBlocked means the generated SQL failed a safety or
	// structure check. Fatal, the statement is never executed.
	ValidationBlocked Kind = "validation_blocked"
	// ExecutionFailed means the external executor rejected or failed
	// the statement.
	ExecutionFailed Kind = "execution_failed"
	// RetrievalDegraded means the knowledge store was unavailable or
	// nothing passed the confidence threshold. Non-fatal.
	RetrievalDegraded Kind = "retrieval_degraded"
	// CacheUnavailable means the persisted cache tier failed a read or
	// write. Non-fatal, the pipeline continues uncached.
	CacheUnavailable Kind = "cache_unavailable"
	// Timeout means an external call exceeded its deadline.
	Timeout Kind = "timeout"
	// Unknown covers everything not classified above.
	Unknown Kind = "unknown"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the taxonomy kind of err, or Unknown when err carries
// no *Error anywhere in its chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
