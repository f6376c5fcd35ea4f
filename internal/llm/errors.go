package llm

import "errors"

// Class names the inference failure category independently of the
// pipeline fault kind. Callers that want to branch on why an invoke
// failed (back off on throttling, surface access problems to an
// operator) inspect the class instead of matching message text.
type Class string

const (
	ClassAccessDenied Class = "access_denied"
	ClassNotFound     Class = "not_found"
	ClassThrottled    Class = "throttled"
	ClassMalformed    Class = "malformed"
	ClassUnknown      Class = "unknown"
)

// Error is the typed invoke failure. It sits inside the pipeline
// fault so both layers stay inspectable through the error chain.
type Error struct {
	Class   Class
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ClassOf extracts the inference class from an error chain, returning
// ClassUnknown when no invoke error is present.
func ClassOf(err error) Class {
	var invokeErr *Error
	if errors.As(err, &invokeErr) {
		return invokeErr.Class
	}
	return ClassUnknown
}
