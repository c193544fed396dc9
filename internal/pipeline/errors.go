package pipeline

import "errors"

// ErrInvalidRequest matches, via errors.Is, failures caused by the
// caller's context, options or strategy selection. Any other error from
// GenerateBest that is not a generation outcome is an internal failure.
var ErrInvalidRequest = errors.New("invalid request")

type requestError struct{ err error }

func (e requestError) Error() string   { return e.err.Error() }
func (e requestError) Unwrap() []error { return []error{ErrInvalidRequest, e.err} }

func invalidRequest(err error) error { return requestError{err: err} }
