package scoring

import "fmt"

// ParseError means the model answered but the answer could not be turned
// into a CandidateScore.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse candidate score: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TransportError means the model could not be reached or refused the request.
type TransportError struct {
	Model string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("score with %s: %v", e.Model, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
