package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrBlocked means the service answered with an error envelope instead of data.
	ErrBlocked = errors.New("calendar response blocked")
	// ErrUnparseable means no known response shape matched.
	ErrUnparseable = errors.New("calendar response unparseable")
)

const snippetLimit = 256

// DecodeError carries the failure kind plus the start of the offending payload.
type DecodeError struct {
	Kind    error
	Snippet string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: %q", e.Kind, e.Snippet)
}

func (e *DecodeError) Unwrap() error {
	return e.Kind
}

func newDecodeError(kind error, body string) *DecodeError {
	if len(body) > snippetLimit {
		body = body[:snippetLimit]
	}
	return &DecodeError{Kind: kind, Snippet: body}
}
