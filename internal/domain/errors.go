package domain

import "errors"

// Error kinds. Only ErrInvalidInput (and lookup failures such as
// ErrNotFound) reach callers of a single match; the others are recovered
// into fallback or no-match results.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrTimeout        = errors.New("inference timeout")
	ErrMalformedReply = errors.New("malformed inference reply")
	ErrNoCandidate    = errors.New("no candidate")
	ErrTransport      = errors.New("inference transport failure")
	ErrNotFound       = errors.New("not found")
)
