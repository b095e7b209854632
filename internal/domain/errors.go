package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the service wraps exactly one of these.
var (
	// ErrUnauthenticated means the credential is malformed or not logged in.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound means a session, quiz, player or question id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the caller does not own the quiz or session.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalid means the request itself is malformed.
	ErrInvalid = errors.New("invalid request")
	// ErrStateConflict means the request is not legal in the session's current state.
	ErrStateConflict = errors.New("state conflict")
)

var (
	ErrSessionNotFound = kindError(ErrNotFound, "quiz session not found")
	ErrPlayerNotFound  = kindError(ErrNotFound, "player not found")
	ErrQuizNotFound    = kindError(ErrNotFound, "quiz not found")
	ErrInvalidToken    = kindError(ErrUnauthenticated, "token is invalid or not logged in")
	ErrNotQuizOwner    = kindError(ErrForbidden, "user does not own this quiz")
)

type kindErr struct {
	kind error
	msg  string
}

func (e *kindErr) Error() string { return e.msg }

func (e *kindErr) Unwrap() error { return e.kind }

func kindError(kind error, msg string) error {
	return &kindErr{kind: kind, msg: msg}
}

// Invalidf builds a validation error.
func Invalidf(format string, args ...any) error {
	return kindError(ErrInvalid, fmt.Sprintf(format, args...))
}

// Conflictf builds a state conflict error.
func Conflictf(format string, args ...any) error {
	return kindError(ErrStateConflict, fmt.Sprintf(format, args...))
}

// Kind returns the kind sentinel wrapped by err, or nil for infrastructure errors.
func Kind(err error) error {
	for _, kind := range []error{ErrUnauthenticated, ErrNotFound, ErrForbidden, ErrInvalid, ErrStateConflict} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
