package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityReached is returned when the registry refuses a connection.
	ErrCapacityReached = errors.New("server full")
	ErrSessionClosed   = errors.New("session closed")
	ErrNoSnapshot      = errors.New("no snapshot available")
)

// FetchError is a fetch that still failed after every retry attempt.
// It is terminal for one refresh cycle only.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is a tabular body that could not be parsed at all.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse csv at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("parse csv: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RowError marks a single row that was skipped. It never fails the batch.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// IsCycleFailure reports whether err ends a refresh cycle without updating the cache.
func IsCycleFailure(err error) bool {
	var fetchErr *FetchError
	var parseErr *ParseError
	return errors.As(err, &fetchErr) || errors.As(err, &parseErr)
}
