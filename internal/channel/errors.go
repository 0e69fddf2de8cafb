package channel

import (
	"errors"
	"fmt"
)

var (
	// ErrUnparsableNumber marks numeric text the normalizer could not interpret.
	ErrUnparsableNumber = errors.New("unparsable number")
	// ErrExtractionTimeout marks a detail page whose content did not arrive in time.
	ErrExtractionTimeout = errors.New("extraction timeout")
	// ErrNavigationFailure marks a failed click-and-navigate URL resolution.
	ErrNavigationFailure = errors.New("navigation failure")
	// ErrStoreUnavailable marks a store that never answered its readiness ping.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound is returned by Get when no record matches the key.
	ErrNotFound = errors.New("record not found")
)

// FetchError reports a page retrieval that exhausted its retry budget.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports a listing row whose cells could not be converted.
type ParseError struct {
	Row    int
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse row %d: %s: %v", e.Row, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse row %d: %s", e.Row, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed store write.
type PersistenceError struct {
	Op         string
	Collection Collection
	Key        string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s[%s]: %v", e.Op, e.Collection, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
