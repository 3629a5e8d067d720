package statestore

import "errors"

// Domain errors for the statestore package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, statestore.ErrInvalidPattern) {
//	    // reject the filter, don't treat it as "no matches"
//	}
var (
	// ErrInvalidPattern is returned by ListFiltered when the filter is not a
	// valid regular expression.
	ErrInvalidPattern = errors.New("statestore: invalid filter pattern")

	// ErrUnsupportedValue is returned by ValueOf when a Go value has no
	// canonical string form.
	ErrUnsupportedValue = errors.New("statestore: unsupported value type")

	// ErrNilObserver is returned by Subscribe when the observer is nil.
	ErrNilObserver = errors.New("statestore: observer cannot be nil")

	// ErrClosed is returned by Subscribe after the table has been closed.
	ErrClosed = errors.New("statestore: table closed")
)
