package reconcile

import (
	"errors"
	"fmt"
)

// ErrReportMismatch is returned by Apply when the report was produced for a
// different source or target root.
var ErrReportMismatch = errors.New("report does not belong to the given directories")

// ReadError reports a failure to fingerprint a file.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// EnumerationError reports a failure to walk the source tree.
type EnumerationError struct {
	Path string
	Err  error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("failed to enumerate %s: %v", e.Path, e.Err)
}

func (e *EnumerationError) Unwrap() error { return e.Err }

// CopyError reports a failure to write a file into the target tree.
type CopyError struct {
	Path string
	Err  error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("failed to copy %s: %v", e.Path, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }
