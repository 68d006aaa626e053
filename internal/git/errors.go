package git

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies why a fetch failed
type FetchErrorKind string

const (
	// KindToolUnavailable means the git binary could not be run
	KindToolUnavailable FetchErrorKind = "tool-unavailable"
	// KindNetwork means the remote could not be reached
	KindNetwork FetchErrorKind = "network"
	// KindTimeout means the clone did not finish in time
	KindTimeout FetchErrorKind = "timeout"
	// KindMissingSubtree means the repository lacks an expected directory or entry
	KindMissingSubtree FetchErrorKind = "missing-subtree"
	// KindClone covers every other clone failure
	KindClone FetchErrorKind = "clone"
)

// FetchError is returned by every Fetcher failure
type FetchError struct {
	Kind FetchErrorKind
	Msg  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsKind reports whether err is a *FetchError of the given kind
func IsKind(err error, kind FetchErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}
