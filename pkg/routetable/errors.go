package routetable

import "errors"

var (
	// ErrDuplicatePattern is returned when two entries match the same paths.
	ErrDuplicatePattern = errors.New("routetable: duplicate pattern")
	// ErrInvalidPattern is returned for malformed patterns.
	ErrInvalidPattern = errors.New("routetable: invalid pattern")
	// ErrNoLoader is returned by Load on a lazy binding without a loader.
	ErrNoLoader = errors.New("routetable: lazy binding has no loader")
)
