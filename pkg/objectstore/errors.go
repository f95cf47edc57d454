package objectstore

import "errors"

// Sentinel errors returned by Client implementations. Callers should use
// errors.Is against these values rather than comparing concrete types,
// since implementations may wrap them with additional context.
var (
	// ErrObjectNotFound is returned by ReadRange/ReadFull/Remove when the
	// named object does not exist.
	ErrObjectNotFound = errors.New("objectstore: no such object")

	// ErrPreconditionFailed is returned by Write/Remove when the supplied
	// Precondition does not hold: either the object's current version no
	// longer matches (MustExist) or the object already exists
	// (MustNotExist).
	ErrPreconditionFailed = errors.New("objectstore: precondition failed")
)
