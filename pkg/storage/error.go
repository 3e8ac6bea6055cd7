package storage

import "errors"

// ErrNilNode is returned when Put is called with a nil node.
var ErrNilNode = errors.New("cannot store nil node")

// NotFoundError is returned when a node doesn't exist in the store.
type NotFoundError struct {
	Hash string
}

func (e NotFoundError) Error() string {
	if e.Hash == "" {
		return "node not found"
	}

	return "node not found: " + e.Hash
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
