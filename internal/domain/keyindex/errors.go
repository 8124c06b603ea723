package keyindex

import "errors"

var (
	// ErrDuplicateID indicates the id is already present in the index.
	ErrDuplicateID = errors.New("duplicate record id")
	// ErrInvalidID indicates an empty id.
	ErrInvalidID = errors.New("invalid record id")
)
