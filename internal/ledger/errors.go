package ledger

import "errors"

var (
	// ErrUnavailable is returned when the ledger reports itself unavailable.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrPersistence is returned when a ledger read or write fails.
	ErrPersistence = errors.New("ledger persistence failure")
)
