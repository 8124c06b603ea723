package abtest

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates no body is stored for the test id.
	ErrNotFound = errors.New("test not found")
	// ErrCorrupt indicates the stored body could not be parsed.
	ErrCorrupt = errors.New("test body is corrupt")
	// ErrNotOwner indicates the caller is not the test owner.
	ErrNotOwner = errors.New("caller is not the test owner")
	// ErrAlreadyCompleted indicates the test was completed before.
	ErrAlreadyCompleted = errors.New("test already completed")
	// ErrInvalidInput indicates invalid input for test operations.
	ErrInvalidInput = errors.New("invalid test input")
	// ErrInvalidSide indicates a side other than A or B.
	ErrInvalidSide = fmt.Errorf("%w: side must be A or B", ErrInvalidInput)
)
