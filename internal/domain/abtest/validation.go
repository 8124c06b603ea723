package abtest

import (
	"fmt"
	"math"
	"strings"
)

// ValidateCreateInput validates fields required to create a test.
func ValidateCreateInput(req CreateRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.VersionA) == "" {
		return fmt.Errorf("%w: version A label is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.VersionB) == "" {
		return fmt.Errorf("%w: version B label is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Owner) == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	if !finite(req.ParamA) || !finite(req.ParamB) {
		return fmt.Errorf("%w: parameters must be finite numbers", ErrInvalidInput)
	}
	return nil
}

// ValidateSide validates a side selector.
func ValidateSide(side Side) error {
	if side != SideA && side != SideB {
		return ErrInvalidSide
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// sameIdentity compares hex account identities case-insensitively.
func sameIdentity(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
