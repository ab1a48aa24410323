// Package limits validates request parameters against the numeric and
// time-window constraints of the emulated service. Validation runs in one of
// two modes: Strict mirrors the service's published limits, Relaxed loosens
// them for local development. The mode is plain configuration passed by
// value, never global state.
package limits

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrInvalidParameterValue is the failure returned for any parameter outside
// its configured range. Callers match it with errors.Is and translate it into
// the protocol-level InvalidParameterValue error.
var ErrInvalidParameterValue = errors.New("invalid parameter value")

// Mode selects which constraints are enforced.
type Mode int

const (
	// Relaxed skips the numeric attribute range check and only rejects
	// outright nonsense (negative wait times).
	Relaxed Mode = iota
	// Strict enforces the emulated service's published limits.
	Strict
)

// String returns the flag spelling of the mode.
func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "relaxed"
}

// Number attribute bounds in strict mode. Contract constants; must not drift.
var (
	numberLowerBound = mustParseBigFloat("-1e128")
	numberUpperBound = mustParseBigFloat("1e126")
)

func mustParseBigFloat(s string) *big.Float {
	f, ok := new(big.Float).SetString(s)
	if !ok {
		panic("limits: unparseable bound " + s)
	}
	return f
}

// ValidateNumberAttribute checks a Number message-attribute value. In Strict
// mode the value must parse as a decimal number within [-10^128, 10^126]; in
// Relaxed mode anything passes.
func ValidateNumberAttribute(mode Mode, value string) error {
	if mode != Strict {
		return nil
	}
	f, ok := new(big.Float).SetString(value)
	if !ok {
		return fmt.Errorf("%w: Number attribute %q is not a valid decimal", ErrInvalidParameterValue, value)
	}
	if f.Cmp(numberLowerBound) < 0 || f.Cmp(numberUpperBound) > 0 {
		return fmt.Errorf("%w: Number attribute %q is outside the range [-10^128, 10^126]", ErrInvalidParameterValue, value)
	}
	return nil
}

// ValidateWaitTime checks a long-poll wait duration in seconds. Negative
// values are always rejected; Strict mode additionally requires the value to
// be within [1, 20].
func ValidateWaitTime(mode Mode, seconds int) error {
	if seconds < 0 {
		return fmt.Errorf("%w: WaitTimeSeconds must not be negative", ErrInvalidParameterValue)
	}
	if mode == Strict && (seconds < 1 || seconds > 20) {
		return fmt.Errorf("%w: WaitTimeSeconds must be an integer from 1 to 20", ErrInvalidParameterValue)
	}
	return nil
}
