package costmodel

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrderSize  = errors.New("order size must be greater than 0")
	ErrInvalidVolatility = errors.New("volatility must be between 0 and 100")
	ErrUnknownFeeTier    = errors.New("fee tier must be one of vip, standard, basic")
	ErrInvalidSide       = errors.New("side must be buy or sell")
)

// ValidationError names the parameter that failed and why.
// errors.Is matches it against the sentinel in Err.
type ValidationError struct {
	Field string
	Value any
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
