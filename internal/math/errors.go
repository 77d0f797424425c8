package math

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
)

// Codespace is shared by every error the clearing house registers.
const Codespace = "clearinghouse"

// Arithmetic errors. Codes 2-9 are reserved for this package.
var (
	ErrMathError    = errorsmod.Register(Codespace, 2, "math error")
	ErrBnConversion = errorsmod.Register(Codespace, 3, "wide integer conversion error")
	ErrCastOverflow = errorsmod.Register(Codespace, 4, "casting failure")
	ErrDivideByZero = errorsmod.Register(Codespace, 5, "division by zero")
)

func overflowf(format string, args ...interface{}) error {
	return errorsmod.Wrapf(ErrMathError, "overflow: %s", fmt.Sprintf(format, args...))
}

func divideByZero(numerator fmt.Stringer) error {
	return errorsmod.Wrapf(ErrDivideByZero, "%s / 0", numerator)
}
