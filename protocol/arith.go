package protocol

import (
	"errors"
	"fmt"

	"github.com/Mmx233/QCalc/outcome"
)

// ArithOp is one of the four supported integer operations.
//
// Binary opcode mapping: the server numbers operations from 1
// (1=add, 2=sub, 3=mul, 4=div). Code 0 is not an operation.
type ArithOp uint32

const (
	OpAdd ArithOp = 1
	OpSub ArithOp = 2
	OpMul ArithOp = 3
	OpDiv ArithOp = 4
)

// ErrDivisionByZero is returned by Compute for a div assignment with a zero
// divisor. It classifies as a malformed assignment.
var ErrDivisionByZero = fmt.Errorf("%w: division by zero", outcome.ErrMalformed)

var opNames = map[ArithOp]string{
	OpAdd: "add",
	OpSub: "sub",
	OpMul: "mul",
	OpDiv: "div",
}

func (op ArithOp) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", uint32(op))
}

// MarshalText renders the op by its text-protocol token.
func (op ArithOp) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

// Valid reports whether op is a supported operation.
func (op ArithOp) Valid() bool {
	_, ok := opNames[op]
	return ok
}

// ParseArithOp maps a text token to an operation. Tokens are matched
// exactly, the server always sends lowercase.
func ParseArithOp(token string) (ArithOp, error) {
	for op, name := range opNames {
		if name == token {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown operation %q", outcome.ErrMalformed, token)
}

// ArithOpFromCode maps a binary arith code to an operation.
func ArithOpFromCode(code uint32) (ArithOp, error) {
	op := ArithOp(code)
	if !op.Valid() {
		return 0, fmt.Errorf("%w: unsupported arith code %d", outcome.ErrMalformed, code)
	}
	return op, nil
}

// Compute applies op to a and b with 32-bit two's-complement wrap-around.
// Division truncates toward zero.
func Compute(op ArithOp, a, b int32) (int32, error) {
	switch op {
	case OpAdd:
		return a + b, nil
	case OpSub:
		return a - b, nil
	case OpMul:
		return a * b, nil
	case OpDiv:
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a / b, nil
	default:
		return 0, fmt.Errorf("%w: unsupported operation %d", outcome.ErrMalformed, uint32(op))
	}
}

// IsDivisionByZero reports whether err came from a zero divisor.
func IsDivisionByZero(err error) bool {
	return errors.Is(err, ErrDivisionByZero)
}
