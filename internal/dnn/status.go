package dnn

import (
	"fmt"

	"github.com/pkg/errors"
)

// Status is the result code of an engine call.
type Status int

// Engine status codes.
const (
	StatusSuccess        Status = 0
	StatusIncorrectInput Status = -1
	StatusMemoryError    Status = -3
	StatusUnimplemented  Status = -127
)

// String returns the status mnemonic.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusIncorrectInput:
		return "incorrect input parameter"
	case StatusMemoryError:
		return "memory error"
	case StatusUnimplemented:
		return "unimplemented"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// StatusError is returned by every failing engine call.
type StatusError struct {
	Op     string // Engine call, e.g. "ConvolutionCreateForward"
	Status Status // Non-success status
	Detail string // What was wrong
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("dnn: %s failed with status %d (%s)", e.Op, int(e.Status), e.Status)
	}
	return fmt.Sprintf("dnn: %s failed with status %d (%s): %s", e.Op, int(e.Status), e.Status, e.Detail)
}

func statusErrorf(op string, st Status, format string, args ...any) error {
	return errors.WithStack(&StatusError{
		Op:     op,
		Status: st,
		Detail: fmt.Sprintf(format, args...),
	})
}

// StatusOf extracts the engine status carried anywhere in the chain of err.
// nil maps to StatusSuccess; errors not produced by the engine map to StatusIncorrectInput.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return StatusIncorrectInput
}
