package bench

import (
	"errors"
	"fmt"
)

// FailedError is returned by Start when any record reached the fail level
// during the run or the check pass.
type FailedError struct {
	Test     string
	Failures int
}

// Error implements the error interface.
func (e *FailedError) Error() string {
	return fmt.Sprintf("test %s failed: %d failure event(s)", e.Test, e.Failures)
}

// IsTestFailed checks if an error is a *FailedError.
func IsTestFailed(err error) bool {
	var fe *FailedError
	return errors.As(err, &fe)
}
