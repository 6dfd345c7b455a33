package dispatch

import "fmt"

// UserError is a handler failure that should be reported verbatim to
// the invoking user: bad argument values, out-of-range indices, empty
// candidate sets. It never indicates a bug, so the dispatcher reports
// it without a log-level alarm and without the generic failure reply.
type UserError struct {
	Message string
}

// Error implements the error interface.
func (e *UserError) Error() string {
	return e.Message
}

// Userf builds a UserError with fmt-style formatting.
func Userf(format string, args ...any) error {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}
