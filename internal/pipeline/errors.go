package pipeline

import (
	"errors"
	"fmt"

	"github.com/wanderwoll/mockup-pipeline/internal/connector"
)

var (
	// ErrConnectorNotFound is returned when an operation needs a connector
	// that was never registered.
	ErrConnectorNotFound = errors.New("connector not found")

	// ErrUnsupported is returned when a registered connector lacks the
	// capability an operation needs.
	ErrUnsupported = connector.ErrUnsupported
)

// ValidationError reports a missing or malformed request field. It is
// returned before any connector is called.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Field + " is required"
}

func required(field string) error {
	return &ValidationError{Field: field}
}

// FallbackError is returned when both the primary and the fallback connector
// failed. Its message names the primary failure.
type FallbackError struct {
	Operation string
	Primary   error
	Fallback  error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("failed to process %s: %s", e.Operation, e.Primary.Error())
}

func (e *FallbackError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
