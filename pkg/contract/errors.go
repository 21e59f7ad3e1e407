package contract

import (
	"errors"
	"fmt"
)

// ValidationError reports an input field that violates basic type or range
// expectations. Requests failing validation are rejected before featurization.
type ValidationError struct {
	Field  string
	Reason string
	Row    int
}

func (e *ValidationError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("invalid %s on row %d: %s", e.Field, e.Row, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err or any error it wraps is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
