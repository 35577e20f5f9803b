package keys

import "fmt"

// ValidationError is a rejected save or delete request. Nothing was written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

var (
	errProviderAndKeyRequired = &ValidationError{Field: "request", Message: "Provider and apiKey are required"}
	errProviderRequired       = &ValidationError{Field: "provider", Message: "Provider is required"}
	errInvalidProvider        = &ValidationError{Field: "provider", Message: "Invalid provider"}
)
