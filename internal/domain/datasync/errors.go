package datasync

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a disallowed source, a malformed mapping, or
// any other setup problem. It is fatal for a run and never retried.
type ConfigurationError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s configuration error: %s: %v", e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("%s configuration error: %s", e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a ConfigurationError
func NewConfigurationError(component, message string, err error) *ConfigurationError {
	return &ConfigurationError{Component: component, Message: message, Err: err}
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
