package domain

import "fmt"

// ConfigurationError marks a malformed workflow graph. Fatal; nothing about
// the run is resumable.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Message)
}

func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// ExternalServiceError wraps a failed call to a provider's API during trigger
// resource management. Activation aborts on it; deactivation logs and moves on.
type ExternalServiceError struct {
	Provider IntegrationType
	Op       string
	Err      error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// ExecutionError marks a node failure during chain traversal. It aborts the
// remaining chain; retry policy, if any, belongs to the action executor.
type ExecutionError struct {
	NodeID  string
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("node %s failed: %s", e.NodeID, e.Message)
	}

	return fmt.Sprintf("node %s failed: %v", e.NodeID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
