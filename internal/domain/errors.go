// Package domain defines domain-specific errors.
// These errors represent business logic failures and are independent of infrastructure.
package domain

import (
	"errors"
	"fmt"
)

// Common errors that services can return.
var (
	// ErrInvalidVolume is returned when the volume is out of valid range (0-100).
	ErrInvalidVolume = errors.New("invalid volume: must be between 0 and 100")

	// ErrNoStation is returned when an operation needs a selected station.
	ErrNoStation = errors.New("no station selected")

	// ErrStationNotFound is returned when a station id is not in the directory.
	ErrStationNotFound = errors.New("station not found")

	// ErrUnsupportedMedium is returned when a live video station is sent to the audio output.
	ErrUnsupportedMedium = errors.New("station medium not supported by the audio output")

	// ErrOutputUnavailable is returned when the audio output is not connected.
	ErrOutputUnavailable = errors.New("audio output unavailable")

	// ErrNotInitialized is returned when an operation is attempted on an uninitialized component.
	ErrNotInitialized = errors.New("component not initialized")

	// ErrAlreadyStarted is returned when a service is started twice.
	ErrAlreadyStarted = errors.New("already started")

	// ErrScanCancelled is returned when a rotation scan is canceled.
	ErrScanCancelled = errors.New("scan cancelled")

	// ErrPlaybackFailed is returned when playback cannot be started.
	ErrPlaybackFailed = errors.New("playback failed")
)

// OutputErrorKind classifies audio output failures.
type OutputErrorKind int

const (
	// KindNetwork covers transport failures: refused, reset, timeout, HTTP errors.
	KindNetwork OutputErrorKind = iota

	// KindStalled means the output ran out of data while playing.
	KindStalled

	// KindAborted means the connection was aborted by the remote side.
	KindAborted

	// KindUnsupported means the source could not be decoded.
	KindUnsupported

	// KindUnknown is anything else.
	KindUnknown
)

// String returns a human-readable representation of the kind.
func (k OutputErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindStalled:
		return "stalled"
	case KindAborted:
		return "aborted"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// OutputError represents an error from the audio output.
type OutputError struct {
	Op      string          // Operation that failed (e.g., "load", "play")
	URL     string          // Stream URL (if applicable)
	Kind    OutputErrorKind // Failure class
	Message string          // Error message
	Err     error           // Underlying error (if any)
}

// Error implements the error interface.
func (e *OutputError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("audio output %s failed for '%s': %s (%s)", e.Op, e.URL, e.Message, e.Kind)
	}
	return fmt.Sprintf("audio output %s failed: %s (%s)", e.Op, e.Message, e.Kind)
}

// Unwrap returns the underlying error.
func (e *OutputError) Unwrap() error {
	return e.Err
}

// NewOutputError creates a new OutputError.
func NewOutputError(op, url string, kind OutputErrorKind, message string, err error) *OutputError {
	return &OutputError{
		Op:      op,
		URL:     url,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// IsNetworkError reports whether err is a transport-class output failure
// that warrants an automatic reconnect.
func IsNetworkError(err error) bool {
	var outErr *OutputError
	if !errors.As(err, &outErr) {
		return false
	}
	switch outErr.Kind {
	case KindNetwork, KindStalled, KindAborted:
		return true
	default:
		return false
	}
}

// StatusError is returned when a status endpoint answers with a non-OK code.
type StatusError struct {
	URL        string
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("status endpoint '%s' returned %d", e.URL, e.StatusCode)
}

// DecodeError is returned when a status body cannot be decoded.
type DecodeError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode status from '%s': %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// RepositoryError represents an error from a repository.
// This wraps persistence layer errors with additional context.
type RepositoryError struct {
	Op      string // Operation that failed (e.g., "save", "load")
	Type    string // Repository type (e.g., "preferences")
	Message string // Error message
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s.%s failed: %s", e.Type, e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// NewRepositoryError creates a new RepositoryError.
func NewRepositoryError(op, repoType, message string, err error) *RepositoryError {
	return &RepositoryError{
		Op:      op,
		Type:    repoType,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string      // Field that failed validation
	Value   interface{} // Value that failed validation
	Message string      // Error message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ServiceError represents an error from a service layer operation.
type ServiceError struct {
	Service string // Service name (e.g., "PlaybackService", "MetadataService")
	Op      string // Operation that failed
	Message string // Error message
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("service %s.%s failed: %s", e.Service, e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(service, op, message string, err error) *ServiceError {
	return &ServiceError{
		Service: service,
		Op:      op,
		Message: message,
		Err:     err,
	}
}
