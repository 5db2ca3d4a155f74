package types

import (
	"errors"
	"fmt"
)

// Returned when a dispatch argument is empty or absent.
var ErrInvalidArgument = errors.New("invalid argument")

// Missing or invalid service endpoint configuration. Surfaces as a
// local rejection and is never retried by this engine.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s", e.Reason)
}

// Malformed request or response body. Surfaces as an exception.
type SerializationError struct {
	Cause error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization: %v", e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// Remote unreachable or remote-reported failure. Surfaces as an
// error outcome carrying the textual message.
type TransportError struct {
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transport: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("transport: %s", e.Message)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// Durable store read or write failure, propagated to the caller of
// the operation that triggered it.
type StorageError struct {
	Op    string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }
