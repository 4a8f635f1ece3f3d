// Package dmerrors defines the error taxonomy of the device management
// client. Every failure point of registration and persistence returns one of
// these types wrapping its cause, so callers can tell them apart with
// errors.As while errors.Is still reaches the underlying error.
//
// A value that is simply absent (no token configured, no cached key) is never
// reported as an error.
package dmerrors

import (
	"errors"
	"fmt"
)

// ConfigurationError is returned when the configuration needed to build a
// request cannot be obtained. Nothing was sent and no state was changed.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: configuration: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransportError wraps a network or TLS failure verbatim. Timeouts configured
// on the HTTP client surface here too.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is returned when the server answered with a non-200 status or
// with a body that could not be parsed. ServerMessage holds the error message
// the server sent, if one could be extracted.
type ProtocolError struct {
	Op            string
	StatusCode    int
	ServerMessage string
	Err           error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%s: protocol", e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status code %d", e.StatusCode)
	}
	if e.ServerMessage != "" {
		msg += fmt.Sprintf(": server returned %q", e.ServerMessage)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// StorageError wraps a failure to read or write the registry-like store or
// the filesystem.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: storage: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ValidationError is returned when a required precondition is missing or
// when persisted data is malformed on a path that cannot treat it as absent.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocol reports whether err is, or wraps, a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsStorage reports whether err is, or wraps, a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConfiguration reports whether err is, or wraps, a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
