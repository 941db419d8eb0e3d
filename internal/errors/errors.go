// Package errors provides standardized error codes for the collaboration server.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (auth, workspace, storage, server)
//   - error: The specific error type within that domain
//
// Codes are stable and travel to clients inside error events, so the web
// app can branch on them without parsing human-readable messages.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
const (
	// Auth domain - transport authentication and workspace authorization
	CodeAuthRequired     = "auth.required"     // Bearer token missing on a protected endpoint
	CodeAuthInvalid      = "auth.invalid"      // Token did not match any issued token
	CodeAuthUnauthorized = "auth.unauthorized" // Join denied or event outside the bound workspace

	// Workspace domain
	CodeWorkspaceNotFound = "workspace.not_found" // Workspace vanished between join and update

	// Storage domain - database and persistence errors
	CodeStorageNotFound    = "storage.not_found"    // Row not found
	CodeStorageOpenFailed  = "storage.open_failed"  // Database open failed
	CodeStorageQueryFailed = "storage.query_failed" // Database query failed
	CodeStorageSaveFailed  = "storage.save_failed"  // Document write failed, nothing was broadcast

	// Server domain - WebSocket protocol errors
	CodeServerInvalidMessage = "server.invalid_message" // Malformed or out-of-state event
	CodeServerSendFailed     = "server.send_failed"     // Outbound queue full
	CodeServerConnectionLost = "server.connection_lost" // Connection unexpectedly closed

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal server error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "auth.unauthorized")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// Falls back to CodeUnknown for errors that carry no code.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to client error events.
// The cause is deliberately left out of the message: driver errors stay in
// the server log and never reach the wire.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors for the synchronizer's error taxonomy.

// Unauthorized creates an "auth.unauthorized" error.
func Unauthorized(message string) *CodedError {
	return New(CodeAuthUnauthorized, message)
}

// WorkspaceNotFound creates a "workspace.not_found" error.
func WorkspaceNotFound(workspaceID string) *CodedError {
	return New(CodeWorkspaceNotFound, fmt.Sprintf("workspace %s not found", workspaceID))
}

// PersistenceFailed creates a "storage.save_failed" error.
// The update it describes was neither broadcast nor confirmed.
func PersistenceFailed(workspaceID string, cause error) *CodedError {
	return Wrap(CodeStorageSaveFailed, fmt.Sprintf("failed to save workspace %s", workspaceID), cause)
}

// InvalidMessage creates a "server.invalid_message" error.
func InvalidMessage(reason string) *CodedError {
	return New(CodeServerInvalidMessage, reason)
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
