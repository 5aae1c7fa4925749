// Package errors provides structured error handling for the device core.
// It defines the sentinel errors of the device-trust boundary, exit codes,
// and helpers for adding context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess  = 0 // Successful execution
	ExitGeneral  = 1 // General/unknown error
	ExitInput    = 2 // Invalid input, caller must fix the request
	ExitDevice   = 3 // Device unreachable or rejected the request
	ExitNotFound = 4 // Resource not found
	ExitFunds    = 5 // Insufficient funds or safety limit tripped
)

// KeeperError is the structured error type used across the module.
type KeeperError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *KeeperError) Error() string {
	msg := e.Message

	// Details are sorted for deterministic output
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *KeeperError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for KeeperError by comparing codes.
func (e *KeeperError) Is(target error) bool {
	var t *KeeperError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &KeeperError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrNotFound = &KeeperError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	// Device errors.
	ErrTransport = &KeeperError{
		Code:     "TRANSPORT_ERROR",
		Message:  "device communication failed",
		ExitCode: ExitDevice,
	}

	ErrTimeout = &KeeperError{
		Code:     "TIMEOUT",
		Message:  "device operation timed out",
		ExitCode: ExitDevice,
	}

	ErrDeviceUnavailable = &KeeperError{
		Code:     "DEVICE_UNAVAILABLE",
		Message:  "device is not reachable",
		ExitCode: ExitDevice,
	}

	ErrDeviceRejected = &KeeperError{
		Code:     "DEVICE_REJECTED",
		Message:  "device rejected the request",
		ExitCode: ExitDevice,
	}

	ErrUnexpectedState = &KeeperError{
		Code:     "UNEXPECTED_STATE",
		Message:  "device sent an unexpected message",
		ExitCode: ExitDevice,
	}

	// Data errors.
	ErrMalformedInput = &KeeperError{
		Code:     "MALFORMED_INPUT",
		Message:  "malformed transaction data",
		ExitCode: ExitInput,
	}

	ErrValidation = &KeeperError{
		Code:     "VALIDATION_ERROR",
		Message:  "request failed validation",
		ExitCode: ExitInput,
	}

	ErrStorage = &KeeperError{
		Code:     "STORAGE_ERROR",
		Message:  "persistent storage failure",
		ExitCode: ExitGeneral,
	}

	ErrAddressMismatch = &KeeperError{
		Code:     "ADDRESS_MISMATCH",
		Message:  "cached address differs from the value being saved",
		ExitCode: ExitGeneral,
	}

	ErrConfigInvalid = &KeeperError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration is invalid",
		ExitCode: ExitInput,
	}

	// Transaction errors.
	ErrSafetyLimitExceeded = &KeeperError{
		Code:     "SAFETY_LIMIT_EXCEEDED",
		Message:  "transaction fee exceeds safety limit",
		ExitCode: ExitFunds,
	}

	ErrInsufficientFunds = &KeeperError{
		Code:     "INSUFFICIENT_FUNDS",
		Message:  "insufficient funds for transaction",
		ExitCode: ExitFunds,
	}

	ErrNoFundsSource = &KeeperError{
		Code:     "NO_FUNDS_SOURCE",
		Message:  "no cached extended public key for this script type",
		ExitCode: ExitFunds,
	}

	ErrNoUTXOs = &KeeperError{
		Code:     "NO_UTXOS",
		Message:  "no UTXOs available",
		ExitCode: ExitFunds,
	}

	ErrUTXONotFound = &KeeperError{
		Code:     "UTXO_NOT_FOUND",
		Message:  "requested UTXO is not available",
		ExitCode: ExitNotFound,
	}

	// Session errors.
	ErrSessionActive = &KeeperError{
		Code:     "SESSION_ACTIVE",
		Message:  "device already has an active interactive session",
		ExitCode: ExitInput,
	}

	ErrSessionNotFound = &KeeperError{
		Code:     "SESSION_NOT_FOUND",
		Message:  "session not found",
		ExitCode: ExitNotFound,
	}

	ErrSessionClosed = &KeeperError{
		Code:     "SESSION_CLOSED",
		Message:  "session already completed or failed",
		ExitCode: ExitInput,
	}
)

// New creates a new KeeperError with the given code and message.
func New(code, message string) *KeeperError {
	return &KeeperError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var ke *KeeperError
	if errors.As(err, &ke) {
		return &KeeperError{
			Code:       ke.Code,
			Message:    fmt.Sprintf("%s: %s", msg, ke.Message),
			Details:    ke.Details,
			Suggestion: ke.Suggestion,
			Cause:      ke.Cause,
			ExitCode:   ke.ExitCode,
		}
	}

	return &KeeperError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithCause returns a copy of a KeeperError sentinel carrying cause.
// Non-KeeperError values are wrapped as general errors.
func WithCause(err, cause error) error {
	if err == nil {
		return nil
	}

	var ke *KeeperError
	if errors.As(err, &ke) {
		return &KeeperError{
			Code:       ke.Code,
			Message:    ke.Message,
			Details:    ke.Details,
			Suggestion: ke.Suggestion,
			Cause:      cause,
			ExitCode:   ke.ExitCode,
		}
	}

	return fmt.Errorf("%w: %w", err, cause)
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var ke *KeeperError
	if errors.As(err, &ke) {
		return &KeeperError{
			Code:       ke.Code,
			Message:    ke.Message,
			Details:    details,
			Suggestion: ke.Suggestion,
			Cause:      ke.Cause,
			ExitCode:   ke.ExitCode,
		}
	}

	return &KeeperError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var ke *KeeperError
	if errors.As(err, &ke) {
		return &KeeperError{
			Code:       ke.Code,
			Message:    ke.Message,
			Details:    ke.Details,
			Suggestion: suggestion,
			Cause:      ke.Cause,
			ExitCode:   ke.ExitCode,
		}
	}

	return &KeeperError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// Detail returns the value of a detail key, or "" if absent.
func Detail(err error, key string) string {
	var ke *KeeperError
	if errors.As(err, &ke) && ke.Details != nil {
		return ke.Details[key]
	}
	return ""
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var ke *KeeperError
	if errors.As(err, &ke) {
		return ke.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var ke *KeeperError
	if errors.As(err, &ke) {
		return ke.Code
	}
	return "GENERAL_ERROR"
}

// IsRetryable reports whether the failed operation may be attempted again.
// Only transport-level failures qualify; device rejections, validation and
// safety errors never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
