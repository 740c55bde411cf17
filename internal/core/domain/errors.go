// Package domain defines the core domain models for the versioning object store.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DomainError represents a storage engine error with a structured error code.
//
// Codes have the form "VOS-<CLASS>-<NNNN>". The numeric suffix follows HTTP
// conventions so outer layers can map a code to a status without a table.
type DomainError struct {
	Code    string // Error code (e.g., "VOS-EPOCH-4220")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithDetailsf is WithDetails with fmt.Sprintf formatting.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// IsNotFound reports whether err carries any NOT_FOUND class code,
// including the benign end-of-iteration signal.
func IsNotFound(err error) bool {
	return strings.HasPrefix(GetErrorCode(err), "VOS-NF-")
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates a malformed or out of range argument.
	ErrInvalidArgument = NewDomainError("VOS-ARG-4000", "invalid argument")

	// ErrUnsupportedRange indicates a discard range other than {e,e} or {e,MAX}.
	ErrUnsupportedRange = NewDomainError("VOS-ARG-4001", "unsupported epoch range")
)

// ============================================================================
// Lookup Errors (NF)
// ============================================================================

var (
	// ErrNotFound is the generic not found error.
	ErrNotFound = NewDomainError("VOS-NF-4040", "not found")

	// ErrPoolNotFound indicates the pool root does not exist.
	ErrPoolNotFound = NewDomainError("VOS-NF-4041", "pool not found")

	// ErrContainerNotFound indicates the container does not exist.
	ErrContainerNotFound = NewDomainError("VOS-NF-4042", "container not found")

	// ErrHandleNotFound indicates an unknown or closed handle.
	ErrHandleNotFound = NewDomainError("VOS-NF-4043", "handle not found")

	// ErrSnapshotNotFound indicates the epoch is not a snapshot.
	ErrSnapshotNotFound = NewDomainError("VOS-NF-4044", "snapshot not found")

	// ErrNoData indicates that no record is visible at the query epoch.
	// It is distinct from a punched record, which is returned as data.
	ErrNoData = NewDomainError("VOS-NF-4045", "no data")

	// ErrIterExhausted is the benign end-of-tree signal of an iterator.
	ErrIterExhausted = NewDomainError("VOS-NF-4046", "iterator exhausted")
)

// ============================================================================
// Resource Errors (MEM)
// ============================================================================

var (
	// ErrNoSpace indicates the pool cannot hold the requested bytes.
	ErrNoSpace = NewDomainError("VOS-MEM-5070", "no space left in pool")
)

// ============================================================================
// Concurrency Errors (BUSY)
// ============================================================================

var (
	// ErrBusy indicates a conflicting active mutation.
	ErrBusy = NewDomainError("VOS-BUSY-4090", "resource busy")

	// ErrRecxConflict indicates an overlapping extent already written at the same epoch.
	ErrRecxConflict = NewDomainError("VOS-BUSY-4091", "record extent conflict")

	// ErrContainerInUse indicates the container still has open handles.
	ErrContainerInUse = NewDomainError("VOS-BUSY-4092", "container in use")

	// ErrEpochPinned indicates the epoch range covers a snapshot.
	ErrEpochPinned = NewDomainError("VOS-BUSY-4093", "epoch pinned by snapshot")

	// ErrAlreadyExists indicates a pool or container with the same uuid exists.
	ErrAlreadyExists = NewDomainError("VOS-BUSY-4094", "already exists")
)

// ============================================================================
// Epoch Errors (EPOCH)
// ============================================================================

var (
	// ErrInvalidEpoch indicates a monotonicity violation.
	ErrInvalidEpoch = NewDomainError("VOS-EPOCH-4220", "invalid epoch")

	// ErrDependencyNotSatisfied indicates a commit dependency is not committed.
	ErrDependencyNotSatisfied = NewDomainError("VOS-EPOCH-4221", "dependency not satisfied")

	// ErrEpochAborted indicates the epoch has been aborted.
	ErrEpochAborted = NewDomainError("VOS-EPOCH-4222", "epoch aborted")
)

// ============================================================================
// Permission Errors (PERM)
// ============================================================================

var (
	// ErrNoPermission indicates a write through a read-only handle.
	ErrNoPermission = NewDomainError("VOS-PERM-4030", "no permission")
)

// ============================================================================
// I/O Errors (IO)
// ============================================================================

var (
	// ErrIO indicates a store or transaction failure.
	ErrIO = NewDomainError("VOS-IO-5000", "i/o error")

	// ErrChecksum indicates a record payload that does not match its checksum.
	ErrChecksum = NewDomainError("VOS-IO-5001", "checksum mismatch")

	// ErrClosed indicates an operation on a closed engine or store.
	ErrClosed = NewDomainError("VOS-IO-5002", "closed")
)
