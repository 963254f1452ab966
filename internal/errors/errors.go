// Package errors provides centralized error definitions and error handling utilities
// for the planning poker server. It defines domain sentinel errors, semantic error
// types, error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Semantic errors represent the four conditions callers of the registry and the
// team state machine need to distinguish:
//   - NotFoundError: unknown team or participant
//   - AlreadyExistsError: team or participant name collision
//   - InvalidStateError: operation not allowed in the current round state,
//     or an estimate outside the team's catalog
//   - TimeoutError: team lock acquisition or message wait ran out of time
//
// TeamError wraps infrastructure failures (storage, message bus) with the name
// of the team they happened for.
//
// # Usage
//
//	err := errors.NewNotFoundError("team", "Alpha").WithCause(errors.ErrTeamNotFound)
//
//	if errors.Is(err, errors.ErrTeamNotFound) { ... }
//
//	switch errors.KindOf(err) {
//	case errors.KindNotFound:
//	    ...
//	}
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Team-related sentinel errors
var (
	// ErrTeamNotFound indicates that a team does not exist in memory or storage.
	ErrTeamNotFound = New("team not found")
	// ErrTeamExists indicates that an active team with the same name exists.
	ErrTeamExists = New("team already exists")
	// ErrTeamExpired indicates that a persisted team has no active participants
	// left. It matches ErrTeamNotFound.
	ErrTeamExpired = fmt.Errorf("team expired: %w", ErrTeamNotFound)
)

// Participant-related sentinel errors
var (
	// ErrParticipantNotFound indicates that no participant has the given name.
	ErrParticipantNotFound = New("participant not found")
	// ErrNameConflict indicates that a participant name is already used in the team.
	ErrNameConflict = New("participant name already used")
	// ErrLeaderExists indicates that the team already has a leader.
	ErrLeaderExists = New("team already has a leader")
)

// Round-related sentinel errors
var (
	// ErrEstimateInProgress indicates that a round cannot start while another is running.
	ErrEstimateInProgress = New("estimate is already in progress")
	// ErrInvalidEstimate indicates that an estimate is not one of the team's catalog values.
	ErrInvalidEstimate = New("estimate is not available in team")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// DomainError is the base interface for all planning poker errors.
type DomainError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Infrastructure Errors
// -----------------------------------------------------------------------------

// TeamError represents an infrastructure failure (storage, message bus) that
// happened while serving a team.
//
// Example:
//
//	err := errors.NewTeamError("load", ioErr).WithTeam("Alpha")
//	fmt.Println(err) // "team error [team=Alpha, op=load]: <io error>"
type TeamError struct {
	baseError
	TeamName  string
	Operation string
}

// NewTeamError creates a new TeamError for the given operation.
func NewTeamError(operation string, cause error) *TeamError {
	return &TeamError{
		baseError: baseError{
			message:    operation + " failed",
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: false,
		},
		Operation: operation,
	}
}

// WithTeam adds the team name to the error context.
func (e *TeamError) WithTeam(name string) *TeamError {
	e.TeamName = name
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *TeamError) WithRetryable(r bool) *TeamError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TeamError) Error() string {
	var parts []string
	if e.TeamName != "" {
		parts = append(parts, fmt.Sprintf("team=%s", e.TeamName))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Operation))
	}

	prefix := "team error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("team error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *TeamError) Is(target error) bool {
	if _, ok := target.(*TeamError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a team or participant that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("team", "Alpha")
//	fmt.Println(err) // "team 'Alpha' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// AlreadyExistsError represents a team or participant name that is already taken.
//
// Example:
//
//	err := errors.NewAlreadyExistsError("team", "Alpha")
//	fmt.Println(err) // "team 'Alpha' already exists"
type AlreadyExistsError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(resourceType, resourceID string) *AlreadyExistsError {
	return &AlreadyExistsError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' already exists", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *AlreadyExistsError) WithCause(cause error) *AlreadyExistsError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s '%s' already exists", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *AlreadyExistsError) Is(target error) bool {
	if _, ok := target.(*AlreadyExistsError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// InvalidStateError represents an operation that is not allowed in the
// current state, or a value the team does not accept.
//
// Example:
//
//	err := errors.NewInvalidStateError("estimate is already in progress").
//		WithField("state").WithValue("EstimateInProgress")
type InvalidStateError struct {
	baseError
	Field string
	Value any
}

// NewInvalidStateError creates a new InvalidStateError.
func NewInvalidStateError(message string) *InvalidStateError {
	return &InvalidStateError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *InvalidStateError) WithField(field string) *InvalidStateError {
	e.Field = field
	return e
}

// WithValue adds the offending value to the error context.
func (e *InvalidStateError) WithValue(value any) *InvalidStateError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *InvalidStateError) WithCause(cause error) *InvalidStateError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *InvalidStateError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "invalid state"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("invalid state [%s]", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *InvalidStateError) Is(target error) bool {
	if _, ok := target.(*InvalidStateError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("acquire lock of team Alpha", 10*time.Second)
//	fmt.Println(err) // "timeout error: acquire lock of team Alpha (timeout: 10s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// Kind classifies an error into one of the caller-visible categories.
type Kind int

const (
	// KindUnknown is any error that is not one of the semantic errors.
	KindUnknown Kind = iota
	// KindNotFound is a NotFoundError.
	KindNotFound
	// KindAlreadyExists is an AlreadyExistsError.
	KindAlreadyExists
	// KindInvalidState is an InvalidStateError.
	KindInvalidState
	// KindTimeout is a TimeoutError.
	KindTimeout
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindInvalidState:
		return "invalid_state"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// KindOf returns the category of err. Wrapped errors are unwrapped.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var notFound *NotFoundError
	var alreadyExists *AlreadyExistsError
	var invalidState *InvalidStateError
	var timeout *TimeoutError

	switch {
	case As(err, &notFound):
		return KindNotFound
	case As(err, &alreadyExists):
		return KindAlreadyExists
	case As(err, &invalidState):
		return KindInvalidState
	case As(err, &timeout):
		return KindTimeout
	case Is(err, ErrTimeout):
		return KindTimeout
	default:
		return KindUnknown
	}
}

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing DomainError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var domainErr DomainError
	if As(err, &domainErr) {
		return domainErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
//
// Example:
//
//	if errors.IsUserFacing(err) {
//	    writeError(w, err.Error())
//	} else {
//	    writeError(w, "internal error")
//	    logger.Error("internal error", "error", err)
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var domainErr DomainError
	if As(err, &domainErr) {
		return domainErr.IsUserFacing()
	}

	return IsSemanticError(err)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement DomainError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var domainErr DomainError
	if As(err, &domainErr) {
		return domainErr.Severity()
	}

	return SeverityError
}

// IsSemanticError returns true if the error is a semantic error
// (NotFoundError, AlreadyExistsError, InvalidStateError, or TimeoutError).
func IsSemanticError(err error) bool {
	return KindOf(err) != KindUnknown
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this preserves the DomainError interface.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to save team")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to save team %s", teamName)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
