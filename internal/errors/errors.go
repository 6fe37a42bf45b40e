// Package errors provides centralized error definitions and error handling
// utilities for questline. It defines sentinel errors for the quest store and
// the orchestration loop, domain error types that carry quest/step/agent
// context, semantic error types, and classification helpers.
//
// # Error Types
//
// Domain-specific errors:
//   - QuestError: quest file loading, validation, and step updates
//   - AgentError: worker spawn and supervision failures
//
// Semantic errors:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//
// # Usage
//
//	err := errors.NewQuestError("update step", errors.ErrStepNotFound).
//		WithQuestPath(path).WithStepID(id)
//
//	if errors.Is(err, errors.ErrStepNotFound) { ... }
//
//	var qe *errors.QuestError
//	if errors.As(err, &qe) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
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

// Quest store sentinel errors
var (
	// ErrQuestNotFound indicates that the quest file does not exist.
	ErrQuestNotFound = New("quest not found")
	// ErrQuestCorrupted indicates that the quest file could not be decoded.
	ErrQuestCorrupted = New("quest data corrupted")
	// ErrQuestInvalid indicates that a decoded quest violates a structural rule.
	ErrQuestInvalid = New("quest is invalid")
	// ErrStepNotFound indicates that a step id is absent from the quest.
	ErrStepNotFound = New("step not found")
	// ErrInvalidTransition indicates an illegal step status change.
	ErrInvalidTransition = New("invalid step status transition")
)

// Orchestration sentinel errors
var (
	// ErrNoSlotAvailable indicates that every slot in the pool is occupied.
	ErrNoSlotAvailable = New("no slot available")
	// ErrSpawnFailed indicates that a worker process could not be started.
	ErrSpawnFailed = New("worker spawn failed")
	// ErrSignalInvalid indicates that a worker signal failed validation.
	ErrSignalInvalid = New("signal is invalid")
	// ErrUnknownRole indicates that no prompt template exists for a role.
	ErrUnknownRole = New("unknown agent role")
)

// Session log sentinel errors
var (
	// ErrDirectoryNotFound indicates that a listed path is missing or is not
	// a directory.
	ErrDirectoryNotFound = New("directory not found")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// QuestlineError is the base interface for all questline errors.
type QuestlineError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the operation may succeed on retry.
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

// formatWithContext renders "<kind> [k=v, ...]: message: cause".
func formatWithContext(kind string, parts []string, message string, cause error) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// QuestError represents errors related to quest persistence and step updates.
//
// Example:
//
//	err := errors.NewQuestError("update step", errors.ErrStepNotFound)
//	err = err.WithQuestPath("/tmp/quest.json").WithStepID("e5f6...")
//	fmt.Println(err) // "quest error [quest=/tmp/quest.json, step=e5f6...]: update step: step not found"
type QuestError struct {
	baseError
	QuestPath string
	StepID    string
}

// NewQuestError creates a new QuestError.
func NewQuestError(message string, cause error) *QuestError {
	return &QuestError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithQuestPath adds the quest file path to the error context.
func (e *QuestError) WithQuestPath(path string) *QuestError {
	e.QuestPath = path
	return e
}

// WithStepID adds a step id to the error context.
func (e *QuestError) WithStepID(id string) *QuestError {
	e.StepID = id
	return e
}

// WithSeverity sets the error severity.
func (e *QuestError) WithSeverity(s Severity) *QuestError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *QuestError) Error() string {
	var parts []string
	if e.QuestPath != "" {
		parts = append(parts, fmt.Sprintf("quest=%s", e.QuestPath))
	}
	if e.StepID != "" {
		parts = append(parts, fmt.Sprintf("step=%s", e.StepID))
	}
	return formatWithContext("quest error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *QuestError) Is(target error) bool {
	if _, ok := target.(*QuestError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// AgentError represents errors related to spawning or supervising a worker.
//
// Example:
//
//	err := errors.NewAgentError("start claude", execErr).WithRole("codeweaver").WithStepID(id)
type AgentError struct {
	baseError
	Role      string
	StepID    string
	SessionID string
}

// NewAgentError creates a new AgentError. Agent errors are retryable by
// default since most spawn failures are environmental.
func NewAgentError(message string, cause error) *AgentError {
	return &AgentError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithRole adds the agent role to the error context.
func (e *AgentError) WithRole(role string) *AgentError {
	e.Role = role
	return e
}

// WithStepID adds a step id to the error context.
func (e *AgentError) WithStepID(id string) *AgentError {
	e.StepID = id
	return e
}

// WithSessionID adds a worker session id to the error context.
func (e *AgentError) WithSessionID(id string) *AgentError {
	e.SessionID = id
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *AgentError) WithRetryable(r bool) *AgentError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *AgentError) Error() string {
	var parts []string
	if e.Role != "" {
		parts = append(parts, fmt.Sprintf("role=%s", e.Role))
	}
	if e.StepID != "" {
		parts = append(parts, fmt.Sprintf("step=%s", e.StepID))
	}
	if e.SessionID != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.SessionID))
	}
	return formatWithContext("agent error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *AgentError) Is(target error) bool {
	if _, ok := target.(*AgentError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("step", "abc123")
//	fmt.Println(err) // "step 'abc123' not found"
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
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("step id must be a UUID").WithField("steps[0].id").WithValue("x")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return formatWithContext("validation error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether err, or any error it wraps, is marked retryable.
func IsRetryable(err error) bool {
	var qe QuestlineError
	if As(err, &qe) {
		return qe.IsRetryable()
	}
	return false
}

// IsUserFacing reports whether err carries a message safe to show users.
func IsUserFacing(err error) bool {
	var qe QuestlineError
	if As(err, &qe) {
		return qe.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity of err, or SeverityError for errors that
// do not implement QuestlineError.
func GetSeverity(err error) Severity {
	var qe QuestlineError
	if As(err, &qe) {
		return qe.Severity()
	}
	return SeverityError
}

// Wrap wraps an error with additional context. Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message. Returns nil if err is nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
