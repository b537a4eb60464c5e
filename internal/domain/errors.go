// Package domain defines core types, interfaces, and errors for sqlguard.
package domain

import "fmt"

// Stable machine-readable denial and failure codes surfaced to callers.
const (
	CodeInsufficientPermission = "INSUFFICIENT_PERMISSION"
	CodeBlockedByPolicy        = "BLOCKED_BY_POLICY"
	CodeMissingWhereClause     = "MISSING_WHERE_CLAUSE"
	CodeSelfApprovalForbidden  = "SELF_APPROVAL_FORBIDDEN"
	CodeCommentsRequired       = "COMMENTS_REQUIRED"
	CodeDuplicateApproval      = "DUPLICATE_APPROVAL"
	CodeTemplateInvalid        = "TEMPLATE_INVALID"
	CodeSyntaxError            = "SYNTAX_ERROR"
	CodeMultiStatement         = "MULTI_STATEMENT"
	CodeProhibitedFunction     = "PROHIBITED_FUNCTION"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// AccessDeniedError indicates insufficient permissions or a policy denial.
// Code carries the stable denial reason; Message is safe to show to callers
// and never contains statement text beyond the offending keyword.
type AccessDeniedError struct {
	Code    string
	Message string
}

func (e *AccessDeniedError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Code    string
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// PolicyConflictError indicates two enabled policies of equal scope
// specificity, priority, and timestamp disagree. This is a configuration
// defect and is surfaced to administrators rather than silently resolved.
type PolicyConflictError struct {
	PolicyType string
	PolicyIDs  []string
}

func (e *PolicyConflictError) Error() string {
	return fmt.Sprintf("conflicting %s policies: %v", e.PolicyType, e.PolicyIDs)
}

// AuditPersistenceError indicates the audit trail could not be written.
// Executed marks the window where the statement already ran before the
// audit insert failed; such requests are escalated, never swallowed.
type AuditPersistenceError struct {
	Executed bool
	Err      error
}

func (e *AuditPersistenceError) Error() string {
	if e.Executed {
		return fmt.Sprintf("audit persistence failed after execution: %v", e.Err)
	}
	return fmt.Sprintf("audit persistence failed: %v", e.Err)
}

func (e *AuditPersistenceError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrAccessDenied creates an AccessDeniedError with a stable code.
func ErrAccessDenied(code, format string, args ...interface{}) *AccessDeniedError {
	return &AccessDeniedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidationCode creates a ValidationError carrying a stable code.
func ErrValidationCode(code, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a stable code.
func ErrConflict(code, format string, args ...interface{}) *ConflictError {
	return &ConflictError{Code: code, Message: fmt.Sprintf(format, args...)}
}
