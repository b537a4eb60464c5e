package api

import (
	"errors"
	"net/http"

	"sqlguard/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var notFound *domain.NotFoundError
	var accessDenied *domain.AccessDeniedError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError
	var auditFailed *domain.AuditPersistenceError

	switch {
	case errors.As(err, &auditFailed):
		// The trail could not be written; the whole surface is unsafe.
		return http.StatusServiceUnavailable
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &accessDenied):
		return http.StatusForbidden
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	default:
		// Includes PolicyConflictError: a configuration defect, not a
		// caller mistake.
		return http.StatusInternalServerError
	}
}

// errorCode extracts the stable machine-readable code carried by the
// error, if any.
func errorCode(err error) string {
	var accessDenied *domain.AccessDeniedError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError
	var policyConflict *domain.PolicyConflictError

	switch {
	case errors.As(err, &accessDenied):
		return accessDenied.Code
	case errors.As(err, &validation):
		return validation.Code
	case errors.As(err, &conflict):
		return conflict.Code
	case errors.As(err, &policyConflict):
		return "POLICY_CONFLICT"
	default:
		return ""
	}
}
