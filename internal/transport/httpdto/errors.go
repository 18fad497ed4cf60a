package httpdto

import (
	"errors"
	"net/http"

	"docvault/internal/domain/upload"
	docvault_errors "docvault/pkg/errors"
)

var statusByError = []struct {
	err    error
	status int
	code   string
}{
	{docvault_errors.ErrInvalidInput, http.StatusBadRequest, "INVALID_REQUEST"},
	{docvault_errors.ErrPathOutsideRoot, http.StatusForbidden, "PATH_OUTSIDE_ROOT"},
	{docvault_errors.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{docvault_errors.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{docvault_errors.ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS"},
	{docvault_errors.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
	{docvault_errors.ErrServiceUnavailable, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
	{docvault_errors.ErrTooLarge, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
	{docvault_errors.ErrQuotaExceeded, http.StatusUnprocessableEntity, "QUOTA_EXCEEDED"},
	{docvault_errors.ErrMimeNotAllowed, http.StatusUnsupportedMediaType, "MIME_NOT_ALLOWED"},
	{docvault_errors.ErrUpgradeRequired, http.StatusPaymentRequired, "UPGRADE_REQUIRED"},
}

// ErrorStatus maps a domain error to an HTTP status and response code.
func ErrorStatus(err error) (int, string) {
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	// quota lookups that failed before any rule ran
	if stage, ok := upload.StageOf(err); ok && stage == upload.StageValidation {
		return http.StatusServiceUnavailable, "QUOTA_UNAVAILABLE"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}
