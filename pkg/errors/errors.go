package docvault_errors

import "errors"

// Common errors
var (
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrAlreadyExists      = errors.New("already exists")
)

// Validation errors
var (
	ErrTooLarge        = errors.New("file too large")
	ErrQuotaExceeded   = errors.New("storage quota exceeded")
	ErrMimeNotAllowed  = errors.New("file type not allowed")
	ErrUpgradeRequired = errors.New("plan upgrade required")
	ErrPathOutsideRoot = errors.New("path outside upload root")
)

// Pipeline errors
var (
	ErrHashComputation = errors.New("hash computation failed")
	ErrTransferFailed  = errors.New("transfer failed")
	ErrTransferTimeout = errors.New("transfer timed out")
	ErrSizeMismatch    = errors.New("size mismatch")
	ErrHashMismatch    = errors.New("hash mismatch")
	ErrObjectNotFound  = errors.New("object not found")
)
