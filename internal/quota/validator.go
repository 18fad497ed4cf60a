package quota

import (
	"fmt"

	"docvault/internal/domain/upload"
	docvault_errors "docvault/pkg/errors"

	"github.com/dustin/go-humanize"
)

// FreePlanMaxFileBytes is the per-file ceiling of the free storage plan.
const FreePlanMaxFileBytes int64 = 50 * 1024 * 1024

// Validate checks the per-file ceiling and the client's cumulative quota.
// Both boundaries are inclusive.
func Validate(fileSize int64, cfg upload.QuotaConfig) upload.ValidationResult {
	if fileSize > cfg.MaxFileSizeBytes {
		return invalid(upload.ActionFileTooLarge, fmt.Errorf("%w: exceeds the maximum of %s",
			docvault_errors.ErrTooLarge, humanize.IBytes(uint64(max(cfg.MaxFileSizeBytes, 0)))))
	}

	if cfg.CurrentClientUsageBytes+fileSize > cfg.ClientQuotaBytes {
		available := max(cfg.ClientQuotaBytes-cfg.CurrentClientUsageBytes, 0)
		return invalid(upload.ActionQuotaExceeded, fmt.Errorf("%w: available %s, required %s",
			docvault_errors.ErrQuotaExceeded, humanize.IBytes(uint64(available)), humanize.IBytes(uint64(fileSize))))
	}

	return upload.ValidationResult{Valid: true}
}

// ValidateFile runs the full pre-flight check in order: content type,
// plan ceiling, per-file ceiling, client quota.
func ValidateFile(mimeType string, fileSize int64, cfg upload.QuotaConfig) upload.ValidationResult {
	if len(cfg.AllowedMIMEs) > 0 {
		if _, ok := cfg.AllowedMIMEs[mimeType]; !ok {
			return invalid(upload.ActionMimeNotAllowed, fmt.Errorf("%w: %s",
				docvault_errors.ErrMimeNotAllowed, mimeType))
		}
	}

	if cfg.Plan == upload.PlanFree && fileSize > FreePlanMaxFileBytes {
		return invalid(upload.ActionUpgradeRequired, fmt.Errorf("%w: free plan is limited to %s per file",
			docvault_errors.ErrUpgradeRequired, humanize.IBytes(uint64(FreePlanMaxFileBytes))))
	}

	return Validate(fileSize, cfg)
}

func invalid(action upload.ValidationAction, err error) upload.ValidationResult {
	return upload.ValidationResult{Valid: false, Action: action, Err: err}
}
