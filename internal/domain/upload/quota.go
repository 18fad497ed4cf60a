package upload

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
	PlanTeam Plan = "team"
)

// QuotaConfig is resolved once per session start and never re-read while
// the transfer runs.
type QuotaConfig struct {
	MaxFileSizeBytes        int64
	ClientQuotaBytes        int64
	CurrentClientUsageBytes int64
	Plan                    Plan
	// AllowedMIMEs is a whitelist; empty means every type is accepted.
	AllowedMIMEs map[string]struct{}
}

type ValidationAction string

const (
	ActionNone            ValidationAction = ""
	ActionUpgradeRequired ValidationAction = "upgrade_required"
	ActionFileTooLarge    ValidationAction = "file_too_large"
	ActionQuotaExceeded   ValidationAction = "quota_exceeded"
	ActionMimeNotAllowed  ValidationAction = "mime_not_allowed"
)

type ValidationResult struct {
	Valid  bool
	Action ValidationAction
	Err    error
}
