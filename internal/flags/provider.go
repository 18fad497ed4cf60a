package flags

import (
	"context"
	"fmt"
	"strconv"

	"docvault/internal/domain/upload"
	"docvault/internal/quota"
	"docvault/pkg/logger"

	"go.uber.org/zap"
)

// system_config keys
const (
	KeyMaxFileSizeGB        = "max_file_size_gb"
	KeyClientQuotaGB        = "storage_quota_per_client_gb"
	KeyStoragePlan          = "storage_plan"
	KeyResumableEnabled     = "enable_resumable_uploads"
	KeyResumableThresholdMB = "resumable_threshold_mb"
)

var allKeys = []string{
	KeyMaxFileSizeGB,
	KeyClientQuotaGB,
	KeyStoragePlan,
	KeyResumableEnabled,
	KeyResumableThresholdMB,
}

const (
	gib = 1024 * 1024 * 1024
	mib = 1024 * 1024
)

type ConfigStore interface {
	GetValues(ctx context.Context, keys []string) (map[string]string, error)
}

type UsageStore interface {
	ClientUsage(ctx context.Context, clientID string) (int64, error)
}

type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Defaults apply when a key is missing from system_config or unparsable.
type Defaults struct {
	MaxFileSizeGB        float64
	ClientQuotaGB        float64
	Plan                 string
	ResumableEnabled     bool
	ResumableThresholdMB float64
	EnforceMIMEWhitelist bool
}

type Flags struct {
	MaxFileSizeGB        float64
	ClientQuotaGB        float64
	Plan                 upload.Plan
	ResumableEnabled     bool
	ResumableThresholdMB float64
}

// TransferPolicy decides between a single PUT and a multipart upload.
type TransferPolicy struct {
	MultipartEnabled        bool
	MultipartThresholdBytes int64
}

func (p TransferPolicy) MethodFor(size int64) upload.Method {
	if p.MultipartEnabled && size > p.MultipartThresholdBytes {
		return upload.MethodMultipart
	}
	return upload.MethodStandard
}

type Provider struct {
	store    ConfigStore
	usage    UsageStore
	cache    Cache
	defaults Defaults
	log      *logger.Logger
}

// NewProvider builds a provider. cache may be nil.
func NewProvider(store ConfigStore, usage UsageStore, cache Cache, defaults Defaults, log *logger.Logger) *Provider {
	if log == nil {
		log = logger.Nop()
	}
	return &Provider{store: store, usage: usage, cache: cache, defaults: defaults, log: log}
}

// Flags reads every pipeline flag, cache first. Lookup failures fall back
// to the defaults and are only logged.
func (p *Provider) Flags(ctx context.Context) Flags {
	raw := p.lookup(ctx)

	return Flags{
		MaxFileSizeGB:        parseFloat(raw, KeyMaxFileSizeGB, p.defaults.MaxFileSizeGB),
		ClientQuotaGB:        parseFloat(raw, KeyClientQuotaGB, p.defaults.ClientQuotaGB),
		Plan:                 parsePlan(raw[KeyStoragePlan], p.defaults.Plan),
		ResumableEnabled:     parseBool(raw, KeyResumableEnabled, p.defaults.ResumableEnabled),
		ResumableThresholdMB: parseFloat(raw, KeyResumableThresholdMB, p.defaults.ResumableThresholdMB),
	}
}

// SessionConfig is what one session reads from the flags. Both halves come
// from the same lookup.
type SessionConfig struct {
	Quota  upload.QuotaConfig
	Policy TransferPolicy
}

// Resolve snapshots the flags once, together with the client's current usage.
func (p *Provider) Resolve(ctx context.Context, clientID string) (SessionConfig, error) {
	f := p.Flags(ctx)

	usage, err := p.usage.ClientUsage(ctx, clientID)
	if err != nil {
		return SessionConfig{}, fmt.Errorf("resolve usage of client %s: %w", clientID, err)
	}

	cfg := upload.QuotaConfig{
		MaxFileSizeBytes:        int64(f.MaxFileSizeGB * gib),
		ClientQuotaBytes:        int64(f.ClientQuotaGB * gib),
		CurrentClientUsageBytes: usage,
		Plan:                    f.Plan,
	}
	if p.defaults.EnforceMIMEWhitelist {
		cfg.AllowedMIMEs = quota.MIMESet(quota.DefaultAllowedMIMEs)
	}

	return SessionConfig{
		Quota: cfg,
		Policy: TransferPolicy{
			MultipartEnabled:        f.ResumableEnabled,
			MultipartThresholdBytes: int64(f.ResumableThresholdMB * mib),
		},
	}, nil
}

func (p *Provider) lookup(ctx context.Context) map[string]string {
	values := make(map[string]string, len(allKeys))
	var missing []string

	for _, key := range allKeys {
		if p.cache == nil {
			missing = append(missing, key)
			continue
		}
		v, ok, err := p.cache.Get(ctx, key)
		if err != nil {
			p.log.Ctx(ctx).Debug("flag cache read failed", zap.String("key", key), zap.Error(err))
		}
		if ok {
			values[key] = v
			continue
		}
		missing = append(missing, key)
	}

	if len(missing) == 0 {
		return values
	}

	stored, err := p.store.GetValues(ctx, missing)
	if err != nil {
		p.log.Ctx(ctx).Warn("system_config lookup failed, using defaults", zap.Error(err))
		return values
	}

	for key, v := range stored {
		values[key] = v
		if p.cache != nil {
			if err := p.cache.Set(ctx, key, v); err != nil {
				p.log.Ctx(ctx).Debug("flag cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return values
}

func parseFloat(raw map[string]string, key string, fallback float64) float64 {
	v, ok := raw[key]
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return fallback
	}
	return f
}

func parseBool(raw map[string]string, key string, fallback bool) bool {
	v, ok := raw[key]
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func parsePlan(v, fallback string) upload.Plan {
	switch upload.Plan(v) {
	case upload.PlanFree, upload.PlanPro, upload.PlanTeam:
		return upload.Plan(v)
	}
	switch upload.Plan(fallback) {
	case upload.PlanFree, upload.PlanTeam:
		return upload.Plan(fallback)
	}
	return upload.PlanPro
}
