package app

import (
	"context"
	"database/sql"
	"fmt"

	"docvault/config"
	"docvault/internal/eventlog"
	"docvault/internal/flags"
	"docvault/internal/hashing"
	"docvault/internal/metrics"
	"docvault/internal/redis"
	"docvault/internal/repository"
	"docvault/internal/services"
	"docvault/internal/storage"
	"docvault/internal/transfer"
	"docvault/internal/verify"
	"docvault/pkg/database"
	"docvault/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

// App holds the shared infrastructure of an upload agent. Both the HTTP
// server and the CLI build their sessions from it.
type App struct {
	Config *config.Config
	Log    *logger.Logger

	DB      *sql.DB
	Redis   *goredis.Client
	Storage *storage.Client

	Documents repository.DocumentRepository
	Events    repository.EventRepository

	Flags       *flags.Provider
	EventLog    *eventlog.EventLog
	Metrics     *metrics.Recorder
	RateLimiter *redis.RateLimiter
	Agents      *redis.AgentRegistry
	Publisher   *redis.Publisher

	deps transfer.Deps
}

// Build connects to Postgres, Redis and S3 and assembles the pipeline
// collaborators. Migrations run when migrate is set.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, migrate bool) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := database.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	redis.Initialize(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	rdb := redis.GetClient()
	if err := redis.Ping(ctx, rdb); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	s3, err := storage.NewClient(ctx, storage.S3Config{
		Region:     cfg.S3Region,
		Bucket:     cfg.S3Bucket,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		Endpoint:   cfg.S3Endpoint,
		PublicBase: cfg.S3PublicBase,
		PresignTTL: cfg.S3PresignTTL,
		PartSize:   cfg.Transfer.MultipartPartSize,
	})
	if err != nil {
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	a := &App{
		Config:    cfg,
		Log:       log,
		DB:        db,
		Redis:     rdb,
		Storage:   s3,
		Documents: repository.NewDocumentRepository(db),
		Events:    repository.NewEventRepository(db),
		Publisher: redis.NewPublisher(rdb),
		Agents:    redis.NewAgentRegistry(rdb, 0),
		RateLimiter: redis.NewRateLimiter(rdb, redis.RateLimitConfig{
			UploadLimit:      cfg.RateLimit.StartLimit,
			UploadWindow:     cfg.RateLimit.StartWindow,
			ConnectionLimit:  cfg.RateLimit.ConnectLimit,
			ConnectionWindow: cfg.RateLimit.ConnectWindow,
		}),
	}

	a.Flags = flags.NewProvider(
		repository.NewConfigRepository(db),
		a.Documents,
		redis.NewFlagCache(rdb, cfg.Transfer.FlagCacheTTL),
		flags.Defaults{
			MaxFileSizeGB:        cfg.Transfer.DefaultMaxFileSizeGB,
			ClientQuotaGB:        cfg.Transfer.DefaultClientQuotaGB,
			Plan:                 cfg.Transfer.DefaultPlan,
			ResumableEnabled:     cfg.Transfer.ResumableEnabled,
			ResumableThresholdMB: cfg.Transfer.ResumableThresholdMB,
			EnforceMIMEWhitelist: cfg.Transfer.EnforceMIMEWhitelist,
		},
		log,
	)
	a.EventLog = eventlog.New(log, cfg.Transfer.EventLogWriteTimeout, a.Events, a.Publisher)
	a.Metrics = metrics.NewRecorder(repository.NewMetricsRepository(db), cfg.AgentName, cfg.Transfer.MetricsWriteTimeout, log)

	a.deps = transfer.Deps{
		Blob:      s3,
		Quota:     a.Flags,
		Documents: a.Documents,
		Hasher:    hashing.NewComputer(cfg.Transfer.HashChunkSize, cfg.Transfer.ETAWindow),
		Verifier:  verify.NewVerifier(s3, a.Documents, log),
		Metrics:   a.Metrics,
		Events:    a.EventLog,
		Log:       log,
	}
	return a, nil
}

// ManagerFactory returns a factory of session managers sharing this app's
// collaborators.
func (a *App) ManagerFactory() services.ManagerFactory {
	t := a.Config.Transfer
	return func(key string) *transfer.Manager {
		return transfer.NewManager(a.deps, transfer.Options{
			Key:           key,
			UploadTimeout: t.UploadTimeout,
			VerifyTimeout: t.VerifyTimeout,
			ProgressStep:  t.ProgressPersistStep,
			PartSize:      t.MultipartPartSize,
		})
	}
}

// Close waits for pending audit and metrics writes, then releases the
// connections.
func (a *App) Close() {
	a.EventLog.Wait()
	a.Metrics.Wait()
	if err := a.Redis.Close(); err != nil {
		a.Log.Warnf("close redis: %s", err)
	}
	if err := database.Close(); err != nil {
		a.Log.Warnf("close database: %s", err)
	}
}
