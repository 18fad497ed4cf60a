package main

import (
	"context"
	"log"

	"docvault/config"
	"docvault/internal/app"
	"docvault/internal/handler"
	"docvault/internal/redis"
	"docvault/internal/server"
	"docvault/internal/services"
	"docvault/internal/websocket"
	"docvault/pkg/database"
	"docvault/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.LogMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, l, true)
	if err != nil {
		log.Fatalf("Failed to start the upload agent: %v", err)
	}

	hub := websocket.NewHub(l)
	go hub.Run(ctx)

	uploads := services.NewUploadService(a.ManagerFactory(), services.UploadServiceConfig{
		Root:      cfg.UploadRoot,
		MaxActive: cfg.Transfer.MaxConcurrentSessions,
	}, a.RateLimiter, hub, l)
	documents := services.NewDocumentService(a.Documents, a.Events)

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Uploads:   handler.NewUploadHandler(uploads),
		Documents: handler.NewDocumentHandler(documents),
		WebSocket: websocket.NewHandler(hub, websocket.NewChannelAuthorizer(uploads)),
	}, a.RateLimiter)
	srv.AddHealthCheck("database", func(ctx context.Context) error {
		return database.HealthCheck(ctx, a.DB)
	})
	srv.AddHealthCheck("redis", func(ctx context.Context) error {
		return redis.Ping(ctx, a.Redis)
	})

	bridge := websocket.NewRedisBridge(redis.NewSubscriber(a.Redis), hub)
	go func() {
		if err := bridge.Run(ctx, []string{redis.DocumentEventsChannel}); err != nil && ctx.Err() == nil {
			l.Logger.Error("document event bridge stopped", zap.Error(err))
		}
	}()

	heartbeat := server.NewHeartbeat(a.Agents, cfg.AgentName, 0, uploads.ActiveCount, l)
	heartbeatDone := make(chan struct{})
	go func() {
		heartbeat.Run(ctx)
		close(heartbeatDone)
	}()

	srv.OnShutdown(func(ctx context.Context) {
		uploads.Shutdown(ctx)
	})
	srv.OnShutdown(func(context.Context) {
		cancel()
		<-heartbeatDone
		a.Close()
	})

	if err := srv.Start(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
