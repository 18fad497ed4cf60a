package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"docvault/internal/domain/upload"
	"docvault/internal/redis"

	"github.com/spf13/cobra"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream document audit events published by every agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := ctx.ensure()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := redis.NewClient(redis.Config{
				Host:     cfg.RedisHost,
				Port:     cfg.RedisPort,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			defer client.Close()
			if err := redis.Ping(runCtx, client); err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}

			out := cmd.OutOrStdout()
			return redis.NewSubscriber(client).Subscribe(runCtx, []string{redis.DocumentEventsChannel}, func(_ string, payload []byte) {
				printEvent(out, payload)
			})
		},
	}
}

func printEvent(out io.Writer, payload []byte) {
	var e upload.AuditEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		fmt.Fprintf(out, "%s\n", payload)
		return
	}
	doc := "-"
	if e.DocumentID != nil {
		doc = e.DocumentID.String()
	}
	fmt.Fprintf(out, "%s  %-24s %s", e.OccurredAt.Local().Format("15:04:05"), e.Type, doc)
	if len(e.Metadata) > 0 {
		meta, _ := json.Marshal(e.Metadata)
		fmt.Fprintf(out, "  %s", meta)
	}
	fmt.Fprintln(out)
}
