package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"docvault/internal/redis"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newAgentsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List upload agents with a live heartbeat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := ctx.ensure()

			client := redis.NewClient(redis.Config{
				Host:     cfg.RedisHost,
				Port:     cfg.RedisPort,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			defer client.Close()

			agents, err := redis.NewAgentRegistry(client, 0).List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list agents: %w", err)
			}
			if len(agents) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No agents online")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tACTIVE\tLAST SEEN")
			for _, a := range agents {
				fmt.Fprintf(w, "%s\t%d\t%s\n", a.Name, a.ActiveSessions, humanize.RelTime(a.LastSeen, time.Now(), "ago", "from now"))
			}
			return w.Flush()
		},
	}
}
