package main

import (
	"sync"

	"docvault/config"
	"docvault/pkg/logger"

	"github.com/spf13/cobra"
)

type commandContext struct {
	logMode *string

	once   sync.Once
	config *config.Config
	log    *logger.Logger
}

func newCommandContext(logMode *string) *commandContext {
	return &commandContext{logMode: logMode}
}

func (c *commandContext) ensure() (*config.Config, *logger.Logger) {
	c.once.Do(func() {
		c.config = config.LoadConfig()
		mode := c.config.LogMode
		if c.logMode != nil && *c.logMode != "" {
			mode = *c.logMode
		}
		c.log = logger.New(mode)
		logger.SetGlobalLogger(c.log)
	})
	return c.config, c.log
}

func newRootCommand() *cobra.Command {
	var logMode string
	ctx := newCommandContext(&logMode)

	rootCmd := &cobra.Command{
		Use:           "docvault",
		Short:         "Upload and verify client documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "Log mode (development or production); defaults to LOG_MODE")

	rootCmd.AddCommand(newUploadCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newAgentsCommand(ctx))
	return rootCmd
}
