package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"docvault/internal/app"
	"docvault/internal/services"

	"github.com/spf13/cobra"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var clientID string
	var uploadedBy string

	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Hash, upload and verify a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := ctx.ensure()

			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			info, err := os.Stat(absPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("file does not exist: %s", absPath)
				}
				return fmt.Errorf("inspect file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", absPath)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(runCtx, cfg, log, false)
			if err != nil {
				return err
			}
			defer a.Close()

			printer := newProgressPrinter(cmd.OutOrStdout(), info.Size())
			uploads := services.NewUploadService(a.ManagerFactory(), services.UploadServiceConfig{
				Root: filepath.Dir(absPath),
			}, nil, printer, log)

			session, err := uploads.Start(runCtx, services.StartUploadInput{
				Path:       absPath,
				ClientID:   clientID,
				UploadedBy: uploadedBy,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started session %s (%s)\n", session.Key, session.FileName)

			select {
			case final := <-printer.done:
				if final.Type == services.UpdateCompleted {
					fmt.Fprintf(cmd.OutOrStdout(), "Verified document %s\n", final.DocumentID)
					return nil
				}
				if final.Error != "" {
					return errors.New(final.Error)
				}
				return fmt.Errorf("upload ended in state %s", final.State)
			case <-runCtx.Done():
				if _, err := uploads.Cancel(context.WithoutCancel(runCtx), session.Key); err != nil {
					return err
				}
				return context.Canceled
			}
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "Client the document belongs to")
	cmd.Flags().StringVar(&uploadedBy, "uploaded-by", "", "User recorded as the uploader")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}
