package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"draftdrop/internal/api"
	"draftdrop/internal/config"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Send an image to the daemon and wait for its draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("inspect %q: %w", path, err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", path)
			}
			return ctx.withClient(func(client *api.Client) error {
				res, err := client.UploadFile(cmd.Context(), path)
				if err != nil {
					return err
				}
				return reportRun(cmd, ctx, res)
			})
		},
	}
}
