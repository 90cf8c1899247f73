package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"draftdrop/internal/api"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or change live daemon settings",
	}
	settingsCmd.AddCommand(newAutoProcessCommand(ctx))
	return settingsCmd
}

func newAutoProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "auto-process [on|off]",
		Short:     "Show or toggle automatic processing of dropped files",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				var (
					settings api.Settings
					err      error
				)
				if len(args) == 0 {
					settings, err = client.Settings(cmd.Context())
				} else {
					var enabled bool
					enabled, err = parseOnOff(args[0])
					if err != nil {
						return err
					}
					settings, err = client.SetAutoProcess(cmd.Context(), enabled)
				}
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, settings)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Auto-process: %s\n", onOff(settings.AutoProcess))
				return nil
			})
		},
	}
}

func parseOnOff(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", value)
	}
}
