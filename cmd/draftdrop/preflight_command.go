package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"draftdrop/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var online bool

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check directories and credentials without starting the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			if online {
				results = append(results, preflight.CheckCatalogAuth(cmd.Context(), cfg.Catalog))
			}
			if ctx.jsonOutput() {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					mark := "ok"
					if !r.Passed {
						mark = "FAIL"
					}
					rows = append(rows, []string{r.Name, mark, r.Detail})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Check", "Result", "Detail"}, rows, nil))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&online, "online", false, "Also verify the catalog token against the API")
	return cmd
}
