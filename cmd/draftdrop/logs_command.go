package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"draftdrop/internal/api"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var itemID int64
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the action log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				entries, err := client.Logs(cmd.Context(), itemID, limit)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No log entries")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Time", "Item", "Action", "Outcome", "Message"},
					buildLogRows(entries, true),
					nil,
				))
				return nil
			})
		},
	}
	cmd.Flags().Int64VarP(&itemID, "item", "i", 0, "Only show entries for this item")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum entries to show")
	return cmd
}

func buildLogRows(entries []api.LogEntry, withItem bool) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		row := []string{e.CreatedAt}
		if withItem {
			item := "-"
			if e.ItemID != nil {
				item = strconv.FormatInt(*e.ItemID, 10)
			}
			row = append(row, item)
		}
		row = append(row, e.Stage, e.Outcome, e.Message)
		rows = append(rows, row)
	}
	return rows
}
