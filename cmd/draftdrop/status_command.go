package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"draftdrop/internal/api"
	"draftdrop/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and item counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderKeyValues([][]string{
					{"Running", yesNo(status.Running)},
					{"PID", strconv.Itoa(status.PID)},
					{"Watch dir", status.WatchDir},
					{"Archive dir", status.ArchiveDir},
					{"Auto-process", onOff(status.AutoProcess)},
					{"In flight", strconv.Itoa(status.InFlight)},
				}))
				fmt.Fprint(out, renderTable([]string{"Status", "Count"}, statusCountRows(status.ItemCounts),
					[]columnAlignment{alignLeft, alignRight}))
				if failed := failedChecks(status.Preflight); len(failed) > 0 {
					fmt.Fprint(out, renderTable([]string{"Check", "Detail"}, failed, nil))
				}
				return nil
			})
		},
	}
}

func statusCountRows(counts map[string]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, status := range queue.AllStatuses() {
		rows = append(rows, []string{string(status), strconv.Itoa(counts[string(status)])})
	}
	return rows
}

func failedChecks(checks []api.CheckResult) [][]string {
	var rows [][]string
	for _, c := range checks {
		if !c.Passed {
			rows = append(rows, []string{c.Name, c.Detail})
		}
	}
	return rows
}

func onOff(value bool) string {
	if value {
		return "on"
	}
	return "off"
}
