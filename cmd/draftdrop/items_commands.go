package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"draftdrop/internal/api"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	itemsCmd := &cobra.Command{
		Use:   "items",
		Short: "Inspect and retry processed files",
	}
	itemsCmd.AddCommand(newItemsListCommand(ctx))
	itemsCmd.AddCommand(newItemsShowCommand(ctx))
	itemsCmd.AddCommand(newItemsRetryCommand(ctx))
	return itemsCmd
}

func newItemsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				items, err := client.ListItems(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No items")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "File", "Status", "Listing", "Updated", "Error"},
					buildItemRows(items),
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (pending, processing, completed, error)")
	return cmd
}

func buildItemRows(items []api.Item) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.Filename,
			item.Status,
			dash(item.RemoteListingID),
			dash(item.UpdatedAt),
			dash(truncate(item.ErrorMessage, 48)),
		})
	}
	return rows
}

func newItemsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an item with its action log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				detail, err := client.DescribeItem(cmd.Context(), id)
				if err != nil {
					return notFound(err, id)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, detail)
				}
				printItem(cmd.OutOrStdout(), detail.Item)
				if len(detail.Logs) > 0 {
					fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Time", "Action", "Outcome", "Message"},
						buildLogRows(detail.Logs, false), nil))
				}
				return nil
			})
		},
	}
}

func newItemsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Re-run the pipeline for an item and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				res, err := client.RetryItem(cmd.Context(), id)
				if err != nil {
					return notFound(err, id)
				}
				return reportRun(cmd, ctx, res)
			})
		},
	}
}

// reportRun prints a run result and turns a failed run into a non-zero exit.
func reportRun(cmd *cobra.Command, ctx *commandContext, res api.RunResult) error {
	if ctx.jsonOutput() {
		if err := writeJSON(cmd, res); err != nil {
			return err
		}
	} else if res.Item != nil {
		printItem(cmd.OutOrStdout(), *res.Item)
	}
	if !res.Success {
		return fmt.Errorf("item %d failed: %s", res.ItemID, res.Error)
	}
	return nil
}

func printItem(out io.Writer, item api.Item) {
	rows := [][]string{
		{"ID", strconv.FormatInt(item.ID, 10)},
		{"File", item.Filename},
		{"Status", item.Status},
		{"Image", dash(item.RemoteImageID)},
		{"Listing", dash(item.RemoteListingID)},
		{"Archived", dash(item.ArchivedPath)},
	}
	if item.ErrorMessage != "" {
		rows = append(rows, []string{"Error", item.ErrorMessage})
	}
	if a := item.Analysis; a != nil {
		rows = append(rows,
			[]string{"Title", a.Title},
			[]string{"Tags", strings.Join(a.Tags, ", ")},
		)
	}
	fmt.Fprint(out, renderKeyValues(rows))
}

func parseItemID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", raw)
	}
	return id, nil
}

func notFound(err error, id int64) error {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == 404 {
		return fmt.Errorf("item %d not found", id)
	}
	return err
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
