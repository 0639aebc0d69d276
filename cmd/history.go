package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/atotto/clipboard"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"inkink/history"
	"inkink/publisher"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and manage saved generations",
	}
	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistorySearchCommand(ctx))
	historyCmd.AddCommand(newHistoryStatsCommand(ctx))
	historyCmd.AddCommand(newHistoryDeleteCommand(ctx))
	historyCmd.AddCommand(newHistoryExportCommand(ctx))
	return historyCmd
}

func withStore(ctx *commandContext, fn func(*history.Store) error) error {
	store, err := ctx.openHistory()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func recordRows(records []history.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			r.Title,
			r.Status,
			strconv.Itoa(r.PageCount),
			humanize.Time(r.UpdatedAt),
		})
	}
	return rows
}

var recordHeaders = []string{"ID", "Title", "Status", "Pages", "Updated"}
var recordAligns = []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var page, pageSize int
	var status string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List history records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *history.Store) error {
				res, err := store.List(cmd.Context(), page, pageSize, status)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSONOutput(cmd.OutOrStdout(), res)
				}
				if res.Total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No history records")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(recordHeaders, recordRows(res.Records), recordAligns))
				fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d, %s records\n", res.Page, res.TotalPages, humanize.Comma(int64(res.Total)))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number (1-based)")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Records per page")
	cmd.Flags().StringVar(&status, "status", "", "Only show records with this status")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one record as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *history.Store) error {
				d, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ID:      %s\nStatus:  %s\nCreated: %s\nUpdated: %s\n\n",
					d.ID, d.Status, d.CreatedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(d.UpdatedAt))
				fmt.Fprint(cmd.OutOrStdout(), publisher.Markdown(d))
				return nil
			})
		},
	}
}

func newHistorySearchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <keyword>",
		Short: "Find records whose title contains keyword",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *history.Store) error {
				records, err := store.Search(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No matching records")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(recordHeaders, recordRows(records), recordAligns))
				return nil
			})
		},
	}
}

func newHistoryStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count records by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *history.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				statuses := make([]string, 0, len(stats.ByStatus))
				for s := range stats.ByStatus {
					statuses = append(statuses, s)
				}
				sort.Strings(statuses)
				rows := make([][]string, 0, len(statuses)+1)
				for _, s := range statuses {
					rows = append(rows, []string{s, humanize.Comma(int64(stats.ByStatus[s]))})
				}
				rows = append(rows, []string{"total", humanize.Comma(int64(stats.Total))})
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newHistoryDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *history.Store) error {
				for _, id := range args {
					if err := store.Delete(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				}
				return nil
			})
		},
	}
}

func newHistoryExportCommand(ctx *commandContext) *cobra.Command {
	var output string
	var copyOut bool
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a record as HTML ready to paste into an editor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *history.Store) error {
				d, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if output != "" {
					if err := publisher.WriteFile(output, d); err != nil {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", output)
				}
				html, err := publisher.HTML(d)
				if err != nil {
					return err
				}
				if copyOut {
					// 剪贴板不可用时只提示，导出本身不算失败。
					if err := clipboard.WriteAll(string(html)); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not copy to clipboard: %v\n", err)
					} else {
						fmt.Fprintln(cmd.ErrOrStderr(), "HTML copied to clipboard")
					}
				}
				if output == "" && !copyOut {
					_, err = cmd.OutOrStdout().Write(html)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	cmd.Flags().BoolVar(&copyOut, "copy", false, "Copy the HTML to the clipboard for pasting into an editor")
	return cmd
}
