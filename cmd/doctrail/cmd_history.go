package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/persistorai/doctrail/client"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query, replay and maintain audit history",
	}
	cmd.AddCommand(historyListCmd())
	cmd.AddCommand(historyShowCmd())
	cmd.AddCommand(historyReplayCmd("undo", "Revert a history record"))
	cmd.AddCommand(historyReplayCmd("redo", "Re-apply a history record"))
	cmd.AddCommand(historyExportCmd())
	cmd.AddCommand(historyPurgeCmd())
	return cmd
}

func historyFilterFlags(cmd *cobra.Command, opts *client.HistoryListOptions) {
	cmd.Flags().StringVar(&opts.Scope, "scope", "", "History scope")
	cmd.Flags().StringVar(&opts.Chain, "chain", "", "Association chain prefix, e.g. Post:p1/comments:c1")
	cmd.Flags().StringVar(&opts.Type, "type", "", "Entity type")
	cmd.Flags().StringVar(&opts.Action, "action", "", "Action: create|update|destroy")
}

func historyListCmd() *cobra.Command {
	opts := client.HistoryListOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List history records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, hasMore, err := apiClient.History.List(cmd.Context(), &opts)
			if err != nil {
				return err
			}
			if err := outputHistory(recs); err != nil {
				return err
			}
			if hasMore {
				fmt.Fprintf(os.Stderr, "more results available (use --offset %d)\n", opts.Offset+len(recs))
			}
			return nil
		},
	}
	historyFilterFlags(cmd, &opts)
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "Max results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Offset")
	return cmd
}

func historyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <record-id>",
		Short: "Show one history record with its projections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := apiClient.History.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if flagFmt == "table" {
				return outputChanges(rec.TrackedChanges)
			}
			return output(rec, rec.ID)
		},
	}
}

func historyReplayCmd(direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   direction + " <record-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			replay := apiClient.History.Undo
			if direction == "redo" {
				replay = apiClient.History.Redo
			}
			doc, err := replay(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if doc == nil {
				fmt.Fprintln(stdout, "destroyed")
				return nil
			}
			return output(doc, doc.ID)
		},
	}
}

func historyExportCmd() *cobra.Command {
	opts := client.HistoryListOptions{}
	var format, outputPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export history records as xlsx or csv",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := apiClient.History.Export(cmd.Context(), &opts, format)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if outputPath == "" {
				outputPath = res.Filename
			}
			if outputPath == "-" {
				_, err = stdout.Write(res.Data)
				return err
			}
			if err := os.WriteFile(outputPath, res.Data, 0o600); err != nil {
				return fmt.Errorf("writing export file: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Exported %d records to %s\n", res.Rows, outputPath)
			if res.Truncated {
				fmt.Fprintln(os.Stderr, "export truncated; narrow the filters to get every record")
			}
			return nil
		},
	}
	historyFilterFlags(cmd, &opts)
	cmd.Flags().StringVar(&format, "as", "xlsx", "File format: xlsx|csv")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: history.<format>, use - for stdout)")
	return cmd
}

func historyPurgeCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete history records older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}
			deleted, err := apiClient.History.Purge(cmd.Context(), days)
			if err != nil {
				return err
			}
			return output(map[string]int{"deleted": deleted, "retention_days": days}, fmt.Sprint(deleted))
		},
	}
	cmd.Flags().IntVar(&days, "days", 90, "Retention in days")
	return cmd
}
