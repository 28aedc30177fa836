package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lherron/curio/internal/audit"
	"github.com/lherron/curio/internal/cli/appctx"
)

var logCmd = &cobra.Command{
	Use:   "log [type]",
	Short: "Show the merge log",
	Long: `Prints merge log entries, newest first. With a type argument only merges
of that type are shown. The log is append-only; entries survive the
records they describe.`,
	Args: cobra.MaximumNArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runLog),
}

var (
	logLimit int
	logJSON  bool
)

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().IntVar(&logLimit, "limit", 50, "Maximum entries to show (0 = all)")
	logCmd.Flags().BoolVar(&logJSON, "json", false, "Output as JSON")
}

func runLog(app *appctx.App, cmd *cobra.Command, args []string) error {
	recordType := ""
	if len(args) == 1 {
		if _, err := app.Registry.Lookup(args[0]); err != nil {
			return err
		}
		recordType = args[0]
	}

	entries, err := audit.NewWriter(app.DB.DB).List(recordType, logLimit)
	if err != nil {
		return fmt.Errorf("failed to read merge log: %w", err)
	}

	if logJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No merges recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWHEN\tTYPE\tDISCARDED\tSURVIVING\tACTOR")
	for _, entry := range entries {
		actor := "-"
		if entry.Actor != nil {
			actor = *entry.Actor
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			entry.ID, entry.ExecutedAt.Format("2006-01-02 15:04:05"),
			entry.RecordType, entry.DiscardedUUID, entry.SurvivingUUID, actor)
	}
	return w.Flush()
}
