package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lherron/curio/internal/cli/appctx"
	"github.com/lherron/curio/internal/search"
)

var dupesCmd = &cobra.Command{
	Use:   "dupes <type> <query>",
	Short: "Find likely duplicate records",
	Long: `Scores every record of the given type against the query using token-set
similarity (case- and word-order-insensitive) and prints candidates at or
above the threshold, best match first.`,
	Args: cobra.ExactArgs(2),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runDupes),
}

var (
	dupesThreshold int
	dupesFields    []string
	dupesJSON      bool
)

func init() {
	rootCmd.AddCommand(dupesCmd)
	dupesCmd.Flags().IntVar(&dupesThreshold, "threshold", 70, "Minimum similarity score (0-100)")
	dupesCmd.Flags().StringSliceVar(&dupesFields, "fields", nil, "Fields to match against (default: all)")
	dupesCmd.Flags().BoolVar(&dupesJSON, "json", false, "Output as JSON")
}

func runDupes(app *appctx.App, cmd *cobra.Command, args []string) error {
	svc := search.New(app.Store)
	scored, err := svc.Find(search.Request{
		Type:      args[0],
		Query:     args[1],
		Fields:    dupesFields,
		Threshold: dupesThreshold,
	})
	if err != nil {
		return err
	}

	if dupesJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(scored)
	}

	if len(scored) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No candidates above threshold.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tID\tUUID")
	for _, sc := range scored {
		fmt.Fprintf(w, "%d\t%s\t%s\n", sc.Score, sc.Candidate.ID, sc.Candidate.UUID)
	}
	return w.Flush()
}
