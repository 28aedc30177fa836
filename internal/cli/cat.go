package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/curio/internal/cli/appctx"
	"github.com/lherron/curio/internal/domain"
)

var catCmd = &cobra.Command{
	Use:     "cat <type> <id|uuid>...",
	Aliases: []string{"show"},
	Short:   "Print records as markdown",
	Long: `Prints one or more records as markdown with YAML front matter.
Records may be addressed by friendly ID (CIT-00001) or UUID.`,
	Args: cobra.MinimumNArgs(2),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runCat),
}

var catJSON bool

func init() {
	rootCmd.AddCommand(catCmd)
	catCmd.Flags().BoolVar(&catJSON, "json", false, "Output as JSON")
}

func runCat(app *appctx.App, cmd *cobra.Command, args []string) error {
	t, err := app.Registry.Lookup(args[0])
	if err != nil {
		return err
	}

	var records []*domain.Record
	for _, selector := range args[1:] {
		recordUUID, err := app.Store.Records.Resolve(app.DB, t, selector)
		if err != nil {
			return err
		}
		rec, err := app.Store.Records.Get(app.DB, t, recordUUID)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	if catJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(records)
	}

	for i, rec := range records {
		if i > 0 {
			fmt.Fprintln(cmd.OutOrStdout())
		}
		printRecord(cmd.OutOrStdout(), t, rec)
	}
	return nil
}
