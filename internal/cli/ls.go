package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lherron/curio/internal/cli/appctx"
)

var lsCmd = &cobra.Command{
	Use:     "ls <type>",
	Aliases: []string{"list"},
	Short:   "List records of a type",
	Args:    cobra.ExactArgs(1),
	RunE:    appctx.WithApp(appctx.DefaultOptions(), runLs),
}

var lsJSON bool

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().BoolVar(&lsJSON, "json", false, "Output as JSON")
}

func runLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	t, err := app.Registry.Lookup(args[0])
	if err != nil {
		return err
	}

	candidates, err := app.Store.Records.List(app.DB, t)
	if err != nil {
		return fmt.Errorf("failed to list %s records: %w", t.Name, err)
	}

	if lsJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(candidates)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tUUID\t%s\n", primaryField(t.Fields))
	for _, c := range candidates {
		v := c.Fields[primaryField(t.Fields)]
		if v == nil {
			v = ""
		}
		fmt.Fprintf(w, "%s\t%s\t%v\n", c.ID, c.UUID, v)
	}
	return w.Flush()
}

// primaryField picks the first declared field as the display column.
func primaryField(fields []string) string {
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
