package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lherron/curio/internal/cli/appctx"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List registered record types and their merge policies",
	RunE:  appctx.WithApp(appctx.Options{NeedsDB: false}, runTypes),
}

func init() {
	rootCmd.AddCommand(typesCmd)
}

func runTypes(app *appctx.App, cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tFIELD\tSTRATEGY")
	for _, name := range app.Registry.TypeNames() {
		t, err := app.Registry.Lookup(name)
		if err != nil {
			return err
		}
		for _, field := range t.Fields {
			policy, ok := t.Policy(field)
			if !ok {
				fmt.Fprintf(w, "%s\t%s\t-\n", name, field)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, field, policy.Strategy)
		}
	}
	return w.Flush()
}
