package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/curio/internal/cli/appctx"
)

var addCmd = &cobra.Command{
	Use:   "add <type>",
	Short: "Add a record to the catalog",
	Long: `Adds one record of the given type (citation, taxon, location, specimen).
Fields are supplied with repeated --field key=value flags; unset fields
are left NULL. Prints the assigned friendly ID.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runAdd),
}

var addFields []string

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringArrayVarP(&addFields, "field", "f", nil, "Field to set, as key=value (repeatable)")
}

func runAdd(app *appctx.App, cmd *cobra.Command, args []string) error {
	t, err := app.Registry.Lookup(args[0])
	if err != nil {
		return err
	}

	fields, err := parseFieldArgs(addFields)
	if err != nil {
		return err
	}
	for name := range fields {
		if !t.HasField(name) {
			return fmt.Errorf("unknown field %q for type %q", name, t.Name)
		}
	}

	rec, err := app.Store.Records.Create(app.DB, t, fields)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", t.Name, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", rec.ID, rec.UUID)
	return nil
}
