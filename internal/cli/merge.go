package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/lherron/curio/internal/audit"
	"github.com/lherron/curio/internal/cli/appctx"
	"github.com/lherron/curio/internal/domain"
	"github.com/lherron/curio/internal/id"
	"github.com/lherron/curio/internal/merge"
	"github.com/lherron/curio/internal/registry"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <type> <source>... <target>",
	Short: "Merge duplicate records into a surviving target",
	Long: `Merges one or more source records into the target. Each field is resolved
by the type's merge policy, related rows are moved to the target, and the
sources are deleted, all in one transaction. The last argument is the
surviving record.

With --select, a field's value is chosen explicitly: a record ID or UUID
picks that record's current value, anything else is taken verbatim.

With --dry-run (single source only) the merge is computed but not applied,
and the target's before/after difference is printed as a unified diff.`,
	Args: cobra.MinimumNArgs(3),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runMerge),
}

var (
	mergeDryRun    bool
	mergeNoArchive bool
	mergeSelect    []string
	mergeJSON      bool
)

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.Flags().BoolVarP(&mergeDryRun, "dry-run", "n", false, "Compute the merge without applying it")
	mergeCmd.Flags().BoolVar(&mergeNoArchive, "no-archive", false, "Skip the type's archival hook")
	mergeCmd.Flags().StringArrayVar(&mergeSelect, "select", nil, "Explicit field choice, as field=value (repeatable)")
	mergeCmd.Flags().BoolVar(&mergeJSON, "json", false, "Output as JSON")
}

func runMerge(app *appctx.App, cmd *cobra.Command, args []string) error {
	t, err := app.Registry.Lookup(args[0])
	if err != nil {
		return err
	}

	selectors := args[1:]
	uuids := make([]string, len(selectors))
	for i, selector := range selectors {
		u, err := app.Store.Records.Resolve(app.DB, t, selector)
		if err != nil {
			return err
		}
		uuids[i] = u
	}
	sources := uuids[:len(uuids)-1]
	targetUUID := uuids[len(uuids)-1]

	selections, err := parseSelections(app, t, mergeSelect)
	if err != nil {
		return err
	}

	engine := merge.NewEngine(app.Store, audit.NewWriter(app.DB.DB))

	if mergeDryRun {
		if len(sources) > 1 || len(selections) > 0 {
			return fmt.Errorf("--dry-run supports a single source and no --select")
		}
		before, err := app.Store.Records.Get(app.DB, t, targetUUID)
		if err != nil {
			return err
		}
		result, err := engine.Merge(t.Name, sources[0], targetUUID, nil, app.Actor, merge.Options{
			Archive: !mergeNoArchive,
			DryRun:  true,
		})
		if err != nil {
			return err
		}
		return printDryRun(cmd, t, before, result)
	}

	var results []*domain.MergeResult
	if len(sources) > 1 || len(selections) > 0 {
		results, err = engine.MergeSelected(t.Name, targetUUID, sources, selections, app.Actor, !mergeNoArchive)
		if err != nil {
			return err
		}
	} else {
		result, err := engine.Merge(t.Name, sources[0], targetUUID, nil, app.Actor, merge.Options{
			Archive: !mergeNoArchive,
		})
		if err != nil {
			return err
		}
		results = []*domain.MergeResult{result}
	}

	if mergeJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	}

	for _, result := range results {
		printResolutions(cmd, result)
	}
	final := results[len(results)-1].Target
	fmt.Fprintf(cmd.OutOrStdout(), "Merged %d record(s) into %s\n", len(sources), final.ID)
	return nil
}

// parseSelections parses --select flags, resolving record selectors to UUIDs
// so that friendly IDs pick a record's value rather than being taken as text.
func parseSelections(app *appctx.App, t *registry.Type, pairs []string) (merge.Selections, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	raw, err := parseFieldArgs(pairs)
	if err != nil {
		return nil, err
	}
	selections := make(merge.Selections, len(raw))
	for field, v := range raw {
		value := v.(string)
		if id.IsFriendlyID(value) {
			resolved, err := app.Store.Records.Resolve(app.DB, t, value)
			if err != nil {
				return nil, fmt.Errorf("selection for %q: %w", field, err)
			}
			value = resolved
		}
		selections[field] = value
	}
	return selections, nil
}

func printResolutions(cmd *cobra.Command, result *domain.MergeResult) {
	out := cmd.OutOrStdout()
	for _, field := range sortedKeys(result.Fields) {
		res := result.Fields[field]
		marker := " "
		if res.Changed {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s: %s\n", marker, field, res.Note)
	}
	for _, name := range sortedKeys(result.Relations) {
		outcome := result.Relations[name]
		if outcome.Action == "skip" {
			fmt.Fprintf(out, "  %s: skipped\n", name)
			continue
		}
		fmt.Fprintf(out, "  %s: updated=%d added=%d deleted=%d skipped=%d\n",
			name, outcome.Updated, outcome.Added, outcome.Deleted, outcome.Skipped)
	}
}

func printDryRun(cmd *cobra.Command, t *registry.Type, before *domain.Record, result *domain.MergeResult) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Dry run; no changes applied.")
	printResolutions(cmd, result)

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(recordText(t, before)),
		B:        difflib.SplitLines(recordText(t, result.Target)),
		FromFile: "current",
		ToFile:   "merged",
		Context:  3,
	}
	diffText, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return err
	}
	if strings.TrimSpace(diffText) == "" {
		fmt.Fprintln(out, "Target fields unchanged.")
		return nil
	}
	fmt.Fprint(out, diffText)
	return nil
}
