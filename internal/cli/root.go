package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "curio",
	Short: "Catalog manager with merge and deduplication for curated records",
	Long: `curio manages a natural-history catalog of citations, taxa, locations,
and specimens on a SQLite backend. It finds likely duplicates with fuzzy
search and merges them atomically, reconciling related rows and keeping
an append-only log of every merge.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to database file (overrides CURIO_DB_PATH)")
	rootCmd.PersistentFlags().String("as", "", "Actor recorded in the merge log (overrides CURIO_ACTOR)")
	rootCmd.PersistentFlags().String("policy", "", "Path to merge-policy overrides file (overrides CURIO_POLICY_PATH)")
}
