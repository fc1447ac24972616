package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	dbPath      string
	formSources []string
	policyPaths []string
	viewerPHID  string
	viewerRoles []string
	omnipotent  bool
	verbose     bool
	jsonOutput  bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "editengine",
		Short: "Editengine - transaction-based object editing",
		Long: `Editengine edits typed objects through an append-only transaction log.

Every change to an object is a transaction produced by a field. Forms,
HTTP parameters, comment actions and conduit-style batches all flow
through the same editor, so validation and permissions are uniform.

Features:
  - Configurable forms via CUE
  - Default values via Starlark
  - Capability policies via OPA/rego
  - Field validation rules via CEL
  - SQLite storage with migrations`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "editengine.db", "SQLite database path")
	rootCmd.PersistentFlags().StringSliceVarP(&formSources, "forms", "f", nil, "forms files or directories (CUE, YAML or JSON)")
	rootCmd.PersistentFlags().StringSliceVarP(&policyPaths, "policies", "p", nil, "rego policy files or directories")
	rootCmd.PersistentFlags().StringVar(&viewerPHID, "viewer", "", "PHID of the acting user")
	rootCmd.PersistentFlags().StringSliceVar(&viewerRoles, "roles", nil, "roles held by the acting user")
	rootCmd.PersistentFlags().BoolVar(&omnipotent, "omnipotent", false, "bypass capability checks")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newServeCommand(version))
	rootCmd.AddCommand(newStreamCommand(version))
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newEditCommand())
	rootCmd.AddCommand(newCommentCommand())
	rootCmd.AddCommand(newParamsCommand())
	rootCmd.AddCommand(newDocsCommand())
	rootCmd.AddCommand(newLogCommand())
	rootCmd.AddCommand(newFormsCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newPoliciesCommand())

	return rootCmd
}
