package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/editengine/pkg/edit"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage form configurations",
	}
	cmd.AddCommand(newConfigListCommand())
	cmd.AddCommand(newConfigSaveCommand())
	return cmd
}

func newConfigListCommand() *cobra.Command {
	var engineKey string

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List the form configurations of an engine",
		Example: `  editengine config list --engine tasks.task`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, nil, true)
			if err != nil {
				return err
			}
			defer a.Close()

			configs, err := a.engine.Configurations(ctx, engineKey)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), configs)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "IDENTIFIER\tNAME\tCREATE\tEDIT\tDISABLED")
			for _, c := range configs {
				fmt.Fprintf(tw, "%s\t%s\t%v\t%v\t%v\n", c.Identifier(), c.Name, c.IsDefault, c.IsEdit, c.IsDisabled)
			}
			return tw.Flush()
		},
	}

	addEngineFlag(cmd, &engineKey)
	return cmd
}

// decodeConfiguration parses a YAML or JSON configuration document.
func decodeConfiguration(data []byte, engineKey string) (*edit.Configuration, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize configuration: %w", err)
	}
	var cfg edit.Configuration
	if err := json.Unmarshal(normalized, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if cfg.EngineKey == "" {
		cfg.EngineKey = engineKey
	}
	return &cfg, nil
}

func newConfigSaveCommand() *cobra.Command {
	var engineKey string

	cmd := &cobra.Command{
		Use:   "save <file>",
		Short: "Create or update a form configuration",
		Long: `Save a form configuration from a YAML or JSON file ("-" for stdin).

A document with builtin_key customizes a built-in form; one with an id
updates a stored form; anything else creates a new form. Saving needs
the manage capability on the engine.`,
		Example: `  editengine config save --viewer PHID-USER-root --roles admin ./bug-form.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			data, err := readInput(args[0])
			if err != nil {
				return fmt.Errorf("failed to read configuration: %w", err)
			}
			cfg, err := decodeConfiguration(data, engineKey)
			if err != nil {
				return err
			}

			a, err := openApp(ctx, nil, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.SaveConfiguration(ctx, currentViewer(), cfg); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), cfg)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved configuration %s (%s) for %s\n", cfg.Identifier(), cfg.Name, cfg.EngineKey)
			return nil
		},
	}

	addEngineFlag(cmd, &engineKey)
	return cmd
}
