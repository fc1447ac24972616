package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/editengine/pkg/config"
	"github.com/openfroyo/editengine/pkg/rules"
)

func newFormsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forms",
		Short: "Work with forms files",
	}
	cmd.AddCommand(newFormsValidateCommand())
	return cmd
}

func newFormsValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path...]",
		Short: "Validate forms files",
		Long: `Validate forms files written in CUE, YAML or JSON.

This command checks:
  - Syntax and schema conformance
  - Field rule expressions (CEL)
  - Engine keys and clashes with built-in forms`,
		Example: `  editengine forms validate ./forms
  editengine forms validate tasks.cue bugs.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sources := args
			if len(sources) == 0 {
				sources = formSources
			}
			if len(sources) == 0 {
				return errors.New("no forms given; pass paths or --forms")
			}

			evaluator, err := rules.NewEvaluator()
			if err != nil {
				return err
			}
			loader := config.NewFormsLoader(evaluator)

			log.Info().Strs("sources", sources).Msg("Validating forms")

			parsed, err := loader.Parse(ctx, sources)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), parsed); err != nil {
					return err
				}
			} else {
				for _, ve := range parsed.Errors {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", severityMark(ve.Severity), ve.String())
				}
			}
			if parsed.HasErrors() {
				return fmt.Errorf("forms have %d problems", len(parsed.Errors))
			}

			reg, err := newRegistry()
			if err != nil {
				return err
			}
			if err := loader.Apply(reg, parsed); err != nil {
				return err
			}

			if !jsonOutput {
				forms := 0
				for _, ef := range parsed.Forms.Engines {
					forms += len(ef.Forms)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %d files valid, %d forms across %d engines\n",
					len(parsed.SourceFiles), forms, len(parsed.Forms.Engines))
			}
			return nil
		},
	}
	return cmd
}

func severityMark(severity string) string {
	if severity == "error" {
		return "✗"
	}
	return "!"
}
