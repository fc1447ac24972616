package commands

import (
	"github.com/spf13/cobra"

	"github.com/openfroyo/editengine/pkg/edit"
)

func newParamsCommand() *cobra.Command {
	var (
		engineKey string
		configKey string
		template  string
		sets      []string
		cont      bool
	)

	cmd := &cobra.Command{
		Use:   "params [object]",
		Short: "Create or edit an object from HTTP-style parameters",
		Long: `Submit key=value parameters the way a prefilled link would. Only
parameters naming a field are used; run "editengine docs" to list them.

Without an object a new one is created from the default form.`,
		Example: `  editengine params --viewer PHID-USER-alice --set title="Broken link" --set tags=web,docs
  editengine params T1 --viewer PHID-USER-alice --set priority=high`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			params, err := parseParams(sets)
			if err != nil {
				return err
			}

			a, err := openApp(ctx, nil, true)
			if err != nil {
				return err
			}
			defer a.Close()

			req := &edit.Request{
				ConfigKey: configKey,
				Template:  template,
				Continue:  cont,
				Params:    params,
			}
			if len(args) == 1 {
				req.ObjectIdentifier = args[0]
			}

			out, err := a.engine.SubmitParameters(ctx, currentViewer(), engineKey, req)
			if err != nil {
				return err
			}
			return printOutcome(cmd.OutOrStdout(), out)
		},
	}

	addEngineFlag(cmd, &engineKey)
	cmd.Flags().StringVar(&configKey, "config", "", "form configuration to use")
	cmd.Flags().StringVar(&template, "template", "", "object to copy initial values from")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&cont, "continue", false, "save even if nothing changes")

	return cmd
}

func newDocsCommand() *cobra.Command {
	var engineKey string

	cmd := &cobra.Command{
		Use:     "docs",
		Short:   "List the parameters an engine accepts",
		Example: `  editengine docs --engine tasks.task`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, nil, true)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.engine.ParameterDocs(ctx, currentViewer(), engineKey)
			if err != nil {
				return err
			}
			return printOutcome(cmd.OutOrStdout(), out)
		},
	}

	addEngineFlag(cmd, &engineKey)
	return cmd
}
