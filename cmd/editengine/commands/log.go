package commands

import (
	"github.com/spf13/cobra"
)

func newLogCommand() *cobra.Command {
	var engineKey string

	cmd := &cobra.Command{
		Use:     "log <object>",
		Short:   "Show the transaction log of an object",
		Example: `  editengine log T1 --viewer PHID-USER-alice`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, nil, true)
			if err != nil {
				return err
			}
			defer a.Close()

			txns, err := a.engine.ListTransactions(ctx, currentViewer(), engineKey, args[0])
			if err != nil {
				return err
			}
			return printTransactions(cmd.OutOrStdout(), args[0], txns)
		},
	}

	addEngineFlag(cmd, &engineKey)
	return cmd
}
