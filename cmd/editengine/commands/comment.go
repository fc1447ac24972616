package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/openfroyo/editengine/pkg/edit"
)

func newCommentCommand() *cobra.Command {
	var (
		engineKey string
		text      string
		actions   []string
		cont      bool
	)

	cmd := &cobra.Command{
		Use:   "comment <object>",
		Short: "Comment on an object, optionally with actions",
		Long: `Add a comment to an object. Each --action applies one transaction
alongside the comment, such as closing a task while explaining why.

Actions need edit permission; a bare comment only needs to see the object.`,
		Example: `  editengine comment T1 --viewer PHID-USER-alice --text "Looks done" --action task:status=resolved`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			parsed, err := parseActions(actions)
			if err != nil {
				return err
			}
			if text == "" && len(parsed) == 0 {
				return errors.New("nothing to submit; pass --text or --action")
			}

			a, err := openApp(ctx, nil, true)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.engine.SubmitComment(ctx, currentViewer(), engineKey, &edit.Request{
				ObjectIdentifier: args[0],
				CommentText:      text,
				Actions:          parsed,
				Continue:         cont,
			})
			if err != nil {
				return err
			}
			return printOutcome(cmd.OutOrStdout(), out)
		},
	}

	addEngineFlag(cmd, &engineKey)
	cmd.Flags().StringVarP(&text, "text", "m", "", "comment text")
	cmd.Flags().StringArrayVar(&actions, "action", nil, "action as type=value (repeatable)")
	cmd.Flags().BoolVar(&cont, "continue", false, "save even if the actions change nothing")

	return cmd
}
