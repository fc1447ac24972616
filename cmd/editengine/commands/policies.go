package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfroyo/editengine/pkg/edit"
)

func newPoliciesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Inspect capability policies",
	}
	cmd.AddCommand(newPoliciesListCommand())
	cmd.AddCommand(newPoliciesCheckCommand())
	return cmd
}

func newPoliciesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List the active policies",
		Example: `  editengine policies list --policies ./policies`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, nil, true)
			if err != nil {
				return err
			}
			defer a.Close()

			policies := a.policies.ListPolicies()
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), policies)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tENABLED\tBUILTIN\tTAGS\tDESCRIPTION")
			for _, p := range policies {
				fmt.Fprintf(tw, "%s\t%v\t%v\t%s\t%s\n", p.Name, p.Enabled, p.Builtin, strings.Join(p.Tags, ","), p.Description)
			}
			return tw.Flush()
		},
	}
}

func newPoliciesCheckCommand() *cobra.Command {
	var engineKey string

	cmd := &cobra.Command{
		Use:   "check <capability> [object]",
		Short: "Explain a capability decision for the current viewer",
		Long: `Evaluate one capability (view, edit, create or manage) for the viewer
given by --viewer and --roles, and print any deny reasons.

Without an object the decision is made against the engine itself, as
for create and manage.`,
		Example: `  editengine policies check create --viewer PHID-USER-alice
  editengine policies check edit T1 --viewer PHID-USER-bob`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			capability := edit.Capability(strings.ToLower(args[0]))
			switch capability {
			case edit.CapabilityView, edit.CapabilityEdit, edit.CapabilityCreate, edit.CapabilityManage:
			default:
				return fmt.Errorf("unknown capability %q", args[0])
			}

			a, err := openApp(ctx, nil, true)
			if err != nil {
				return err
			}
			defer a.Close()

			def, ok := a.registry.Lookup(engineKey)
			if !ok {
				return fmt.Errorf("unknown engine %q", engineKey)
			}
			subject := edit.PolicySubject{EngineKey: engineKey, ObjectType: def.PHIDType()}
			if len(args) == 2 {
				resolver, err := a.engine.Resolver(engineKey)
				if err != nil {
					return err
				}
				// Load without checks so denied objects can be explained.
				obj, err := resolver.Resolve(ctx, edit.Viewer{Omnipotent: true}, args[1])
				if err != nil {
					return err
				}
				subject = edit.SubjectOf(def, obj)
			}

			decision, err := a.policies.Decide(ctx, currentViewer(), subject, capability)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), decision)
			}
			if decision.Allowed {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s allowed\n", capability)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✗ %s denied\n", capability)
			for _, r := range decision.Reasons {
				fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", r)
			}
			return nil
		},
	}

	addEngineFlag(cmd, &engineKey)
	return cmd
}
