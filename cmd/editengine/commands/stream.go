package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/editengine/pkg/protocol"
)

func newStreamCommand(version string) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Serve edit commands over stdin and stdout",
		Long: `Read newline-delimited JSON commands from stdin and answer each with a
DONE or ERROR message on stdout.

The session opens with a READY message listing the engines and command
types, and closes with an EXIT message once stdin ends.`,
		Example: `  echo '{"type":"CMD","timestamp":"2024-01-01T00:00:00Z","data":{"id":"1","type":"docs","engine":"tasks.task"}}' | editengine stream`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, nil, true)
			if err != nil {
				return err
			}
			defer a.Close()

			session := protocol.NewSession(a.engine, os.Stdin, os.Stdout, log.Logger,
				protocol.WithVersion(version), protocol.WithCommandTimeout(timeout))
			exit, err := session.Run(ctx)
			if err != nil {
				return err
			}

			log.Debug().
				Str("reason", exit.Reason).
				Int("commands", exit.CommandsTotal).
				Int("failed", exit.CommandsFailed).
				Msg("Stream closed")
			if exit.ExitCode != 0 {
				return fmt.Errorf("stream ended with %s", exit.Reason)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "timeout of commands which set none")

	return cmd
}
