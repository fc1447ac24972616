package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/editengine/pkg/config"
	"github.com/openfroyo/editengine/pkg/edit"
)

// editBatch is a file of RPC requests against one engine.
type editBatch struct {
	Engine   string            `json:"engine"`
	Requests []edit.RPCRequest `json:"requests"`
}

// decodeBatch parses a YAML or JSON batch and checks it against the
// rpc_batch schema before decoding it into requests.
func decodeBatch(ctx context.Context, loader *config.FormsLoader, data []byte) (*editBatch, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse batch: %w", err)
	}
	if doc == nil {
		return nil, errors.New("batch is empty")
	}
	if err := loader.ValidateRPCBatch(ctx, doc); err != nil {
		return nil, err
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize batch: %w", err)
	}
	var batch editBatch
	if err := json.Unmarshal(normalized, &batch); err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	return &batch, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func newEditCommand() *cobra.Command {
	var (
		engineKey string
		object    string
		txns      []string
	)

	cmd := &cobra.Command{
		Use:   "edit [batch-file]",
		Short: "Apply transactions to an object",
		Long: `Apply transactions directly, bypassing forms.

Either pass a batch file (YAML or JSON, "-" for stdin) holding an engine
and a list of requests, or give a single request with --object and
--txn. Without --object a new object is created.

Values that parse as JSON are sent as JSON; anything else is a string.`,
		Example: `  # Create a task
  editengine edit --viewer PHID-USER-alice --txn task:title="Fix login" --txn task:priority=high

  # Edit an existing task
  editengine edit --viewer PHID-USER-alice --object T1 --txn 'task:projects=["web"]'

  # Apply a batch file
  editengine edit --viewer PHID-USER-alice ./batch.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, nil, true)
			if err != nil {
				return err
			}
			defer a.Close()

			batch := &editBatch{Engine: engineKey}
			if len(args) == 1 {
				data, err := readInput(args[0])
				if err != nil {
					return fmt.Errorf("failed to read batch: %w", err)
				}
				if batch, err = decodeBatch(ctx, a.forms, data); err != nil {
					return err
				}
			} else {
				parsed, err := parseTransactions(txns)
				if err != nil {
					return err
				}
				if len(parsed) == 0 {
					return errors.New("no transactions given; pass a batch file or --txn")
				}
				batch.Requests = []edit.RPCRequest{{ObjectIdentifier: object, Transactions: parsed}}
			}

			viewer := currentViewer()
			var failed error
			for i, req := range batch.Requests {
				log.Debug().
					Str("engine", batch.Engine).
					Str("object", req.ObjectIdentifier).
					Int("request", i).
					Int("transactions", len(req.Transactions)).
					Msg("Submitting edit")

				out, err := a.engine.SubmitRPC(ctx, viewer, batch.Engine, req)
				if err != nil {
					return err
				}
				if err := printOutcome(cmd.OutOrStdout(), out); err != nil {
					failed = err
				}
			}
			return failed
		},
	}

	addEngineFlag(cmd, &engineKey)
	cmd.Flags().StringVar(&object, "object", "", "object to edit (monogram, id or PHID)")
	cmd.Flags().StringArrayVar(&txns, "txn", nil, "transaction as type=value (repeatable)")

	return cmd
}
