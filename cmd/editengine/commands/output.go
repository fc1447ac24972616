package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/openfroyo/editengine/pkg/edit"
	"github.com/openfroyo/editengine/pkg/protocol"
)

// errUnsaved is returned after an outcome which did not save was printed,
// so the process exits non-zero.
var errUnsaved = errors.New("edit was not saved")

type outcomeOutput struct {
	Outcome string `json:"outcome"`
	Result  any    `json:"result"`
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printOutcome writes out in the selected format. Outcomes other than saved
// and documentation yield errUnsaved.
func printOutcome(w io.Writer, out edit.Outcome) error {
	if jsonOutput {
		if err := printJSON(w, outcomeOutput{Outcome: out.Name(), Result: protocol.ResultOf(out)}); err != nil {
			return err
		}
		switch out.(type) {
		case *edit.Saved, *edit.Documentation:
			return nil
		}
		return errUnsaved
	}

	switch o := out.(type) {
	case *edit.Saved:
		verb := "Updated"
		if o.Created {
			verb = "Created"
		}
		fmt.Fprintf(w, "✓ %s %s (%d transactions)\n", verb, o.URI, len(o.Transactions))
		for _, t := range o.Transactions {
			fmt.Fprintf(w, "    %-20s %s\n", t.Type, t.PHID)
		}
		return nil

	case *edit.Invalid:
		fmt.Fprintln(w, "✗ Invalid submission:")
		for _, fe := range o.Errors {
			fmt.Fprintf(w, "    %s: %s\n", fe.Type, fe.Message)
		}
		return errUnsaved

	case *edit.NoEffect:
		fmt.Fprintf(w, "✗ No effect: %s would not change; pass --continue to save anyway\n", o.URI)
		return errUnsaved

	case *edit.Rejected:
		fmt.Fprintf(w, "✗ Rejected (%s %s): %s\n", o.Reason, o.Code, o.Message)
		return errUnsaved

	case *edit.Documentation:
		fmt.Fprintf(w, "Engine %s, configuration %s\n\n", o.EngineKey, o.Configuration)
		for _, p := range o.Parameters {
			req := ""
			if p.Required {
				req = " (required)"
			}
			fmt.Fprintf(w, "  %-14s %-10s %s%s\n", p.Key, p.Type, p.Label, req)
			if p.Description != "" {
				fmt.Fprintf(w, "  %-14s %-10s %s\n", "", "", p.Description)
			}
		}
		fmt.Fprintf(w, "\nTransaction types: %v\n", o.Types)
		return nil

	default:
		return fmt.Errorf("unknown outcome %T", out)
	}
}

func printTransactions(w io.Writer, object string, txns []*edit.Transaction) error {
	if jsonOutput {
		if txns == nil {
			txns = []*edit.Transaction{}
		}
		return printJSON(w, protocol.TransactionsResult{Transactions: txns})
	}
	fmt.Fprintf(w, "%s: %d transactions\n", object, len(txns))
	for _, t := range txns {
		fmt.Fprintf(w, "  #%-5d %-20s %-24s old=%s new=%s\n",
			t.ID, t.Type, t.AuthorPHID, rawOrDash(t.OldValue), rawOrDash(t.NewValue))
	}
	return nil
}

func rawOrDash(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "-"
	}
	return string(raw)
}
