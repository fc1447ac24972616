package commands

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/editengine/pkg/edit"
	"github.com/openfroyo/editengine/pkg/tasks"
)

func addEngineFlag(cmd *cobra.Command, engineKey *string) {
	cmd.Flags().StringVarP(engineKey, "engine", "e", tasks.EngineKey, "engine key")
}

func splitAssignment(s string) (string, string, error) {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", s)
	}
	return key, value, nil
}

// parseValue decodes value as JSON when it is a number, boolean, list,
// object or quoted string. Anything else is taken as a plain string.
func parseValue(value string) any {
	var v any
	if err := json.Unmarshal([]byte(value), &v); err == nil && v != nil {
		return v
	}
	return value
}

// parseTransactions turns type=value assignments into transactions, in
// order.
func parseTransactions(assignments []string) ([]edit.RPCTransaction, error) {
	txns := make([]edit.RPCTransaction, 0, len(assignments))
	for _, a := range assignments {
		key, value, err := splitAssignment(a)
		if err != nil {
			return nil, err
		}
		txns = append(txns, edit.RPCTransaction{Type: key, Value: parseValue(value)})
	}
	return txns, nil
}

// parseActions turns type=value assignments into comment actions.
func parseActions(assignments []string) ([]edit.CommentAction, error) {
	txns, err := parseTransactions(assignments)
	if err != nil {
		return nil, err
	}
	actions := make([]edit.CommentAction, 0, len(txns))
	for _, t := range txns {
		actions = append(actions, edit.CommentAction{Type: t.Type, Value: t.Value})
	}
	return actions, nil
}

// parseParams turns key=value assignments into HTTP-style parameters.
// Repeated keys accumulate.
func parseParams(assignments []string) (url.Values, error) {
	params := url.Values{}
	for _, a := range assignments {
		key, value, err := splitAssignment(a)
		if err != nil {
			return nil, err
		}
		params.Add(key, value)
	}
	return params, nil
}
