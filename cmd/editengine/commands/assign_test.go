package commands

import (
	"reflect"
	"testing"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"high", "high"},
		{"5", float64(5)},
		{"true", true},
		{`["web","api"]`, []any{"web", "api"}},
		{`"123"`, "123"},
		{"", ""},
		{"null", "null"},
		{"Fix login", "Fix login"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseValue(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseValue(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseTransactions(t *testing.T) {
	txns, err := parseTransactions([]string{"task:title=Fix login", "task:points=3", "task:description=a=b"})
	if err != nil {
		t.Fatalf("parseTransactions failed: %v", err)
	}
	if len(txns) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txns))
	}
	if txns[0].Type != "task:title" || txns[0].Value != "Fix login" {
		t.Errorf("unexpected first transaction %+v", txns[0])
	}
	if txns[1].Value != float64(3) {
		t.Errorf("expected numeric points, got %#v", txns[1].Value)
	}
	if txns[2].Value != "a=b" {
		t.Errorf("expected value split on the first '=', got %#v", txns[2].Value)
	}

	for _, bad := range []string{"no-equals", "=value", "  =x"} {
		if _, err := parseTransactions([]string{bad}); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestParseActions(t *testing.T) {
	actions, err := parseActions([]string{"task:status=resolved"})
	if err != nil {
		t.Fatalf("parseActions failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Type != "task:status" || actions[0].Value != "resolved" {
		t.Errorf("unexpected actions %+v", actions)
	}
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"title=Broken", "tags=web", "tags=docs"})
	if err != nil {
		t.Fatalf("parseParams failed: %v", err)
	}
	if params.Get("title") != "Broken" {
		t.Errorf("unexpected title %q", params.Get("title"))
	}
	if got := params["tags"]; !reflect.DeepEqual(got, []string{"web", "docs"}) {
		t.Errorf("expected repeated tags to accumulate, got %v", got)
	}
}
