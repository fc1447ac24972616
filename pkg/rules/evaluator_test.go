package rules

import (
	"strings"
	"testing"
)

func TestCheck(t *testing.T) {
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}

	tests := []struct {
		name  string
		rule  string
		value any
		want  bool
	}{
		{name: "length ok", rule: "size(value) <= 5", value: "short", want: true},
		{name: "length too long", rule: "size(value) <= 5", value: "too long", want: false},
		{name: "int range", rule: "value >= 0 && value <= 100", value: int64(42), want: true},
		{name: "int out of range", rule: "value >= 0 && value <= 100", value: int64(101), want: false},
		{name: "membership", rule: "value in ['low', 'high']", value: "low", want: true},
		{name: "list size", rule: "size(value) < 3", value: []string{"a", "b"}, want: true},
		{name: "bool", rule: "value == true", value: true, want: true},
		{name: "nil is empty string", rule: "value == ''", value: nil, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Check(tt.rule, tt.value)
			if err != nil {
				t.Fatalf("Check failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Check(%q, %v) = %v, want %v", tt.rule, tt.value, got, tt.want)
			}
		})
	}
}

func TestCompileRejectsBadRules(t *testing.T) {
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}

	tests := []struct {
		rule    string
		wantErr string
	}{
		{rule: "", wantErr: "required"},
		{rule: "value +", wantErr: "Syntax error"},
		{rule: "'text'", wantErr: "must evaluate to bool"},
		{rule: "other == 1", wantErr: "undeclared reference"},
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			_, err := e.Compile(tt.rule)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCheckRuntimeTypeError(t *testing.T) {
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}
	// Comparing a string to an int has no overload at runtime.
	if _, err := e.Check("value > 3", "abc"); err == nil {
		t.Fatal("expected evaluation error")
	}
}

func TestCompileCaches(t *testing.T) {
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}
	first, err := e.Compile("value != ''")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	second, err := e.Compile("  value != ''  ")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if first != second {
		t.Error("expected cached program to be reused")
	}
}

func TestValidate(t *testing.T) {
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}
	if err := e.Validate("value != ''", "size(value) > 1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = e.Validate("value != ''", "value +", "'x'")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `rule "value +"`) || !strings.Contains(err.Error(), `rule "'x'"`) {
		t.Errorf("expected both bad rules to be reported, got %v", err)
	}
}
