// Package rules evaluates field validation rules written in CEL.
//
// A rule is a boolean expression over the variable value, which holds the
// field's normalized value:
//
//	size(value) <= 80
//	value in ['low', 'normal', 'high'] || value == ''
//	value >= 0 && value <= 100
package rules

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/openfroyo/editengine/pkg/edit"
)

// Evaluator compiles and caches CEL rule programs. It is safe for concurrent
// use.
type Evaluator struct {
	env   *cel.Env
	cache sync.Map
}

var _ edit.RuleEvaluator = (*Evaluator)(nil)

// NewEvaluator creates an evaluator whose expressions see a single dynamic
// variable named value.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(cel.Variable("value", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("failed to create rule environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile checks that rule is a boolean expression and caches its program.
func (e *Evaluator) Compile(rule string) (cel.Program, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return nil, errors.New("rule expression required")
	}
	if cached, ok := e.cache.Load(rule); ok {
		return cached.(cel.Program), nil
	}
	ast, issues := e.env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	// Dynamic inputs can leave the output type dynamic; anything else must be
	// a boolean.
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("rule must evaluate to bool, got %s", out)
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}
	e.cache.Store(rule, program)
	return program, nil
}

// Check evaluates rule against value.
func (e *Evaluator) Check(rule string, value any) (bool, error) {
	program, err := e.Compile(rule)
	if err != nil {
		return false, err
	}
	if value == nil {
		value = ""
	}
	out, _, err := program.Eval(map[string]any{"value": value})
	if err != nil {
		return false, err
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("rule returned %T, not bool", out.Value())
	}
	return ok, nil
}

// Validate compiles every rule and joins the failures.
func (e *Evaluator) Validate(rules ...string) error {
	var errs []error
	for _, r := range rules {
		if _, err := e.Compile(r); err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", r, err))
		}
	}
	return errors.Join(errs...)
}
