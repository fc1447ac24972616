package config

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openfroyo/editengine/pkg/edit"
)

// StarlarkEvaluator runs field default scripts with a time limit.
type StarlarkEvaluator struct {
	timeout time.Duration
}

var _ edit.ScriptEvaluator = (*StarlarkEvaluator)(nil)

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// EvaluateDefault runs a configured default script. The script sees the
// input map as globals, with the field's current value renamed to current,
// and assigns the new value to value. A script that never assigns value
// leaves the current value in place.
//
//	value = "high" if "oncall" in roles else current
func (se *StarlarkEvaluator) EvaluateDefault(ctx context.Context, script string, input map[string]any) (any, error) {
	predeclared := starlark.StringDict{"struct": starlarkstruct.Default}
	for k, v := range input {
		if k == "value" {
			k = "current"
		}
		sv, err := toStarlarkValue(v)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", k, err)
		}
		predeclared[k] = sv
	}

	field, _ := input["field"].(string)
	if field == "" {
		field = "default"
	}

	globals, err := se.exec(ctx, field, script, predeclared)
	if err != nil {
		return nil, err
	}
	result, ok := globals["value"]
	if !ok {
		return input["value"], nil
	}
	out, err := fromStarlarkValue(result)
	if err != nil {
		return nil, fmt.Errorf("failed to convert value: %w", err)
	}
	return out, nil
}

// exec runs script on its own thread, cancelled when ctx ends or the
// timeout passes.
func (se *StarlarkEvaluator) exec(ctx context.Context, field, script string, predeclared starlark.StringDict) (starlark.StringDict, error) {
	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name:  "default:" + field,
		Print: func(_ *starlark.Thread, _ string) {},
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-evalCtx.Done():
			if ctx.Err() != nil {
				thread.Cancel("edit cancelled")
				return
			}
			thread.Cancel(fmt.Sprintf("execution timeout after %v", se.timeout))
		case <-done:
		}
	}()

	globals, err := starlark.ExecFile(thread, field+".star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}
	return globals, nil
}

// toStarlarkValue converts a field value or script input to Starlark.
func toStarlarkValue(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			list[i] = starlark.String(item)
		}
		return starlark.NewList(list), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts the script's value back into the JSON-like
// shape field kinds accept.
func fromStarlarkValue(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		return fromIterable(val, val.Len())
	case starlark.Tuple:
		return fromIterable(val, val.Len())
	case *starlark.Set:
		return fromIterable(val, val.Len())
	case *starlark.Dict:
		dict := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]any)
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				return nil, err
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

func fromIterable(it starlark.Iterable, n int) ([]any, error) {
	out := make([]any, 0, n)
	iter := it.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		item, err := fromStarlarkValue(x)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
