package edit

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// ValueKind is the strategy a Field uses to parse, compare and validate its
// values. One implementation exists per value shape.
type ValueKind interface {
	// Name is the documented type name, e.g. "string" or "list<string>".
	Name() string

	// Zero is the empty value of this kind.
	Zero() any

	// FromForm parses form-encoded values.
	FromForm(values []string) (any, error)

	// FromParameter parses HTTP parameter values.
	FromParameter(values []string) (any, error)

	// FromJSON converts a decoded JSON value.
	FromJSON(raw any) (any, error)

	// Equal reports whether two values of this kind are the same.
	Equal(a, b any) bool

	// IsEmpty reports whether v counts as absent for required checks.
	IsEmpty(v any) bool

	// Validate checks a value before it is applied.
	Validate(v any) error
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// TextKind holds a single string.
type TextKind struct {
	// MaxLength bounds the value in runes. Zero means unbounded.
	MaxLength int
}

func (TextKind) Name() string { return "string" }
func (TextKind) Zero() any    { return "" }

func (TextKind) FromForm(values []string) (any, error) {
	return firstValue(values), nil
}

func (k TextKind) FromParameter(values []string) (any, error) {
	return k.FromForm(values)
}

func (TextKind) FromJSON(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return nil, fmt.Errorf("expected a string, got %T", raw)
	}
}

func (TextKind) Equal(a, b any) bool {
	as, _ := a.(string)
	bs, _ := b.(string)
	return as == bs
}

func (TextKind) IsEmpty(v any) bool {
	s, _ := v.(string)
	return strings.TrimSpace(s) == ""
}

func (k TextKind) Validate(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("expected a string, got %T", v)
	}
	if k.MaxLength > 0 && len([]rune(s)) > k.MaxLength {
		return fmt.Errorf("must be at most %d characters", k.MaxLength)
	}
	return nil
}

// BoolKind holds a boolean.
type BoolKind struct{}

func (BoolKind) Name() string { return "bool" }
func (BoolKind) Zero() any    { return false }

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "no", "off":
		return false, nil
	case "1", "true", "yes", "on":
		return true, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func (BoolKind) FromForm(values []string) (any, error) {
	return parseBool(firstValue(values))
}

func (k BoolKind) FromParameter(values []string) (any, error) {
	return k.FromForm(values)
}

func (BoolKind) FromJSON(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		return parseBool(v)
	default:
		return nil, fmt.Errorf("expected a boolean, got %T", raw)
	}
}

func (BoolKind) Equal(a, b any) bool {
	ab, _ := a.(bool)
	bb, _ := b.(bool)
	return ab == bb
}

func (BoolKind) IsEmpty(any) bool { return false }

func (BoolKind) Validate(v any) error {
	if _, ok := v.(bool); !ok {
		return fmt.Errorf("expected a boolean, got %T", v)
	}
	return nil
}

// IntKind holds an int64.
type IntKind struct {
	Min, Max *int64
}

func (IntKind) Name() string { return "int" }
func (IntKind) Zero() any    { return int64(0) }

func (IntKind) FromForm(values []string) (any, error) {
	s := strings.TrimSpace(firstValue(values))
	if s == "" {
		return int64(0), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func (k IntKind) FromParameter(values []string) (any, error) {
	return k.FromForm(values)
}

func (IntKind) FromJSON(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return int64(0), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		// 2^63 is exactly representable; anything at or above it overflows.
		if v != math.Trunc(v) || math.IsInf(v, 0) || v < math.MinInt64 || v >= math.MaxInt64 {
			return nil, fmt.Errorf("expected an integer, got %v", v)
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("expected an integer, got %s", v)
		}
		return n, nil
	case string:
		return IntKind{}.FromForm([]string{v})
	default:
		return nil, fmt.Errorf("expected an integer, got %T", raw)
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func (IntKind) Equal(a, b any) bool { return toInt64(a) == toInt64(b) }

func (IntKind) IsEmpty(v any) bool { return toInt64(v) == 0 }

func (k IntKind) Validate(v any) error {
	if _, ok := v.(int64); !ok {
		return fmt.Errorf("expected an integer, got %T", v)
	}
	n := toInt64(v)
	if k.Min != nil && n < *k.Min {
		return fmt.Errorf("must be at least %d", *k.Min)
	}
	if k.Max != nil && n > *k.Max {
		return fmt.Errorf("must be at most %d", *k.Max)
	}
	return nil
}

// SelectKind holds one string drawn from a fixed option list.
type SelectKind struct {
	Options []string
}

func (SelectKind) Name() string { return "select" }
func (SelectKind) Zero() any    { return "" }

func (SelectKind) FromForm(values []string) (any, error) {
	return strings.TrimSpace(firstValue(values)), nil
}

func (k SelectKind) FromParameter(values []string) (any, error) {
	return k.FromForm(values)
}

func (SelectKind) FromJSON(raw any) (any, error) {
	return TextKind{}.FromJSON(raw)
}

func (SelectKind) Equal(a, b any) bool { return TextKind{}.Equal(a, b) }

func (SelectKind) IsEmpty(v any) bool { return TextKind{}.IsEmpty(v) }

func (k SelectKind) Validate(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("expected a string, got %T", v)
	}
	if s == "" {
		return nil
	}
	for _, opt := range k.Options {
		if opt == s {
			return nil
		}
	}
	return fmt.Errorf("%q is not one of: %s", s, strings.Join(k.Options, ", "))
}

// ListKind holds an ordered list of strings.
type ListKind struct{}

func (ListKind) Name() string { return "list<string>" }
func (ListKind) Zero() any    { return []string{} }

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (ListKind) FromForm(values []string) (any, error) {
	return cleanList(values), nil
}

// FromParameter additionally splits comma-separated values.
func (ListKind) FromParameter(values []string) (any, error) {
	var split []string
	for _, v := range values {
		split = append(split, strings.Split(v, ",")...)
	}
	return cleanList(split), nil
}

func (ListKind) FromJSON(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return cleanList(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected a list of strings, found %T", item)
			}
			out = append(out, s)
		}
		return cleanList(out), nil
	case string:
		return ListKind{}.FromParameter([]string{v})
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", raw)
	}
}

func asList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (ListKind) Equal(a, b any) bool {
	al, bl := asList(a), asList(b)
	if len(al) == 0 && len(bl) == 0 {
		return true
	}
	return reflect.DeepEqual(al, bl)
}

func (ListKind) IsEmpty(v any) bool { return len(asList(v)) == 0 }

func (ListKind) Validate(v any) error {
	if _, ok := v.([]string); !ok {
		return fmt.Errorf("expected a list of strings, got %T", v)
	}
	return nil
}
