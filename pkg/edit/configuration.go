package edit

import (
	"fmt"
	"sort"
	"strconv"
)

// DefaultConfigurationKey is the reserved builtin key of the canonical
// default configuration.
const DefaultConfigurationKey = "default"

// FieldCustomization overrides one field inside a configuration. Nil pointers
// leave the field's own setting in place.
type FieldCustomization struct {
	Hidden   *bool `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Locked   *bool `json:"locked,omitempty" yaml:"locked,omitempty"`
	Required *bool `json:"required,omitempty" yaml:"required,omitempty"`

	// Default replaces the field's create-mode value.
	Default any `json:"default,omitempty" yaml:"default,omitempty"`

	// DefaultScript is a Starlark snippet computing the create-mode value.
	// It runs after Default and wins over it.
	DefaultScript string `json:"default_script,omitempty" yaml:"default_script,omitempty"`

	// Rules are extra CEL expressions the value must satisfy.
	Rules []string `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// Configuration is one selectable form variant of an engine. The engine only
// reads configurations.
type Configuration struct {
	// ID is the stored row id, 0 for builtins which were never customized.
	ID int64 `json:"id,omitempty"`

	// BuiltinKey identifies code-defined configurations.
	BuiltinKey string `json:"builtin_key,omitempty"`

	EngineKey string `json:"engine_key"`
	Name      string `json:"name"`
	Preamble  string `json:"preamble,omitempty"`

	// IsDefault marks a default-for-create configuration.
	IsDefault bool `json:"is_default"`

	// IsEdit marks a default-for-edit configuration.
	IsEdit bool `json:"is_edit"`

	IsDisabled bool `json:"is_disabled"`

	CreateOrder int `json:"create_order"`
	EditOrder   int `json:"edit_order"`

	// FieldOrder lists field keys to move to the front, in order.
	FieldOrder []string `json:"field_order,omitempty"`

	// Fields customizes individual fields by key.
	Fields map[string]FieldCustomization `json:"fields,omitempty"`
}

// Identifier is the builtin key, or the decimal id of a user-defined
// configuration.
func (c *Configuration) Identifier() string {
	if c.BuiltinKey != "" {
		return c.BuiltinKey
	}
	return strconv.FormatInt(c.ID, 10)
}

// IsBuiltin reports whether the configuration is code-defined.
func (c *Configuration) IsBuiltin() bool {
	return c.BuiltinKey != ""
}

// Clone returns a deep copy.
func (c *Configuration) Clone() *Configuration {
	out := *c
	out.FieldOrder = append([]string(nil), c.FieldOrder...)
	if c.Fields != nil {
		out.Fields = make(map[string]FieldCustomization, len(c.Fields))
		for k, v := range c.Fields {
			v.Rules = append([]string(nil), v.Rules...)
			out.Fields[k] = v
		}
	}
	return &out
}

// validateBuiltins checks a builtin configuration set and returns normalized
// copies. When no builtin carries the default key the first one is promoted,
// unless it already names a different builtin key.
func validateBuiltins(engineKey string, builtins []*Configuration) ([]*Configuration, error) {
	if len(builtins) == 0 {
		return nil, NewConfigurationError("engine defines no builtin configurations").
			WithEngine(engineKey).WithCode(ErrCodeMissingDefault)
	}

	out := make([]*Configuration, len(builtins))
	hasDefault := false
	for i, b := range builtins {
		out[i] = b.Clone()
		out[i].EngineKey = engineKey
		out[i].ID = 0
		if b.BuiltinKey == DefaultConfigurationKey {
			hasDefault = true
		}
	}

	if !hasDefault {
		first := out[0]
		if first.BuiltinKey != "" {
			return nil, NewConfigurationError(fmt.Sprintf(
				"no builtin configuration uses the %q key and the first one already has key %q",
				DefaultConfigurationKey, first.BuiltinKey)).
				WithEngine(engineKey).WithCode(ErrCodeAmbiguousDefault)
		}
		first.BuiltinKey = DefaultConfigurationKey
		first.IsDefault = true
		first.IsEdit = true
		if first.Name == "" {
			first.Name = "Default"
		}
	}

	seen := make(map[string]bool, len(out))
	for i, c := range out {
		if c.BuiltinKey == "" {
			return nil, NewConfigurationError(fmt.Sprintf("builtin configuration %d has no key", i)).
				WithEngine(engineKey)
		}
		if seen[c.BuiltinKey] {
			return nil, NewConfigurationError(fmt.Sprintf("duplicate builtin configuration key %q", c.BuiltinKey)).
				WithEngine(engineKey).WithCode(ErrCodeDuplicateKey)
		}
		seen[c.BuiltinKey] = true
	}
	return out, nil
}

// mergeConfigurations overlays stored rows onto builtins. A stored row with a
// builtin key replaces that builtin; other rows are appended.
func mergeConfigurations(builtins, stored []*Configuration) []*Configuration {
	out := make([]*Configuration, 0, len(builtins)+len(stored))
	index := make(map[string]int, len(builtins))
	for _, b := range builtins {
		index[b.BuiltinKey] = len(out)
		out = append(out, b.Clone())
	}
	for _, s := range stored {
		if i, ok := index[s.BuiltinKey]; ok && s.BuiltinKey != "" {
			out[i] = s.Clone()
			continue
		}
		out = append(out, s.Clone())
	}
	return out
}

func findConfiguration(list []*Configuration, identifier string) *Configuration {
	for _, c := range list {
		if c.Identifier() == identifier {
			return c
		}
	}
	return nil
}

// pickConfiguration returns the enabled configuration accepted by match with
// the lowest order, breaking ties by id and then list position.
func pickConfiguration(list []*Configuration, match func(*Configuration) bool, order func(*Configuration) int) *Configuration {
	candidates := make([]*Configuration, 0, len(list))
	for _, c := range list {
		if !c.IsDisabled && match(c) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		oi, oj := order(candidates[i]), order(candidates[j])
		if oi != oj {
			return oi < oj
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0]
}

func defaultCreateConfiguration(list []*Configuration) *Configuration {
	return pickConfiguration(list,
		func(c *Configuration) bool { return c.IsDefault },
		func(c *Configuration) int { return c.CreateOrder })
}

func defaultEditConfiguration(list []*Configuration) *Configuration {
	return pickConfiguration(list,
		func(c *Configuration) bool { return c.IsEdit },
		func(c *Configuration) int { return c.EditOrder })
}
