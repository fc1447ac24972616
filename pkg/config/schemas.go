package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	// Register built-in schemas
	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers all built-in schemas.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	for name, schema := range map[string]string{
		"forms":     builtinFormsSchema,
		"rpc_batch": builtinRPCBatchSchema,
	} {
		if err := sr.RegisterSchema(name, schema); err != nil {
			panic(err)
		}
	}
}

// Context returns the CUE context schemas are compiled in. Values unified
// with a schema must come from this context.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	// Convert data to CUE value
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Built-in schema definitions. Each schema is a closed definition unified
// with the decoded document.

const builtinFormsSchema = `
#Field: {
	hidden?:         bool
	locked?:         bool
	required?:       bool
	default?:        _
	default_script?: string
	rules?: [...string]
}

#Form: {
	key:           string & =~"^[a-z][a-z0-9_-]*$"
	name:          string & !=""
	preamble?:     string
	default?:      bool
	edit?:         bool
	disabled?:     bool
	create_order?: int & >=0
	edit_order?:   int & >=0
	field_order?: [...string]
	fields?: {[string]: #Field}
}

#Engine: {
	create_policy?: string
	forms?: [...#Form]
}

engines: {[=~"^[a-z][a-z0-9_.-]*$"]: #Engine}
`

const builtinRPCBatchSchema = `
#Transaction: {
	type:   string & !=""
	value?: _
}

#Request: {
	objectIdentifier?: string
	transactions: [...#Transaction]
}

engine: string & !=""
requests: [...#Request]
`
