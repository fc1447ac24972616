package edit

import "fmt"

// FieldSet is the ordered set of fields built for one request.
type FieldSet struct {
	fields []*Field
	byKey  map[string]*Field
}

// NewFieldSet builds a set from fields. Duplicate keys are a configuration
// error.
func NewFieldSet(fields ...*Field) (*FieldSet, error) {
	fs := &FieldSet{byKey: make(map[string]*Field, len(fields))}
	for _, f := range fields {
		if err := fs.Add(f); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

// Add appends a field.
func (fs *FieldSet) Add(f *Field) error {
	if _, exists := fs.byKey[f.key]; exists {
		return NewConfigurationError(fmt.Sprintf("duplicate field key %q", f.key)).
			WithCode(ErrCodeDuplicateKey)
	}
	fs.fields = append(fs.fields, f)
	fs.byKey[f.key] = f
	return nil
}

// Fields returns the fields in order.
func (fs *FieldSet) Fields() []*Field {
	return fs.fields
}

// Len returns the number of fields.
func (fs *FieldSet) Len() int {
	return len(fs.fields)
}

// Get returns the field with key.
func (fs *FieldSet) Get(key string) (*Field, bool) {
	f, ok := fs.byKey[key]
	return f, ok
}

// ByTransactionType returns the first field publishing txnType.
func (fs *FieldSet) ByTransactionType(txnType string) (*Field, bool) {
	for _, f := range fs.fields {
		if f.txnType != "" && f.txnType == txnType {
			return f, true
		}
	}
	return nil, false
}

// ByParameterKey returns the field addressed by an HTTP parameter name.
func (fs *FieldSet) ByParameterKey(key string) (*Field, bool) {
	for _, f := range fs.fields {
		if f.parameterKey == key {
			return f, true
		}
	}
	return nil, false
}

// TransactionTypes lists the types published to RPC callers, in field order.
func (fs *FieldSet) TransactionTypes() []string {
	var types []string
	for _, f := range fs.fields {
		if f.AcceptsRPC() {
			types = append(types, f.txnType)
		}
	}
	return types
}

// reorder moves the keys in order to the front, keeping the relative order of
// the remaining fields.
func (fs *FieldSet) reorder(order []string) {
	if len(order) == 0 {
		return
	}
	placed := make(map[string]bool, len(order))
	out := make([]*Field, 0, len(fs.fields))
	for _, key := range order {
		if f, ok := fs.byKey[key]; ok && !placed[key] {
			out = append(out, f)
			placed[key] = true
		}
	}
	for _, f := range fs.fields {
		if !placed[f.key] {
			out = append(out, f)
		}
	}
	fs.fields = out
}

func (fs *FieldSet) remove(key string) {
	if _, ok := fs.byKey[key]; !ok {
		return
	}
	delete(fs.byKey, key)
	out := fs.fields[:0]
	for _, f := range fs.fields {
		if f.key != key {
			out = append(out, f)
		}
	}
	fs.fields = out
}
