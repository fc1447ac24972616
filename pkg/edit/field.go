package edit

import (
	"fmt"
	"net/url"
)

// CommentFieldKey is the key of the comment field every engine appends.
const CommentFieldKey = "comment"

// Field is a typed, named unit bridging one attribute of an object and the
// input surfaces. Fields are built fresh for every request.
type Field struct {
	key          string
	label        string
	description  string
	txnType      string
	parameterKey string
	kind         ValueKind

	get func(Object) any
	set func(Object, any)

	required      bool
	copyable      bool
	createOnly    bool
	commentAction bool
	hidden        bool
	locked        bool
	noForm        bool
	noParameters  bool
	noRPC         bool
	omitEmpty     bool

	rules    []string
	examples []string

	value        any
	source       ValueSource
	defaultValue any

	object        Object
	configuration *Configuration
}

// NewField creates a field of the given kind. The transaction type and
// parameter key default to the field key.
func NewField(key, label string, kind ValueKind) *Field {
	return &Field{
		key:          key,
		label:        label,
		txnType:      key,
		parameterKey: key,
		kind:         kind,
		value:        kind.Zero(),
		source:       SourceDefault,
		defaultValue: kind.Zero(),
	}
}

// NewTextField creates a single string field.
func NewTextField(key, label string) *Field {
	return NewField(key, label, TextKind{})
}

// NewBoolField creates a boolean field.
func NewBoolField(key, label string) *Field {
	return NewField(key, label, BoolKind{})
}

// NewIntField creates an integer field.
func NewIntField(key, label string) *Field {
	return NewField(key, label, IntKind{})
}

// NewSelectField creates a field constrained to options.
func NewSelectField(key, label string, options ...string) *Field {
	return NewField(key, label, SelectKind{Options: options})
}

// NewListField creates a string list field.
func NewListField(key, label string) *Field {
	return NewField(key, label, ListKind{})
}

func newCommentField() *Field {
	f := NewTextField(CommentFieldKey, "Comment").
		WithTransaction(TypeComment).
		WithDescription("Add a comment.")
	f.omitEmpty = true
	return f
}

// WithDescription sets the documented description.
func (f *Field) WithDescription(description string) *Field {
	f.description = description
	return f
}

// WithTransaction sets the transaction type. An empty type makes the field
// display-only.
func (f *Field) WithTransaction(txnType string) *Field {
	f.txnType = txnType
	return f
}

// WithParameterKey sets the HTTP parameter name.
func (f *Field) WithParameterKey(key string) *Field {
	f.parameterKey = key
	return f
}

// Bind attaches accessors for the object attribute this field edits.
func (f *Field) Bind(get func(Object) any, set func(Object, any)) *Field {
	f.get = get
	f.set = set
	return f
}

// Required marks the field as mandatory.
func (f *Field) Required() *Field {
	f.required = true
	return f
}

// Copyable allows the field to be copied from a template object.
func (f *Field) Copyable() *Field {
	f.copyable = true
	return f
}

// CreateOnly drops the field when editing an existing object.
func (f *Field) CreateOnly() *Field {
	f.createOnly = true
	return f
}

// CommentAction exposes the field as a comment action.
func (f *Field) CommentAction() *Field {
	f.commentAction = true
	return f
}

// Hidden removes the field from forms.
func (f *Field) Hidden() *Field {
	f.hidden = true
	return f
}

// Locked makes the field read-only on forms and parameters.
func (f *Field) Locked() *Field {
	f.locked = true
	return f
}

// WithoutForm stops the field from reading form input.
func (f *Field) WithoutForm() *Field {
	f.noForm = true
	return f
}

// WithoutParameters stops the field from reading HTTP parameters.
func (f *Field) WithoutParameters() *Field {
	f.noParameters = true
	return f
}

// WithoutRPC hides the field's transaction type from RPC batches.
func (f *Field) WithoutRPC() *Field {
	f.noRPC = true
	return f
}

// WithRules adds CEL expressions over `value` which must all hold.
func (f *Field) WithRules(rules ...string) *Field {
	f.rules = append(f.rules, rules...)
	return f
}

// WithExamples sets documented parameter examples.
func (f *Field) WithExamples(examples ...string) *Field {
	f.examples = append(f.examples, examples...)
	return f
}

func (f *Field) Key() string                   { return f.key }
func (f *Field) Label() string                 { return f.label }
func (f *Field) Description() string           { return f.description }
func (f *Field) TransactionType() string       { return f.txnType }
func (f *Field) ParameterKey() string          { return f.parameterKey }
func (f *Field) Kind() ValueKind               { return f.kind }
func (f *Field) Rules() []string               { return f.rules }
func (f *Field) IsRequired() bool              { return f.required }
func (f *Field) IsCopyable() bool              { return f.copyable }
func (f *Field) IsCreateOnly() bool            { return f.createOnly }
func (f *Field) IsCommentAction() bool         { return f.commentAction }
func (f *Field) IsHidden() bool                { return f.hidden }
func (f *Field) IsLocked() bool                { return f.locked }
func (f *Field) Value() any                    { return f.value }
func (f *Field) Source() ValueSource           { return f.source }
func (f *Field) Object() Object                { return f.object }
func (f *Field) Configuration() *Configuration { return f.configuration }

// AcceptsForm reports whether the field reads form input.
func (f *Field) AcceptsForm() bool {
	return !f.noForm && !f.hidden && !f.locked
}

// AcceptsParameters reports whether the field reads HTTP parameters.
func (f *Field) AcceptsParameters() bool {
	return !f.noParameters && !f.locked
}

// AcceptsRPC reports whether RPC batches may use the field's type.
func (f *Field) AcceptsRPC() bool {
	return !f.noRPC && f.txnType != ""
}

// SetValue replaces the current value.
func (f *Field) SetValue(value any, source ValueSource) {
	f.value = value
	f.source = source
}

func (f *Field) bind(obj Object, cfg *Configuration) {
	f.object = obj
	f.configuration = cfg
}

func (f *Field) readValueFromObject(obj Object) {
	if f.get == nil {
		return
	}
	if v := f.get(obj); v != nil {
		f.value = v
		f.source = SourceDefault
	}
}

// currentObjectValue is the attribute value stored on obj right now.
func (f *Field) currentObjectValue(obj Object) any {
	if f.get == nil {
		return nil
	}
	return f.get(obj)
}

func (f *Field) applyTo(obj Object, value any) {
	if f.set != nil {
		f.set(obj, value)
	}
}

func (f *Field) snapshotDefault() {
	f.defaultValue = f.value
}

// ReadFromForm reads the field's value from form-encoded input. Keys absent
// from the submission leave the current value in place.
func (f *Field) ReadFromForm(form url.Values) error {
	if !f.AcceptsForm() {
		return nil
	}
	values, ok := form[f.key]
	if !ok {
		return nil
	}
	v, err := f.kind.FromForm(values)
	if err != nil {
		return fmt.Errorf("%s: %w", f.label, err)
	}
	f.SetValue(v, SourceSubmit)
	return nil
}

// ReadFromParameters reads the field's value from the HTTP parameter
// namespace, addressed by parameter key.
func (f *Field) ReadFromParameters(params url.Values) error {
	if !f.AcceptsParameters() {
		return nil
	}
	values, ok := params[f.parameterKey]
	if !ok {
		return nil
	}
	v, err := f.kind.FromParameter(values)
	if err != nil {
		return fmt.Errorf("%s: %w", f.label, err)
	}
	f.SetValue(v, SourceSubmit)
	return nil
}

// ReadFromCommentAction reads a structured comment action. An initial value
// carried by the action replaces the transaction default first.
func (f *Field) ReadFromCommentAction(action CommentAction) error {
	if action.InitialValue != nil {
		initial, err := f.kind.FromJSON(action.InitialValue)
		if err != nil {
			return fmt.Errorf("%s: initial value: %w", f.label, err)
		}
		f.defaultValue = initial
		f.value = initial
	}
	v, err := f.kind.FromJSON(action.Value)
	if err != nil {
		return fmt.Errorf("%s: %w", f.label, err)
	}
	f.SetValue(v, SourceComment)
	return nil
}

// ReadFromRPC reads a decoded JSON value from an RPC transaction.
func (f *Field) ReadFromRPC(raw any) error {
	v, err := f.kind.FromJSON(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", f.label, err)
	}
	f.SetValue(v, SourceRPC)
	return nil
}

// DefaultValue is the value the field held before any submitted input.
func (f *Field) DefaultValue() any {
	return f.defaultValue
}

// MutationRecords returns the records carrying the field's current value,
// stamped onto template. Display-only fields and empty comments produce none.
func (f *Field) MutationRecords(template MutationRecord) []MutationRecord {
	if f.txnType == "" {
		return nil
	}
	if f.omitEmpty && f.kind.IsEmpty(f.value) {
		return nil
	}
	rec := template
	rec.Type = f.txnType
	rec.FieldKey = f.key
	rec.Value = f.value
	rec.IsDefault = f.kind.Equal(f.value, f.defaultValue)
	return []MutationRecord{rec}
}

// ParameterDoc describes one accepted HTTP parameter.
type ParameterDoc struct {
	Key             string   `json:"key"`
	Label           string   `json:"label"`
	Type            string   `json:"type"`
	TransactionType string   `json:"transaction_type,omitempty"`
	Description     string   `json:"description,omitempty"`
	Required        bool     `json:"required,omitempty"`
	Examples        []string `json:"examples,omitempty"`
}

// ParameterDoc documents the field's HTTP parameter.
func (f *Field) ParameterDoc() ParameterDoc {
	return ParameterDoc{
		Key:             f.parameterKey,
		Label:           f.label,
		Type:            f.kind.Name(),
		TransactionType: f.txnType,
		Description:     f.description,
		Required:        f.required,
		Examples:        f.examples,
	}
}
