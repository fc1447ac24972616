package config

import (
	"time"

	"github.com/openfroyo/editengine/pkg/edit"
)

// FormsFile is the document read from forms files. It customizes the
// configurations of registered engines without code changes.
//
//	engines: {
//		"tasks.task": {
//			create_policy: "role:triage"
//			forms: [{
//				key:     "security"
//				name:    "Report Security Issue"
//				default: true
//				fields: priority: {default: "high", locked: true}
//			}]
//		}
//	}
type FormsFile struct {
	// Engines maps engine keys to their form settings.
	Engines map[string]EngineForms `json:"engines" yaml:"engines" validate:"required,dive,keys,required,endkeys"`
}

// EngineForms holds the form settings of one engine.
type EngineForms struct {
	// CreatePolicy overrides who may create objects of this engine.
	CreatePolicy string `json:"create_policy,omitempty" yaml:"create_policy,omitempty"`

	// Forms are configurations added to the engine's built-in ones.
	Forms []FormConfig `json:"forms,omitempty" yaml:"forms,omitempty" validate:"dive"`
}

// FormConfig describes one configuration.
type FormConfig struct {
	// Key is the builtin key. It must be unique within the engine, and a
	// key matching a code-defined configuration is rejected.
	Key string `json:"key" yaml:"key" validate:"required,max=64"`

	Name     string `json:"name" yaml:"name" validate:"required,max=255"`
	Preamble string `json:"preamble,omitempty" yaml:"preamble,omitempty"`

	// Default offers the form for create.
	Default bool `json:"default,omitempty" yaml:"default,omitempty"`

	// Edit offers the form for editing existing objects.
	Edit bool `json:"edit,omitempty" yaml:"edit,omitempty"`

	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	CreateOrder int `json:"create_order,omitempty" yaml:"create_order,omitempty" validate:"gte=0"`
	EditOrder   int `json:"edit_order,omitempty" yaml:"edit_order,omitempty" validate:"gte=0"`

	FieldOrder []string `json:"field_order,omitempty" yaml:"field_order,omitempty" validate:"dive,required"`

	Fields map[string]edit.FieldCustomization `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// ToConfiguration converts the form into an engine configuration.
func (f *FormConfig) ToConfiguration(engineKey string) *edit.Configuration {
	return &edit.Configuration{
		BuiltinKey:  f.Key,
		EngineKey:   engineKey,
		Name:        f.Name,
		Preamble:    f.Preamble,
		IsDefault:   f.Default,
		IsEdit:      f.Edit,
		IsDisabled:  f.Disabled,
		CreateOrder: f.CreateOrder,
		EditOrder:   f.EditOrder,
		FieldOrder:  append([]string(nil), f.FieldOrder...),
		Fields:      f.Fields,
	}
}

// ParsedForms is the result of parsing one or more forms files.
type ParsedForms struct {
	// Forms is the unified document.
	Forms FormsFile `json:"forms"`

	// SourceFiles are the files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the files were parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists any validation errors.
	Errors []ValidationError `json:"errors,omitempty"`
}

// HasErrors reports whether parsing produced any error-severity entries.
func (pf *ParsedForms) HasErrors() bool {
	for _, e := range pf.Errors {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the document path to the error (e.g., "engines.tasks.forms[0].name").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

func (ve ValidationError) String() string {
	loc := ve.File
	if ve.Line > 0 {
		loc = fmtLocation(ve.File, ve.Line, ve.Column)
	}
	if ve.Path != "" {
		if loc != "" {
			loc += " "
		}
		loc += ve.Path
	}
	if loc == "" {
		return ve.Message
	}
	return loc + ": " + ve.Message
}

