package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/editengine/pkg/edit"
)

// RuleValidator checks that rule expressions compile.
type RuleValidator interface {
	Validate(rules ...string) error
}

// FormsLoader parses and validates forms files written in CUE, YAML or JSON.
type FormsLoader struct {
	schemas   *SchemaRegistry
	validator *validator.Validate
	rules     RuleValidator
}

// NewFormsLoader creates a new forms loader. rules may be nil, in which case
// field rules are only checked when an edit runs.
func NewFormsLoader(rules RuleValidator) *FormsLoader {
	return &FormsLoader{
		schemas:   NewSchemaRegistry(),
		validator: validator.New(),
		rules:     rules,
	}
}

// Schemas returns the schema registry.
func (fl *FormsLoader) Schemas() *SchemaRegistry {
	return fl.schemas
}

// Parse parses forms files and directories. Problems with the documents are
// reported in ParsedForms.Errors; the returned error is reserved for
// unreadable sources.
func (fl *FormsLoader) Parse(ctx context.Context, sources []string) (*ParsedForms, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var unified cue.Value
	var sourceFiles []string
	var parseErrors []ValidationError

	merge := func(val cue.Value) {
		if !val.Exists() {
			return
		}
		if unified.Exists() {
			unified = unified.Unify(val)
		} else {
			unified = val
		}
	}

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		if info.IsDir() {
			vals, files, errs := fl.loadDirectory(source)
			parseErrors = append(parseErrors, errs...)
			for _, v := range vals {
				merge(v)
			}
			sourceFiles = append(sourceFiles, files...)
			continue
		}

		val, errs := fl.loadFile(source)
		parseErrors = append(parseErrors, errs...)
		merge(val)
		sourceFiles = append(sourceFiles, source)
	}

	if len(parseErrors) > 0 {
		return &ParsedForms{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	return fl.extract(unified, sourceFiles), nil
}

// ParseInline parses forms given as a CUE (or JSON) string.
func (fl *FormsLoader) ParseInline(ctx context.Context, content string) (*ParsedForms, error) {
	val := fl.schemas.Context().CompileString(content, cue.Filename("inline"))
	if err := val.Err(); err != nil {
		return &ParsedForms{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      convertCUEErrors(err),
		}, nil
	}
	return fl.extract(val, []string{"inline"}), nil
}

// loadDirectory loads the CUE package in dir together with every YAML and
// JSON file below it.
func (fl *FormsLoader) loadDirectory(dir string) ([]cue.Value, []string, []ValidationError) {
	var vals []cue.Value
	var files []string
	var errs []ValidationError
	hasCUE := false

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".cue":
			if filepath.Dir(path) == filepath.Clean(dir) {
				hasCUE = true
			}
		case ".yaml", ".yml", ".json":
			val, fileErrs := fl.loadFile(path)
			errs = append(errs, fileErrs...)
			if val.Exists() {
				vals = append(vals, val)
			}
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, []ValidationError{{File: dir, Message: fmt.Sprintf("failed to walk directory: %v", err), Severity: "error"}}
	}

	if hasCUE {
		instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
		if len(instances) == 0 || instances[0].Err != nil {
			if len(instances) > 0 {
				errs = append(errs, convertCUEErrors(instances[0].Err)...)
			}
		} else {
			val := fl.schemas.Context().BuildInstance(instances[0])
			if err := val.Err(); err != nil {
				errs = append(errs, convertCUEErrors(err)...)
			} else {
				vals = append(vals, val)
			}
			for _, file := range instances[0].Files {
				if file.Filename != "" {
					files = append(files, file.Filename)
				}
			}
		}
	}

	if len(vals) == 0 && len(errs) == 0 {
		errs = append(errs, ValidationError{File: dir, Message: "no forms files found", Severity: "error"})
	}

	return vals, files, errs
}

// loadFile loads a single forms file, choosing the decoder by extension.
func (fl *FormsLoader) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	cctx := fl.schemas.Context()
	var val cue.Value

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]interface{}
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return cue.Value{}, []ValidationError{{
				File:     path,
				Message:  fmt.Sprintf("failed to parse YAML: %v", err),
				Severity: "error",
			}}
		}
		val = cctx.Encode(doc)
	case ".cue", ".json":
		val = cctx.CompileBytes(content, cue.Filename(path))
	default:
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  "unsupported file type",
			Severity: "error",
		}}
	}

	if err := val.Err(); err != nil {
		errs := convertCUEErrors(err)
		for i := range errs {
			if errs[i].File == "" {
				errs[i].File = path
			}
		}
		return cue.Value{}, errs
	}

	return val, nil
}

// extract checks val against the forms schema and decodes it.
func (fl *FormsLoader) extract(val cue.Value, sourceFiles []string) *ParsedForms {
	parsed := &ParsedForms{
		SourceFiles: sourceFiles,
		ParsedAt:    time.Now(),
	}

	schema, _ := fl.schemas.GetSchema("forms")
	checked := schema.Unify(val)
	if err := checked.Validate(cue.Concrete(true)); err != nil {
		parsed.Errors = convertCUEErrors(err)
		return parsed
	}

	var forms FormsFile
	if err := checked.Decode(&forms); err != nil {
		parsed.Errors = append(parsed.Errors, ValidationError{
			Message:  fmt.Sprintf("failed to decode forms: %v", err),
			Severity: "error",
		})
		return parsed
	}
	if forms.Engines == nil {
		forms.Engines = map[string]EngineForms{}
	}

	if err := fl.validator.Struct(forms); err != nil {
		parsed.Errors = append(parsed.Errors, convertValidatorErrors(err)...)
	}
	parsed.Errors = append(parsed.Errors, fl.checkForms(forms)...)
	parsed.Forms = forms

	return parsed
}

// checkForms enforces what neither the schema nor struct tags can express.
func (fl *FormsLoader) checkForms(forms FormsFile) []ValidationError {
	var errs []ValidationError
	for _, engineKey := range sortedKeys(forms.Engines) {
		seen := map[string]bool{}
		for i, form := range forms.Engines[engineKey].Forms {
			path := fmt.Sprintf("engines.%q.forms[%d]", engineKey, i)
			if seen[form.Key] {
				errs = append(errs, ValidationError{
					Path:     path + ".key",
					Message:  fmt.Sprintf("duplicate form key %q", form.Key),
					Severity: "error",
				})
			}
			seen[form.Key] = true

			if fl.rules == nil {
				continue
			}
			for _, fieldKey := range sortedKeys(form.Fields) {
				if err := fl.rules.Validate(form.Fields[fieldKey].Rules...); err != nil {
					errs = append(errs, ValidationError{
						Path:     fmt.Sprintf("%s.fields.%s.rules", path, fieldKey),
						Message:  err.Error(),
						Severity: "error",
					})
				}
			}
		}
	}
	return errs
}

// Apply hands the parsed forms to reg. It fails if the forms carry errors,
// name an unknown engine, or clash with a code-defined configuration.
func (fl *FormsLoader) Apply(reg *edit.Registry, parsed *ParsedForms) error {
	if parsed.HasErrors() {
		msgs := make([]string, 0, len(parsed.Errors))
		for _, e := range parsed.Errors {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("forms have errors: %s", strings.Join(msgs, "; "))
	}

	for _, engineKey := range sortedKeys(parsed.Forms.Engines) {
		ef := parsed.Forms.Engines[engineKey]
		settings := edit.EngineSettings{CreatePolicy: ef.CreatePolicy}
		for i := range ef.Forms {
			settings.Configurations = append(settings.Configurations, ef.Forms[i].ToConfiguration(engineKey))
		}
		if err := reg.Configure(engineKey, settings); err != nil {
			return fmt.Errorf("failed to configure engine %s: %w", engineKey, err)
		}
	}
	return nil
}

// ValidateRPCBatch checks a decoded edit batch against the rpc_batch schema.
func (fl *FormsLoader) ValidateRPCBatch(ctx context.Context, batch interface{}) error {
	return fl.schemas.ValidateAgainstSchema(ctx, "rpc_batch", batch)
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     strings.Join(e.Path(), "."),
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}

// convertValidatorErrors converts struct tag failures to ValidationError
// slice.
func convertValidatorErrors(err error) []ValidationError {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []ValidationError{{Message: err.Error(), Severity: "error"}}
	}
	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Path:     fe.Namespace(),
			Message:  fmt.Sprintf("failed %q constraint", fe.Tag()),
			Severity: "error",
		})
	}
	return out
}

func fmtLocation(file string, line, column int) string {
	return fmt.Sprintf("%s:%d:%d", file, line, column)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
