// Package config loads form customizations for edit engines and evaluates
// Starlark default scripts.
//
// # Forms files
//
// Forms files add configurations to registered engines without code changes.
// They may be written in CUE, YAML or JSON and are checked against the
// built-in "forms" schema before being decoded:
//
//	engines: "tasks.task": {
//		create_policy: "role:triage"
//		forms: [{
//			key:     "security"
//			name:    "Report Security Issue"
//			default: true
//			fields: {
//				priority: {default: "high", locked: true}
//				title: {rules: ["size(value) >= 10"]}
//			}
//		}]
//	}
//
// Loading and applying:
//
//	evaluator, err := rules.NewEvaluator()
//	if err != nil {
//	    return err
//	}
//	loader := config.NewFormsLoader(evaluator)
//	parsed, err := loader.Parse(ctx, []string{"./forms"})
//	if err != nil {
//	    return err
//	}
//	if err := loader.Apply(registry, parsed); err != nil {
//	    return err
//	}
//
// Errors found in the documents carry file, line and path information and
// are collected in ParsedForms.Errors.
//
// # Default scripts
//
// A field customization may compute its default with a Starlark script
// instead of a literal. The script sees the viewer PHID as viewer, the
// engine key as engine, the field key as field and the field's value as
// current. It assigns the default to value:
//
//	value = "high" if viewer == "PHID-USER-oncall" else current
//
// Top-level statements follow standard Starlark rules, so branching belongs
// in a conditional expression or a def.
//
// Scripts run with a timeout and without access to the filesystem or
// network. StarlarkEvaluator implements edit.ScriptEvaluator.
package config
