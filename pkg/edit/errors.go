package edit

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass classifies an edit failure so callers can explain the specific
// obstacle instead of reporting a generic failure.
type ErrorClass string

const (
	// ErrorClassNotFound indicates the object or configuration does not
	// resolve, or the viewer lacks the capabilities required to see it.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassTypeMismatch indicates a name resolved to an object of a
	// different type than the engine edits.
	ErrorClassTypeMismatch ErrorClass = "type_mismatch"

	// ErrorClassNoUsableConfiguration indicates no enabled configuration
	// matches the resolution policy.
	ErrorClassNoUsableConfiguration ErrorClass = "no_usable_configuration"

	// ErrorClassFormDisabled indicates the selected configuration is disabled.
	ErrorClassFormDisabled ErrorClass = "form_disabled"

	// ErrorClassWrongFormKind indicates a configuration which is not an edit
	// form was selected for an existing object.
	ErrorClassWrongFormKind ErrorClass = "wrong_form_kind"

	// ErrorClassValidation indicates one or more values were rejected.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassNoEffect indicates a batch had no effect and the caller did
	// not ask to continue anyway.
	ErrorClassNoEffect ErrorClass = "no_effect"

	// ErrorClassPermission indicates an engine-level capability (such as
	// managing configurations) was denied.
	ErrorClassPermission ErrorClass = "permission"

	// ErrorClassConfiguration indicates developer-authored configuration is
	// internally inconsistent. It is a programming defect and is never
	// converted into a user-facing outcome.
	ErrorClassConfiguration ErrorClass = "configuration"
)

// Common error codes.
const (
	ErrCodeObjectNotFound        = "OBJECT_NOT_FOUND"
	ErrCodeConfigurationNotFound = "CONFIGURATION_NOT_FOUND"
	ErrCodeEngineNotFound        = "ENGINE_NOT_FOUND"
	ErrCodeCreateDenied          = "CREATE_DENIED"
	ErrCodeEditDenied            = "EDIT_DENIED"
	ErrCodeManageDenied          = "MANAGE_DENIED"
	ErrCodeNoDefaultCreate       = "NO_DEFAULT_CREATE"
	ErrCodeNoDefaultEdit         = "NO_DEFAULT_EDIT"
	ErrCodeUnknownType           = "UNKNOWN_TYPE"
	ErrCodeInvalidValue          = "INVALID_VALUE"
	ErrCodeDuplicateKey          = "DUPLICATE_KEY"
	ErrCodeMissingDefault        = "MISSING_DEFAULT"
	ErrCodeAmbiguousDefault      = "AMBIGUOUS_DEFAULT"
)

// FieldError describes one rejected value. Messages are keyed by transaction
// type so forms can attach them inline to the field which produced them.
type FieldError struct {
	// Type is the transaction type that was rejected.
	Type string `json:"type"`

	// FieldKey is the key of the field which owns the type, if any.
	FieldKey string `json:"field,omitempty"`

	// Message is a human-readable explanation.
	Message string `json:"message"`

	// Missing marks errors raised because a required value is absent.
	Missing bool `json:"missing,omitempty"`
}

// Error is a classified edit error.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Engine is the engine key the error was raised for, if known.
	Engine string `json:"engine,omitempty"`

	// Object is the identifier or PHID of the object involved, if any.
	Object string `json:"object,omitempty"`

	// Fields carries per-type messages for validation errors.
	Fields []FieldError `json:"fields,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Class, e.Message)
	if e.Engine != "" && e.Object != "" {
		fmt.Fprintf(&b, " (engine=%s, object=%s)", e.Engine, e.Object)
	} else if e.Engine != "" {
		fmt.Fprintf(&b, " (engine=%s)", e.Engine)
	}
	for _, fe := range e.Fields {
		fmt.Fprintf(&b, "; %s: %s", fe.Type, fe.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same class and code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && (t.Code == "" || e.Code == t.Code)
}

// WithEngine adds engine context to an error.
func (e *Error) WithEngine(engineKey string) *Error {
	e.Engine = engineKey
	return e
}

// WithObject adds object context to an error.
func (e *Error) WithObject(object string) *Error {
	e.Object = object
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(class ErrorClass, message string, err error) *Error {
	return &Error{Class: class, Message: message, Err: err}
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(message string, err error) *Error {
	return newError(ErrorClassNotFound, message, err)
}

// NewTypeMismatchError creates a type-mismatch error.
func NewTypeMismatchError(message string) *Error {
	return newError(ErrorClassTypeMismatch, message, nil)
}

// NewNoUsableConfigurationError creates a no-usable-configuration error.
func NewNoUsableConfigurationError(message string) *Error {
	return newError(ErrorClassNoUsableConfiguration, message, nil)
}

// NewFormDisabledError creates a form-disabled error.
func NewFormDisabledError(message string) *Error {
	return newError(ErrorClassFormDisabled, message, nil)
}

// NewWrongFormKindError creates a wrong-form-kind error.
func NewWrongFormKindError(message string) *Error {
	return newError(ErrorClassWrongFormKind, message, nil)
}

// NewPermissionError creates a permission error.
func NewPermissionError(message string) *Error {
	return newError(ErrorClassPermission, message, nil)
}

// NewConfigurationError creates a configuration error.
func NewConfigurationError(message string) *Error {
	return newError(ErrorClassConfiguration, message, nil)
}

// NewValidationError creates a validation error carrying one message per
// offending transaction type. Later messages for a type already present are
// dropped.
func NewValidationError(fields []FieldError) *Error {
	seen := make(map[string]bool, len(fields))
	unique := make([]FieldError, 0, len(fields))
	for _, fe := range fields {
		if seen[fe.Type] {
			continue
		}
		seen[fe.Type] = true
		unique = append(unique, fe)
	}
	return &Error{
		Class:   ErrorClassValidation,
		Message: "validation failed",
		Code:    ErrCodeInvalidValue,
		Fields:  unique,
	}
}

// NewNoEffectError creates a no-effect error for a batch of the given size.
func NewNoEffectError(total int, hasComment bool) *Error {
	return (&Error{
		Class:   ErrorClassNoEffect,
		Message: "transactions have no effect",
	}).WithDetail("transactions", total).WithDetail("has_comment", hasComment)
}

func classOf(err error) (ErrorClass, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Class, true
	}
	return "", false
}

func hasClass(err error, class ErrorClass) bool {
	c, ok := classOf(err)
	return ok && c == class
}

// AsError extracts an *Error from the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return hasClass(err, ErrorClassNotFound) }

// IsTypeMismatch reports whether err is a type-mismatch error.
func IsTypeMismatch(err error) bool { return hasClass(err, ErrorClassTypeMismatch) }

// IsNoUsableConfiguration reports whether err is a no-usable-configuration error.
func IsNoUsableConfiguration(err error) bool {
	return hasClass(err, ErrorClassNoUsableConfiguration)
}

// IsFormDisabled reports whether err is a form-disabled error.
func IsFormDisabled(err error) bool { return hasClass(err, ErrorClassFormDisabled) }

// IsWrongFormKind reports whether err is a wrong-form-kind error.
func IsWrongFormKind(err error) bool { return hasClass(err, ErrorClassWrongFormKind) }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return hasClass(err, ErrorClassValidation) }

// IsNoEffect reports whether err is a no-effect error.
func IsNoEffect(err error) bool { return hasClass(err, ErrorClassNoEffect) }

// IsPermission reports whether err is a permission error.
func IsPermission(err error) bool { return hasClass(err, ErrorClassPermission) }

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return hasClass(err, ErrorClassConfiguration) }

// ErrRecordNotFound is returned (wrapped) by stores when a row does not exist.
var ErrRecordNotFound = errors.New("record not found")
