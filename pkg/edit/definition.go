package edit

import "context"

// Definition is implemented once per domain object type and registered under
// a stable engine key.
type Definition interface {
	// EngineKey is the stable registry key, e.g. "tasks.task".
	EngineKey() string

	// PHIDType is the four letter global id type of edited objects.
	PHIDType() string

	// Monogram prefixes short names, e.g. "T" for "T42".
	Monogram() string

	// ObjectName is a human name for the object type.
	ObjectName() string

	// NewObject returns a blank object authored by viewer.
	NewObject(viewer Viewer) Object

	// BuildFields returns the fields editing obj.
	BuildFields(obj Object) []*Field

	// BuiltinConfigurations returns the code-defined form variants.
	BuiltinConfigurations() []*Configuration

	// ObjectURI is where the object can be viewed.
	ObjectURI(obj Object) string
}

// Loader is optionally implemented by definitions needing to load related
// data after an object is decoded.
type Loader interface {
	LoadObject(ctx context.Context, obj Object) error
}

// FieldContributor adds fields to other engines' objects.
type FieldContributor interface {
	// ExtensionKey identifies the contributor.
	ExtensionKey() string

	// SupportsObject reports whether the contributor applies.
	SupportsObject(def Definition, obj Object) bool

	// BuildFields returns the contributed fields.
	BuildFields(def Definition, obj Object) []*Field
}
